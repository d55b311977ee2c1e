// Package counties maps county ids to their adapters.
package counties

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/counties/alameda"
	"baypd-scraper/internal/counties/contracosta"
	"baypd-scraper/internal/counties/marin"
	"baypd-scraper/internal/counties/napa"
	"baypd-scraper/internal/counties/sanfrancisco"
	"baypd-scraper/internal/counties/sanmateo"
	"baypd-scraper/internal/counties/santaclara"
	"baypd-scraper/internal/counties/solano"
	"baypd-scraper/internal/counties/sonoma"
	"baypd-scraper/internal/record"
	"context"
	"fmt"
	"strings"
)

type entry struct {
	id      string
	factory adapter.Factory
}

// registry is in the order counties are scraped when none are named.
var registry = []entry{
	{alameda.ID, alameda.New},
	{contracosta.ID, contracosta.New},
	{marin.ID, marin.New},
	{napa.ID, napa.New},
	{sanfrancisco.ID, sanfrancisco.New},
	{sanmateo.ID, sanmateo.New},
	{santaclara.ID, santaclara.New},
	{sonoma.ID, sonoma.New},
	{solano.ID, solano.New},
}

// IDs lists every known county id.
func IDs() []string {
	out := make([]string, len(registry))
	for i, e := range registry {
		out[i] = e.id
	}
	return out
}

// Lookup returns the factory of a county, ids are matched case-insensitively.
func Lookup(id string) (adapter.Factory, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, e := range registry {
		if e.id == id {
			return e.factory, true
		}
	}
	return nil, false
}

// Resolve validates requested ids, returning every county when none are given.
// Duplicates are dropped, the order of the request is kept.
func Resolve(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return IDs(), nil
	}
	seen := map[string]bool{}
	var out []string
	for _, id := range requested {
		id = strings.ToLower(strings.TrimSpace(id))
		if _, ok := Lookup(id); !ok {
			return nil, fmt.Errorf("unknown county %q, expected one of: %s", id, strings.Join(IDs(), ", "))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// WithNotes wraps an adapter so configured notes are appended to the
// record's meta_from_baypd.
func WithNotes(inner adapter.Adapter, notes []string) adapter.Adapter {
	if len(notes) == 0 {
		return inner
	}
	return adapter.Func(func(ctx context.Context) (record.County, error) {
		county, err := inner.GetCounty(ctx)
		if err != nil {
			return county, err
		}
		county.AppendNotes(notes...)
		return county, nil
	})
}
