// Package sources holds the news scraper of every county.
package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/upstream"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_not_news  = "news.not-news"
	report_no_url    = "news.no-url"
	report_next_page = "news.next-page"
)

// EndpointPage overrides the url of a county's news page.
const EndpointPage = "page"

type entry struct {
	id     string
	source news.Source
}

var registry = []entry{
	{"alameda", Alameda},
	{"contra_costa", ContraCosta},
	{"marin", Marin},
	{"napa", Napa},
	{"san_francisco", SanFrancisco},
	{"san_mateo", SanMateo},
	{"santa_clara", SantaClara},
	{"sonoma", Sonoma},
	{"solano", Solano},
}

// IDs lists the counties that have a news source.
func IDs() []string {
	out := make([]string, len(registry))
	for i, e := range registry {
		out[i] = e.id
	}
	return out
}

// Lookup returns the news source of a county, ids are matched case-insensitively.
func Lookup(id string) (news.Source, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, e := range registry {
		if e.id == id {
			return e.source, true
		}
	}
	return nil, false
}

var errNoTitle = upstream.Formatf("no title content found")

// text is the trimmed text of a selection.
func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

func titleOf(link *goquery.Selection, index int) (string, error) {
	title := text(link)
	if title == "" {
		return "", fmt.Errorf("article %d: %w", index, errNoTitle)
	}
	return title, nil
}
