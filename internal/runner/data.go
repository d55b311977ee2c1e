package runner

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/counties"
	"baypd-scraper/internal/record"
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

const (
	report_county     = "county.get_county"
	report_cumulative = "county.check_cumulative"
)

// RunData scrapes counties in order into a {county_id: record} document.
// Failed counties are left out of the document and reported.
func RunData(ctx context.Context, s *Session, ids []string) (Document, Outcome) {
	tel := telemetry.NewScopedAPI("runner", s.Tel)

	var doc Document
	outcome := make(Outcome, 0, len(ids))
	for _, id := range ids {
		start := time.Now()
		county, err := scrapeCounty(ctx, s, id)
		result := Result{ID: id, Err: err, Elapsed: time.Since(start)}
		if err != nil {
			tel.ReportBroken(report_county, fmt.Errorf("%s: %w", id, err))
		} else {
			if err := record.CheckCumulative(county.Series); err != nil {
				tel.ReportWarning(report_cumulative, fmt.Errorf("%s: %w", id, err))
			}
			doc.Set(id, county)
			result.Detail = seriesDetail(county.Series)
		}
		outcome = append(outcome, result)
	}
	return doc, outcome
}

func scrapeCounty(ctx context.Context, s *Session, id string) (county record.County, err error) {
	defer recoverInto(&err)

	factory, ok := counties.Lookup(id)
	if !ok {
		return record.County{}, fmt.Errorf("unknown county %q", id)
	}
	deps := s.AdapterDeps(id)
	deps.Check()

	county, err = counties.WithNotes(factory(deps), s.Config.Notes(id)).GetCounty(ctx)
	if err != nil {
		return record.County{}, err
	}
	if err := record.Validate(county); err != nil {
		return record.County{}, fmt.Errorf("validate: %w", err)
	}
	return county, nil
}

// recoverInto converts a panic into an error carrying the stack.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
	}
}

func seriesDetail(series record.Series) string {
	return fmt.Sprintf(
		"%d cases, %d deaths, %d tests",
		len(series.Cases), len(series.Deaths), len(series.Tests),
	)
}
