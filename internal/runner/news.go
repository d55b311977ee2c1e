package runner

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/news"
	"baypd-scraper/internal/news/sources"
	"context"
	"fmt"
	"io"
	"time"
)

const report_news = "news.scrape"

type Format string

const (
	FormatJSONSimple Format = "json_simple"
	FormatJSONFeed   Format = "json_feed"
	FormatRSS        Format = "rss"
)

func ParseFormat(value string) (Format, error) {
	switch f := Format(value); f {
	case FormatJSONSimple, FormatJSONFeed, FormatRSS:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q, expected json_simple, json_feed or rss", value)
}

func (f Format) Ext() string {
	if f == FormatRSS {
		return "rss"
	}
	return "json"
}

func (f Format) Render(feed news.Feed) ([]byte, error) {
	switch f {
	case FormatJSONFeed:
		return feed.FormatJSONFeed()
	case FormatRSS:
		return feed.FormatRSS()
	default:
		return feed.FormatJSONSimple()
	}
}

const dateLayout = "2006-01-02"

// ParseWindow reads YYYY-MM-DD bounds in loc. The to date is inclusive of
// its whole day, an empty bound is left zero.
func ParseWindow(from, to string, loc *time.Location) (news.Window, error) {
	var window news.Window
	if from != "" {
		t, err := time.ParseInLocation(dateLayout, from, loc)
		if err != nil {
			return news.Window{}, fmt.Errorf("--from: %w", err)
		}
		window.From = t
	}
	if to != "" {
		t, err := time.ParseInLocation(dateLayout, to, loc)
		if err != nil {
			return news.Window{}, fmt.Errorf("--to: %w", err)
		}
		window.To = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if !window.From.IsZero() && !window.To.IsZero() && window.To.Before(window.From) {
		return news.Window{}, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return window, nil
}

// CountyFeed is the feed of one county.
type CountyFeed struct {
	ID   string
	Feed news.Feed
}

// RunNews scrapes the news of counties in order.
func RunNews(ctx context.Context, s *Session, ids []string, window news.Window) ([]CountyFeed, Outcome) {
	tel := telemetry.NewScopedAPI("runner", s.Tel)

	var feeds []CountyFeed
	outcome := make(Outcome, 0, len(ids))
	for _, id := range ids {
		start := time.Now()
		feed, err := scrapeNews(ctx, s, id, window)
		result := Result{ID: id, Err: err, Elapsed: time.Since(start)}
		if err != nil {
			tel.ReportBroken(report_news, fmt.Errorf("%s: %w", id, err))
		} else {
			feeds = append(feeds, CountyFeed{ID: id, Feed: feed})
			result.Detail = fmt.Sprintf("%d items", len(feed.Items))
		}
		outcome = append(outcome, result)
	}
	return feeds, outcome
}

func scrapeNews(ctx context.Context, s *Session, id string, window news.Window) (feed news.Feed, err error) {
	defer recoverInto(&err)

	src, ok := sources.Lookup(id)
	if !ok {
		return news.Feed{}, fmt.Errorf("unknown county %q", id)
	}
	return news.Scrape(ctx, src, s.NewsDeps(id), window)
}

// CheckNewsOutput rejects format and destination combinations that cannot be
// written: without an output directory, only json_simple merges several
// counties into one document.
func CheckNewsOutput(format Format, dir string, ids []string) error {
	if dir == "" && format != FormatJSONSimple && len(ids) != 1 {
		return fmt.Errorf("--format %s writes one feed per county, pass a single county or --output", format)
	}
	return nil
}

// WriteNews writes feeds to dir/<county>.<ext>, or to stdout when dir is
// empty.
func WriteNews(stdout io.Writer, dir string, format Format, feeds []CountyFeed) error {
	if dir == "" {
		var contents []byte
		var err error
		if format == FormatJSONSimple {
			all := make([]news.Feed, len(feeds))
			for i, f := range feeds {
				all[i] = f.Feed
			}
			contents, err = news.JoinJSONSimple(all...)
		} else {
			if len(feeds) != 1 {
				return fmt.Errorf("%s output to stdout needs exactly one feed, got %d", format, len(feeds))
			}
			contents, err = format.Render(feeds[0].Feed)
		}
		if err != nil {
			return err
		}
		return WriteOutput(stdout, "", "", append(contents, '\n'))
	}

	for _, f := range feeds {
		contents, err := format.Render(f.Feed)
		if err != nil {
			return fmt.Errorf("%s: %w", f.ID, err)
		}
		err = WriteOutput(stdout, dir, f.ID+"."+format.Ext(), append(contents, '\n'))
		if err != nil {
			return fmt.Errorf("%s: %w", f.ID, err)
		}
	}
	return nil
}
