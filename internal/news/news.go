// Package news models county news feeds and drives the scrapers that fill
// them.
package news

import (
	"baypd-scraper/internal/components/assert"
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/lib/browser"
	"baypd-scraper/lib/htmlutil"
	"baypd-scraper/lib/textutil"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// Deps are shared by every source during a run.
type Deps struct {
	HTTP    *resty.Client
	Browser browser.Launcher
	Clock   chrono.API
	Tel     telemetry.API
	// Endpoints overrides source urls by name, tests point them at local
	// servers.
	Endpoints map[string]string
}

func (d Deps) Check() {
	if d.HTTP == nil {
		panic("news: http client is required")
	}
	assert.NotNil(d.Clock)
	assert.NotNil(d.Tel)
}

// Endpoint returns the override for `name`, or fallback.
func (d Deps) Endpoint(name, fallback string) string {
	if override, ok := d.Endpoints[name]; ok {
		return override
	}
	return fallback
}

// Window bounds publication dates, both ends inclusive. A zero From means no
// lower bound.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	if t.After(w.To) {
		return false
	}
	return w.From.IsZero() || !t.Before(w.From)
}

// Source scrapes the news of one county.
type Source interface {
	// NewFeed returns the empty feed items are appended to.
	NewFeed() Feed
	Items(ctx context.Context, deps Deps, window Window) ([]Item, error)
}

// Scrape runs a source and keeps the items published within the window.
// A zero window.To means now.
func Scrape(ctx context.Context, src Source, deps Deps, window Window) (Feed, error) {
	deps.Check()
	if window.To.IsZero() {
		window.To = deps.Clock.Now()
	}

	items, err := src.Items(ctx, deps, window)
	if err != nil {
		return Feed{}, err
	}

	feed := src.NewFeed()
	kept := make([]Item, 0, len(items))
	for _, item := range items {
		if window.Contains(item.DatePublished) {
			kept = append(kept, item)
		}
	}
	feed.Append(kept...)
	deps.Tel.ReportCount(report_news_items, int64(len(kept)))
	return feed, nil
}

// ParseFunc extracts the items listed on a page.
type ParseFunc func(doc *goquery.Document, pageURL string, deps Deps) ([]Item, error)

// LoadFunc returns the html of a page.
type LoadFunc func(ctx context.Context, deps Deps, pageURL string, window Window) (string, error)

// PageSource is a source that reads a single html page.
type PageSource struct {
	Info Feed
	URL  string
	// Endpoint names the Deps.Endpoints entry that overrides URL.
	Endpoint string
	// Load defaults to a plain GET.
	Load  LoadFunc
	Parse ParseFunc
	// Filter drops items it returns false for.
	Filter func(Item) bool
}

func (p PageSource) NewFeed() Feed {
	return p.Info
}

func (p PageSource) Items(ctx context.Context, deps Deps, window Window) ([]Item, error) {
	pageURL := deps.Endpoint(p.Endpoint, p.URL)

	var doc *goquery.Document
	var err error
	if p.Load == nil {
		doc, err = LoadHTML(ctx, deps.HTTP, pageURL)
	} else {
		var html string
		html, err = p.Load(ctx, deps, pageURL, window)
		if err == nil {
			doc, err = goquery.NewDocumentFromReader(strings.NewReader(html))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", pageURL, err)
	}

	items, err := p.Parse(doc, BaseURL(doc, pageURL), deps)
	if err != nil {
		return nil, err
	}
	if p.Filter == nil {
		return items, nil
	}
	kept := items[:0]
	for _, item := range items {
		if p.Filter(item) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// LoadHTML fetches a page, decoding it with the charset named by the
// response headers, a meta tag or an xml prolog.
func LoadHTML(ctx context.Context, client *resty.Client, pageURL string) (*goquery.Document, error) {
	return htmlutil.FetchDocument(ctx, client, pageURL)
}

// Rendered loads pages through the browser once `readySelector` shows up.
func Rendered(readySelector string) LoadFunc {
	return func(ctx context.Context, deps Deps, pageURL string, _ Window) (string, error) {
		return deps.Browser.Fetch(ctx, pageURL, readySelector)
	}
}

// BaseURL is the url relative links on the page resolve against, honoring a
// <base href>.
func BaseURL(doc *goquery.Document, pageURL string) string {
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return htmlutil.ResolveURL(pageURL, href)
	}
	return pageURL
}

// ItemLink resolves the href of a link against base, failing when the link
// has none.
func ItemLink(link *goquery.Selection, base string) (string, error) {
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errNoURL
	}
	resolved := htmlutil.ResolveURL(base, href)
	if _, err := url.Parse(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

var covidKeyTerms = []string{
	"covid",
	"coronavirus",
	"health",
	"reopening",
	"stay at home",
	"stay-at-home",
	"shelter in place",
	"shelter-in-place",
}

// IsCovidRelated reports whether an item's title, summary, url or tags
// mention a covid key term.
func IsCovidRelated(item Item) bool {
	comparable := strings.Join(append([]string{item.Title, item.Summary, item.URL}, item.Tags...), " ")
	return textutil.ContainsAny(comparable, covidKeyTerms)
}
