package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/httpclient"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"
)

// EndpointFeed overrides the url of an rss feed.
const EndpointFeed = "feed"

const sanMateoFeedURL = "https://cmo.smcgov.org/news/feed"

// SanMateo reads the County Manager's Office press release feed, tidying the
// items to match the other counties.
var SanMateo news.Source = sanMateoSource{}

type sanMateoSource struct{}

func (sanMateoSource) NewFeed() news.Feed {
	return news.Feed{
		Title:       "San Mateo County COVID-19 News",
		HomePageURL: "https://cmo.smcgov.org/press-releases",
	}
}

// Redwood City is the county seat, so releases are often datelined there.
var sanMateoSummaryPrefix = regexp.MustCompile(`(?i)^Redwood\sCity(,\sCA\w*\.?)?\s*[\-\x{00a0}\x{2010}-\x{2015}]?\s*`)

// Titles usually start with "May 29, 2020 - ".
var sanMateoTitlePrefix = regexp.MustCompile(`^\w+\s\d+,\s\d+\s*[\-\x{00a0}\x{2010}-\x{2015}]?\s*`)

var (
	lineBreakTag = regexp.MustCompile(`<br\s*/?>`)
	anyTag       = regexp.MustCompile(`</?\w+[^>]*>`)
)

func (s sanMateoSource) Items(ctx context.Context, deps news.Deps, _ news.Window) ([]news.Item, error) {
	feedURL := deps.Endpoint(EndpointFeed, sanMateoFeedURL)
	res, err := deps.HTTP.R().SetContext(ctx).Get(feedURL)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", feedURL, err)
	}
	if err := httpclient.CheckResponse(res); err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(res.String())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", feedURL, err)
	}

	items := make([]news.Item, 0, len(feed.Items))
	for i, entry := range feed.Items {
		item, err := s.item(entry, deps)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (sanMateoSource) item(entry *gofeed.Item, deps news.Deps) (news.Item, error) {
	title := sanMateoTitlePrefix.ReplaceAllString(strings.TrimSpace(entry.Title), "")

	date := entry.PublishedParsed
	if date == nil {
		parsed, err := news.ParseDatetime(entry.Published, deps.Clock)
		if err != nil {
			return news.Item{}, err
		}
		date = &parsed
	}

	// descriptions are html snippets, summaries are plain text
	summary := strings.TrimSpace(entry.Description)
	summary = lineBreakTag.ReplaceAllString(summary, "\n")
	summary = anyTag.ReplaceAllString(summary, "")
	summary = sanMateoSummaryPrefix.ReplaceAllString(strings.TrimSpace(summary), "")

	link := strings.TrimSpace(entry.Link)
	id := strings.TrimSpace(entry.GUID)
	if id == "" {
		id = link
	}
	return news.Item{
		ID:            id,
		URL:           link,
		Title:         title,
		DatePublished: *date,
		Summary:       summary,
		Tags:          entry.Categories,
	}, nil
}
