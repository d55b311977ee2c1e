package news

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	items []Item
	err   error
}

func (s staticSource) NewFeed() Feed {
	return Feed{Title: "Static"}
}

func (s staticSource) Items(context.Context, Deps, Window) ([]Item, error) {
	return s.items, s.err
}

func day(d int) time.Time {
	return time.Date(2021, 1, d, 12, 0, 0, 0, time.UTC)
}

func TestScrapeWindow(t *testing.T) {
	deps, tel := TestDeps(nil)
	src := staticSource{items: []Item{
		{ID: "early", DatePublished: day(1)},
		{ID: "from", DatePublished: day(5)},
		{ID: "inside", DatePublished: day(7)},
		{ID: "to", DatePublished: day(10)},
		{ID: "late", DatePublished: day(11)},
	}}

	feed, err := Scrape(context.Background(), src, deps, Window{From: day(5), To: day(10)})
	require.NoError(t, err)
	require.Equal(t, "Static", feed.Title)
	require.Equal(t, []string{"to", "inside", "from"}, ids(feed.Items))
	require.True(t, tel.Has(telemetry.EVENT_COUNT, report_news_items))
}

func TestScrapeDefaultsToNow(t *testing.T) {
	deps, _ := TestDeps(nil)
	src := staticSource{items: []Item{
		{ID: "past", DatePublished: TestNow.Add(-time.Hour)},
		{ID: "future", DatePublished: TestNow.Add(time.Hour)},
	}}

	feed, err := Scrape(context.Background(), src, deps, Window{})
	require.NoError(t, err)
	require.Equal(t, []string{"past"}, ids(feed.Items))
}

func TestScrapeError(t *testing.T) {
	deps, _ := TestDeps(nil)
	broken := errors.New("boom")
	_, err := Scrape(context.Background(), staticSource{err: broken}, deps, Window{})
	require.ErrorIs(t, err, broken)
}

func TestIsCovidRelated(t *testing.T) {
	cases := []struct {
		item Item
		want bool
	}{
		{Item{Title: "COVID-19 testing expands"}, true},
		{Item{Title: "Board meeting", Summary: "The shelter-in-place order was extended."}, true},
		{Item{Title: "Board meeting", URL: "https://example.com/coronavirus-update"}, true},
		{Item{Title: "Board meeting", Tags: []string{"Public Health"}}, true},
		{Item{Title: "Road closures", Summary: "Paving on Main St."}, false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, IsCovidRelated(c.item), c.item.Title)
	}
}

func TestParseDatetime(t *testing.T) {
	deps, _ := TestDeps(nil)
	pst := deps.Clock.Location()

	cases := []struct {
		in   string
		want time.Time
	}{
		{"July 17, 2020", time.Date(2020, 7, 17, 0, 0, 0, 0, pst)},
		{"6/1/2020", time.Date(2020, 6, 1, 0, 0, 0, 0, pst)},
		{" 6/1/202 ", time.Date(2020, 6, 1, 0, 0, 0, 0, pst)},
		{"2020-04-23T04:11:56Z", time.Date(2020, 4, 23, 4, 11, 56, 0, time.UTC)},
		{"Fri, 29 May 2020 16:18:06 +0000", time.Date(2020, 5, 29, 16, 18, 6, 0, time.UTC)},
		{"1/5/1921", time.Date(2021, 1, 5, 0, 0, 0, 0, pst)},
	}
	for _, c := range cases {
		got, err := ParseDatetime(c.in, deps.Clock)
		require.NoError(t, err, c.in)
		require.True(t, c.want.Equal(got), "%s: got %s", c.in, got)
	}

	for _, bad := range []string{"", "not a date", "1/1/1990", "1/1/2099"} {
		_, err := ParseDatetime(bad, deps.Clock)
		require.Error(t, err, bad)
	}
}

func TestBaseURL(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><head><base href="/news/"></head></html>`))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/news/", BaseURL(doc, "https://example.com/page.aspx"))

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(`<html></html>`))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/page.aspx", BaseURL(doc, "https://example.com/page.aspx"))
}

func TestPageSource(t *testing.T) {
	// "Caf\xe9" is latin-1, the meta tag says so
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{
		"/news": {
			ContentType: "text/html",
			Body: "<html><head><meta charset=\"iso-8859-1\"></head><body>" +
				"<ul><li><a href=\"/a\">Caf\xe9 reopening</a></li><li><a href=\"/b\">Road work</a></li></ul>" +
				"</body></html>",
		},
	})
	deps, _ := TestDeps(map[string]string{"page": srv.URL + "/news"})

	src := PageSource{
		Info:     Feed{Title: "Test"},
		URL:      "https://example.com/unused",
		Endpoint: "page",
		Parse: func(doc *goquery.Document, base string, deps Deps) ([]Item, error) {
			var items []Item
			doc.Find("li a").Each(func(i int, a *goquery.Selection) {
				link, err := ItemLink(a, base)
				require.NoError(t, err)
				items = append(items, Item{ID: link, URL: link, Title: a.Text(), DatePublished: day(i + 1)})
			})
			return items, nil
		},
		Filter: IsCovidRelated,
	}

	feed, err := Scrape(context.Background(), src, deps, Window{})
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)
	require.Equal(t, "Caf\u00e9 reopening", feed.Items[0].Title)
	require.Equal(t, srv.URL+"/a", feed.Items[0].URL)
}

func TestPageSourceBadStatus(t *testing.T) {
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{})
	deps, _ := TestDeps(map[string]string{"page": srv.URL + "/missing"})
	src := PageSource{
		Endpoint: "page",
		Parse: func(*goquery.Document, string, Deps) ([]Item, error) {
			t.Fatal("parse should not run")
			return nil, nil
		},
	}
	_, err := src.Items(context.Background(), deps, Window{})
	require.True(t, upstream.IsBadRequest(err))
}

func TestItemLinkRequiresHref(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<a>no href</a>`))
	require.NoError(t, err)
	_, err = ItemLink(doc.Find("a"), "https://example.com")
	require.True(t, upstream.IsFormatError(err))
}
