package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sanMateoFeed = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>County Manager's Office</title>
  <link>https://cmo.smcgov.org</link>
  <description></description>
  <item>
    <title>May 29, 2020 - Rough Waters Ahead: County Releases Recommended Budget</title>
    <link>https://cmo.smcgov.org/press-release/may-29-2020-rough-waters-ahead</link>
    <description><![CDATA[<p>REDWOOD CITY, Calif. ` + "\u2013" + ` The budget will change.<br/>Details follow.</p>]]></description>
    <pubDate>Fri, 29 May 2020 16:18:06 +0000</pubDate>
    <dc:creator>mwilson</dc:creator>
    <guid isPermaLink="false">11806 at https://cmo.smcgov.org</guid>
  </item>
  <item>
    <title>Parks reopen</title>
    <link>https://cmo.smcgov.org/press-release/parks-reopen</link>
    <description>Redwood City - Parks are open.</description>
    <pubDate>Mon, 01 Jun 2020 09:00:00 -0700</pubDate>
    <guid isPermaLink="false">11900 at https://cmo.smcgov.org</guid>
  </item>
</channel>
</rss>`

func TestSanMateo(t *testing.T) {
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{
		"/news/feed": {ContentType: "application/rss+xml; charset=utf-8", Body: sanMateoFeed},
	})
	deps, _ := news.TestDeps(map[string]string{EndpointFeed: srv.URL + "/news/feed"})

	feed, err := news.Scrape(context.Background(), SanMateo, deps, news.Window{})
	require.NoError(t, err)
	require.Equal(t, "San Mateo County COVID-19 News", feed.Title)
	require.Len(t, feed.Items, 2)

	parks := feed.Items[0]
	require.Equal(t, "11900 at https://cmo.smcgov.org", parks.ID)
	require.Equal(t, "Parks reopen", parks.Title)
	require.Equal(t, "Parks are open.", parks.Summary)

	budget := feed.Items[1]
	require.Equal(t, "Rough Waters Ahead: County Releases Recommended Budget", budget.Title)
	require.Equal(t, "https://cmo.smcgov.org/press-release/may-29-2020-rough-waters-ahead", budget.URL)
	require.Equal(t, "The budget will change.\nDetails follow.", budget.Summary)
	require.True(t, time.Date(2020, 5, 29, 16, 18, 6, 0, time.UTC).Equal(budget.DatePublished))
}

func TestSanMateoWindow(t *testing.T) {
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{
		"/news/feed": {ContentType: "application/rss+xml", Body: sanMateoFeed},
	})
	deps, _ := news.TestDeps(map[string]string{EndpointFeed: srv.URL + "/news/feed"})

	window := news.Window{From: time.Date(2020, 5, 30, 0, 0, 0, 0, time.UTC)}
	feed, err := news.Scrape(context.Background(), SanMateo, deps, window)
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)
	require.Equal(t, "Parks reopen", feed.Items[0].Title)
}

func TestSanMateoBadStatus(t *testing.T) {
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{})
	deps, _ := news.TestDeps(map[string]string{EndpointFeed: srv.URL + "/news/feed"})
	_, err := news.Scrape(context.Background(), SanMateo, deps, news.Window{})
	require.True(t, upstream.IsBadRequest(err))
}
