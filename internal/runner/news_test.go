package runner

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/testutil"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const solanoNews = `<table>
<tr><td>
  <a class="newsheader" href="/news/displaynews.asp?NewsID=1">COVID-19 testing update</a>
  <span class="newsdate">6/1/2020</span>
  <div class="newsbody">Testing is free.</div>
</td></tr>
</table>`

func TestRunNews(t *testing.T) {
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{
		"/news": {ContentType: "text/html; charset=utf-8", Body: solanoNews},
	})
	s, tel := testSession(t, DefaultConfig(), map[string]string{"page": srv.URL + "/news"})

	feeds, outcome := RunNews(context.Background(), s, []string{"solano", "yolo"}, news.Window{})
	require.Equal(t, []string{"yolo"}, outcome.Failed())
	require.Equal(t, "1 items", outcome[0].Detail)
	require.True(t, tel.Has(telemetry.EVENT_BROKEN, report_news))

	require.Len(t, feeds, 1)
	require.Equal(t, "solano", feeds[0].ID)
	require.Equal(t, "COVID-19 testing update", feeds[0].Feed.Items[0].Title)
}

func TestParseWindow(t *testing.T) {
	loc := time.FixedZone("PDT", -7*60*60)

	window, err := ParseWindow("2020-06-01", "2020-06-30", loc)
	require.NoError(t, err)
	require.True(t, time.Date(2020, 6, 1, 0, 0, 0, 0, loc).Equal(window.From))
	require.True(t, window.Contains(time.Date(2020, 6, 30, 23, 59, 0, 0, loc)))
	require.False(t, window.Contains(time.Date(2020, 7, 1, 0, 0, 0, 0, loc)))
	require.False(t, window.Contains(time.Date(2020, 5, 31, 23, 59, 0, 0, loc)))

	window, err = ParseWindow("", "", loc)
	require.NoError(t, err)
	require.True(t, window.From.IsZero())
	require.True(t, window.To.IsZero())

	_, err = ParseWindow("06/01/2020", "", loc)
	require.Error(t, err)
	_, err = ParseWindow("2020-06-02", "2020-06-01", loc)
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for _, value := range []string{"json_simple", "json_feed", "rss"} {
		format, err := ParseFormat(value)
		require.NoError(t, err)
		require.Equal(t, Format(value), format)
	}
	_, err := ParseFormat("atom")
	require.Error(t, err)

	require.Equal(t, "rss", FormatRSS.Ext())
	require.Equal(t, "json", FormatJSONFeed.Ext())
}

func TestCheckNewsOutput(t *testing.T) {
	require.NoError(t, CheckNewsOutput(FormatJSONSimple, "", []string{"napa", "marin"}))
	require.NoError(t, CheckNewsOutput(FormatRSS, "", []string{"napa"}))
	require.NoError(t, CheckNewsOutput(FormatRSS, "out", []string{"napa", "marin"}))
	require.Error(t, CheckNewsOutput(FormatJSONFeed, "", []string{"napa", "marin"}))
}

func testFeeds() []CountyFeed {
	published := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	napa := news.Feed{Title: "Napa", HomePageURL: "https://www.countyofnapa.org"}
	napa.Append(news.Item{ID: "n1", URL: "https://www.countyofnapa.org/1", Title: "Napa item", DatePublished: published})
	marin := news.Feed{Title: "Marin", HomePageURL: "https://www.marincounty.org"}
	marin.Append(news.Item{ID: "m1", URL: "https://www.marincounty.org/1", Title: "Marin item", DatePublished: published})
	return []CountyFeed{{ID: "napa", Feed: napa}, {ID: "marin", Feed: marin}}
}

func TestWriteNewsStdout(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, WriteNews(&stdout, "", FormatJSONSimple, testFeeds()))
	out := stdout.String()
	require.Contains(t, out, `"newsItems"`)
	require.Less(t, bytes.Index(stdout.Bytes(), []byte("Napa item")), bytes.Index(stdout.Bytes(), []byte("Marin item")))

	stdout.Reset()
	require.NoError(t, WriteNews(&stdout, "", FormatRSS, testFeeds()[:1]))
	require.Contains(t, stdout.String(), "<rss")

	require.Error(t, WriteNews(&stdout, "", FormatJSONFeed, testFeeds()))
}

func TestWriteNewsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteNews(nil, dir, FormatJSONFeed, testFeeds()))

	for _, name := range []string{"napa.json", "marin.json"} {
		written, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.Contains(t, string(written), "https://jsonfeed.org/version/1")
	}
}
