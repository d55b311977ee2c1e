package sources

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const alamedaPage = `<html><body><div id="mainCol">
<p><strong>Important:</strong> releases are listed newest first.</p>
<p>
<strong>July 17, 2020</strong>
<a href="/press/item1.html">Title of news item</a>
<br>
<br>
<strong>July 10, 2020</strong>
Title of multilingual news item<br>
With a subhead:
<a href="/press/item2/en.html">English</a> |
<a href="/press/item2/es.html">Spanish</a>
<br>
<strong>July 9, 2020</strong>
Untranslated item<br>
<a href="/press/item3/es.html">Spanish</a>
<br>
<strong>July 8, 2020</strong>
<a href="/press/item4.html">Fourth item<br></a>
<br>
</p>
</div></body></html>`

func parseFixture(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func pacificDay(month time.Month, day int) time.Time {
	return time.Date(2020, month, day, 0, 0, 0, 0, news.TestNow.Location())
}

func TestParseAlameda(t *testing.T) {
	deps, tel := news.TestDeps(nil)
	items, err := parseAlameda(parseFixture(t, alamedaPage), "https://covid-19.acgov.org/press.page", deps)
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.Equal(t, "https://covid-19.acgov.org/press/item1.html", items[0].URL)
	require.Equal(t, items[0].URL, items[0].ID)
	require.Equal(t, "Title of news item", items[0].Title)
	require.Empty(t, items[0].Summary)
	require.True(t, pacificDay(time.July, 17).Equal(items[0].DatePublished))

	require.Equal(t, "https://covid-19.acgov.org/press/item2/en.html", items[1].URL)
	require.Equal(t, "Title of multilingual news item", items[1].Title)
	require.Equal(t, "With a subhead", items[1].Summary)

	require.Equal(t, "https://covid-19.acgov.org/press/item4.html", items[2].URL)
	require.Equal(t, "Fourth item", items[2].Title)

	// the untranslated item has no english link
	require.True(t, tel.Has(telemetry.EVENT_WARNING, report_no_url))
	require.True(t, tel.Has(telemetry.EVENT_DEBUG, report_not_news))
}

func TestParseAlamedaEmpty(t *testing.T) {
	deps, _ := news.TestDeps(nil)
	_, err := parseAlameda(parseFixture(t, `<div id="mainCol"><strong>Nothing</strong></div>`), "https://example.com", deps)
	require.True(t, upstream.IsFormatError(err))
}

func TestParseAlamedaMissingTitle(t *testing.T) {
	deps, _ := news.TestDeps(nil)
	page := `<div id="mainCol"><p><strong>July 17, 2020</strong><br><br></p></div>`
	_, err := parseAlameda(parseFixture(t, page), "https://example.com", deps)
	require.True(t, upstream.IsFormatError(err))
}

func TestLiveAlameda(t *testing.T) {
	testutil.LiveTests(t, "alameda")
	deps, _ := news.TestDeps(nil)
	deps.Clock = liveClock(t)
	feed, err := news.Scrape(context.Background(), Alameda, deps, news.Window{})
	if err != nil {
		t.Skipf("could not scrape live alameda news: %v", err)
	}
	require.NotEmpty(t, feed.Items)
}
