package sources

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/counties"
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func liveClock(t *testing.T) chrono.API {
	clock, err := chrono.NewStandardImpl()
	require.NoError(t, err)
	return clock
}

// scrapePage serves `page` as the news page of src and scrapes it.
func scrapePage(t *testing.T, src news.Source, page string) (news.Feed, string, error) {
	t.Helper()
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{
		"/news/page.aspx": {ContentType: "text/html; charset=utf-8", Body: page},
	})
	pageURL := srv.URL + "/news/page.aspx"
	deps, _ := news.TestDeps(map[string]string{EndpointPage: pageURL})
	feed, err := news.Scrape(context.Background(), src, deps, news.Window{})
	return feed, srv.URL, err
}

func TestRegistryCoversCounties(t *testing.T) {
	require.Equal(t, counties.IDs(), IDs())
	for _, id := range IDs() {
		src, ok := Lookup(id)
		require.True(t, ok, id)
		require.NotEmpty(t, src.NewFeed().Title, id)
		require.NotEmpty(t, src.NewFeed().HomePageURL, id)
	}
	_, ok := Lookup("Contra_Costa")
	require.True(t, ok)
	_, ok = Lookup("yolo")
	require.False(t, ok)
}

const contraCostaPage = `<html><body>
<h3>July 2020</h3>
<p>Updates from the health services department.</p>
<ul>
<li><a href="/docs/order.pdf">Health order amended</a> - 7/16/2020</li>
<li><a href="/docs/sites.pdf">Testing sites</a>` + "\u2003|\u200b" + `Spanish - 7/2/202</li>
<li>Undated announcement</li>
</ul>
<h3>Resources</h3>
<ul><li><a href="/x">Not news - 7/1/2020</a></li></ul>
</body></html>`

func TestContraCosta(t *testing.T) {
	feed, base, err := scrapePage(t, ContraCosta, contraCostaPage)
	require.NoError(t, err)
	require.Len(t, feed.Items, 2)

	require.Equal(t, base+"/docs/order.pdf", feed.Items[0].URL)
	require.Equal(t, "Health order amended", feed.Items[0].Title)
	require.True(t, pacificDay(time.July, 16).Equal(feed.Items[0].DatePublished))

	require.Equal(t, "Testing sites", feed.Items[1].Title)
	require.True(t, pacificDay(time.July, 2).Equal(feed.Items[1].DatePublished))
}

func TestContraCostaEmptyPage(t *testing.T) {
	_, _, err := scrapePage(t, ContraCosta, `<html><body><h3>July 2020</h3><ul></ul></body></html>`)
	require.True(t, upstream.IsFormatError(err))

	_, _, err = scrapePage(t, ContraCosta, `<html><body><h3>July 2020</h3><p>no list</p></body></html>`)
	require.True(t, upstream.IsFormatError(err))
}

const marinPage = `<html><body><table>
<caption>Health &amp; Human Services</caption>
<tr><th class="pr-list-date-header">Date</th><th>Title</th></tr>
<tr><td class="pr-list-date">6/1/2020</td><td class="pr-list-title"><a href="/depts/hhs/news/one">Order one</a></td></tr>
<tr><td class="pr-list-date">6/3/2020</td><td class="pr-list-title"><a href="https://example.org/two">Order two</a></td></tr>
</table>
<table><caption>Parks</caption><tr><th class="pr-list-date-header">Date</th></tr></table>
</body></html>`

func TestMarin(t *testing.T) {
	feed, base, err := scrapePage(t, Marin, marinPage)
	require.NoError(t, err)
	require.Equal(t, "Marin County COVID-19 News", feed.Title)
	require.Len(t, feed.Items, 2)
	require.Equal(t, "https://example.org/two", feed.Items[0].ID)
	require.Equal(t, base+"/depts/hhs/news/one", feed.Items[1].URL)
	require.Equal(t, "Order one", feed.Items[1].Title)
	require.True(t, pacificDay(time.June, 1).Equal(feed.Items[1].DatePublished))
}

func TestMarinMissingDepartment(t *testing.T) {
	_, _, err := scrapePage(t, Marin, `<html><body><table><caption>Parks</caption></table></body></html>`)
	require.True(t, upstream.IsFormatError(err))
}

const napaPage = `<html><body><div class="contentMain"><div class="listing">
<div class="item intro">
  <span class="date">Posted on: June 1, 2020</span>
  <h3><a href="/CivicAlerts.aspx?AID=1">Testing update</a></h3>
  (NAPA, CA) - Free testing is available.
  <a href="/CivicAlerts.aspx?CID=2"><span class="category">Public Health</span></a>
  <a class="more" href="/CivicAlerts.aspx?AID=1">Read on...</a>
</div>
<div class="item intro">
  <span class="date">Posted on: June 2, 2020</span>
  <h3><a href="/CivicAlerts.aspx?AID=2">Road work</a></h3>
  Paving on Main St.
</div>
</div></div></body></html>`

func TestNapa(t *testing.T) {
	feed, base, err := scrapePage(t, Napa, napaPage)
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)

	item := feed.Items[0]
	require.Equal(t, base+"/CivicAlerts.aspx?AID=1", item.URL)
	require.Equal(t, "Testing update", item.Title)
	require.Equal(t, "Free testing is available.", item.Summary)
	require.Equal(t, []string{"Public Health"}, item.Tags)
	require.True(t, pacificDay(time.June, 1).Equal(item.DatePublished))
}

const sanFranciscoPage = `<html><body><main>
<article>
  <h3><a href="/news/testing-expands">  Testing
     expands </a></h3>
  <time datetime="2020-04-23T04:11:56Z">April 22, 2020</time>
  <p>Everyone can get tested.</p>
</article>
</main></body></html>`

func TestSanFrancisco(t *testing.T) {
	feed, base, err := scrapePage(t, SanFrancisco, sanFranciscoPage)
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)

	item := feed.Items[0]
	require.Equal(t, base+"/news/testing-expands", item.URL)
	require.Equal(t, "Testing expands", item.Title)
	require.Equal(t, "Everyone can get tested.", item.Summary)
	require.True(t, time.Date(2020, 4, 23, 4, 11, 56, 0, time.UTC).Equal(item.DatePublished))
}

const santaClaraPage = `<html><body><div class="view-news">
<article>
  <div class="coh-column"><a href="/sites/phd/news/Pages/clinics.aspx">Vaccine clinics open</a></div>
  <div class="coh-column">Press Release</div>
  <time datetime="2021-01-10T08:00:00-08:00">Jan 10</time>
</article>
<article>
  <div class="coh-column"><a href="/sites/phd/news/Pages/order.aspx">Order extended</a></div>
  <div class="coh-column"></div>
  <time datetime="2021-01-08T08:00:00-08:00">Jan 8</time>
</article>
</div></body></html>`

func TestParseSantaClara(t *testing.T) {
	deps, _ := news.TestDeps(nil)
	items, err := parseSantaClara(parseFixture(t, santaClaraPage), "https://www.sccgov.org/sites/phd/news/Pages/newsroom.aspx", deps)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "https://www.sccgov.org/sites/phd/news/Pages/clinics.aspx", items[0].URL)
	require.Equal(t, []string{"Press Release"}, items[0].Tags)
	require.Nil(t, items[1].Tags)
	require.True(t, time.Date(2021, 1, 8, 16, 0, 0, 0, time.UTC).Equal(items[1].DatePublished))
}

const solanoPage = `<table>
<tr><td>
  <a class="newsheader" href="/news/displaynews.asp?NewsID=1">COVID-19 testing update</a>
  <span class="newsdate">6/1/2020</span>
  <div class="newsbody">SOLANO COUNTY ` + "\u2013" + ` Testing is free. <a class="more" href="/news/displaynews.asp?NewsID=1">more</a></div>
</td></tr>
<tr><td>
  <a class="newsheader" href="/news/displaynews.asp?NewsID=2">Library hours</a>
  <span class="newsdate">6/2/2020</span>
  <div class="newsbody">Libraries open later.</div>
</td></tr>
</table>`

func TestSolano(t *testing.T) {
	feed, base, err := scrapePage(t, Solano, solanoPage)
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)
	require.Equal(t, base+"/news/displaynews.asp?NewsID=1", feed.Items[0].ID)
	require.Equal(t, "Testing is free.", feed.Items[0].Summary)
}

const sonomaPage = `<html><body><div class="teaserContainer srchResults">
<div class="teaserContainer">
  <div class="titlePrimary"><a href="/CAO/Press-Releases/Health-Order/">Health order amended</a></div>
  <div class="published"><span class="date">June 1, 2020</span><span class="time">3:15 PM</span></div>
  <div class="summary"> Businesses may reopen. </div>
  <div class="source">County
     Administrator</div>
</div>
<div class="teaserContainer">
  <div class="titlePrimary"><a href="/TPW/Roads/">Road work</a></div>
  <div class="published"><span class="date">June 2, 2020</span></div>
  <div class="summary">Paving on Main St.</div>
</div>
</div></body></html>`

func TestSonoma(t *testing.T) {
	feed, base, err := scrapePage(t, Sonoma, sonomaPage)
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)

	item := feed.Items[0]
	require.Equal(t, base+"/CAO/Press-Releases/Health-Order/", item.URL)
	require.Equal(t, "Businesses may reopen.", item.Summary)
	require.Equal(t, []string{"County Administrator"}, item.Tags)
	require.True(t, time.Date(2020, 6, 1, 15, 15, 0, 0, news.TestNow.Location()).Equal(item.DatePublished))
}

func TestSonomaEmpty(t *testing.T) {
	_, _, err := scrapePage(t, Sonoma, `<html><body></body></html>`)
	require.True(t, upstream.IsFormatError(err))
}

func TestLive(t *testing.T) {
	for _, id := range []string{"contra_costa", "marin", "napa", "san_francisco", "san_mateo", "solano", "sonoma"} {
		t.Run(id, func(t *testing.T) {
			testutil.LiveTests(t, id)
			src, _ := Lookup(id)
			deps, _ := news.TestDeps(nil)
			deps.Clock = liveClock(t)
			feed, err := news.Scrape(context.Background(), src, deps, news.Window{})
			if err != nil {
				t.Skipf("could not scrape live %s news: %v", id, err)
			}
			_, err = feed.FormatRSS()
			require.NoError(t, err)
		})
	}
}
