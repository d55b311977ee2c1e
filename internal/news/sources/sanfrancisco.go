package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/htmlutil"
	"baypd-scraper/lib/upstream"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

const sanFranciscoURL = "https://sf.gov/news/topics/794"

var SanFrancisco = news.PageSource{
	Info: news.Feed{
		Title:       "San Francisco County COVID-19 News",
		HomePageURL: sanFranciscoURL,
	},
	URL:      sanFranciscoURL,
	Endpoint: EndpointPage,
	Parse:    parseSanFrancisco,
}

const headings = "h1, h2, h3, h4, h5, h6"

func parseSanFrancisco(doc *goquery.Document, base string, deps news.Deps) ([]news.Item, error) {
	articles := doc.Find("main article")
	items := make([]news.Item, 0, articles.Length())
	for i := range articles.Nodes {
		item, err := sanFranciscoItem(articles.Eq(i).Clone(), base, deps)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func sanFranciscoItem(article *goquery.Selection, base string, deps news.Deps) (news.Item, error) {
	titleLink := article.Find(headings).First().Find("a").First()
	link, err := news.ItemLink(titleLink, base)
	if err != nil {
		return news.Item{}, err
	}
	title := htmlutil.CleanText(titleLink)
	if title == "" {
		return news.Item{}, errNoTitle
	}

	timeTag := article.Find("time").First()
	stamp, ok := timeTag.Attr("datetime")
	if !ok {
		return news.Item{}, upstream.Formatf("no <time datetime> in article")
	}
	date, err := news.ParseDatetime(stamp, deps.Clock)
	if err != nil {
		return news.Item{}, err
	}

	// the summary is whatever is left once the title and date are gone
	titleLink.Remove()
	timeTag.Remove()

	return news.Item{
		ID:            link,
		URL:           link,
		Title:         title,
		DatePublished: date,
		Summary:       htmlutil.CleanText(article),
	}, nil
}
