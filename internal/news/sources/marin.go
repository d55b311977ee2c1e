package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/upstream"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The press release page has no summaries, so neither does the feed.
var Marin = news.PageSource{
	Info: news.Feed{
		Title:       "Marin County COVID-19 News",
		HomePageURL: "https://www.marincounty.org/main/county-press-releases",
	},
	URL:      "https://www.marincounty.org/main/county-press-releases?sort=dept",
	Endpoint: EndpointPage,
	Parse:    parseMarin,
}

const marinDepartment = "Health & Human Services"

func parseMarin(doc *goquery.Document, base string, deps news.Deps) ([]news.Item, error) {
	caption := doc.Find("caption").FilterFunction(func(_ int, c *goquery.Selection) bool {
		return strings.Contains(c.Text(), marinDepartment)
	}).First()
	if caption.Length() == 0 {
		return nil, upstream.Formatf("could not find articles for %q", marinDepartment)
	}

	rows := caption.Parent().Find("tr")
	if rows.First().Find(".pr-list-date-header").Length() == 0 {
		return nil, upstream.Formatf("the first row does not appear to be a header")
	}
	rows = rows.Slice(1, rows.Length())
	if rows.Length() == 0 {
		return nil, upstream.Formatf("could not find any news items on page")
	}

	items := make([]news.Item, 0, rows.Length())
	for i := range rows.Nodes {
		row := rows.Eq(i)
		titleLink := row.Find(".pr-list-title a").First()
		link, err := news.ItemLink(titleLink, base)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		title, err := titleOf(titleLink, i)
		if err != nil {
			return nil, err
		}
		date, err := news.ParseDatetime(text(row.Find(".pr-list-date")), deps.Clock)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		items = append(items, news.Item{
			ID:            link,
			URL:           link,
			Title:         title,
			DatePublished: date,
		})
	}
	return items, nil
}
