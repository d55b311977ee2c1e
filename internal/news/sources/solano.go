package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/upstream"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// Solano reads the html snippet behind the county news page, it lists more
// items than the page itself. cnt is the number of items and xml picks the
// template the main page also uses.
var Solano = news.PageSource{
	Info: news.Feed{
		Title:       "Solano County COVID-19 News",
		HomePageURL: "http://www.solanocounty.com/news/default.asp",
	},
	URL:      "http://www.solanocounty.com/custom/0000/aja/news/mainnews.asp?cnt=100&xml=mainnews4.xsl",
	Endpoint: EndpointPage,
	Parse:    parseSolano,
	Filter:   news.IsCovidRelated,
}

var solanoSummaryPrefix = regexp.MustCompile(`(?i)^SOLANO COUNTY\s*[\-\x{2013}]\s*`)

func parseSolano(doc *goquery.Document, base string, deps news.Deps) ([]news.Item, error) {
	headers := doc.Find("a.newsheader")
	if headers.Length() == 0 {
		return nil, upstream.Formatf("could not find any news items on page")
	}

	items := make([]news.Item, 0, headers.Length())
	for i := range headers.Nodes {
		titleLink := headers.Eq(i)
		cell := titleLink.Closest("td")

		link, err := news.ItemLink(titleLink, base)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		title, err := titleOf(titleLink, i)
		if err != nil {
			return nil, err
		}
		date, err := news.ParseDatetime(text(cell.Find(".newsdate").First()), deps.Clock)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}

		body := cell.Find(".newsbody").First()
		body.Find(".more").Remove()

		items = append(items, news.Item{
			ID:            link,
			URL:           link,
			Title:         title,
			DatePublished: date,
			Summary:       solanoSummaryPrefix.ReplaceAllString(text(body), ""),
		})
	}
	return items, nil
}
