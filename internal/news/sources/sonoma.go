package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/htmlutil"
	"baypd-scraper/lib/upstream"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

const sonomaURL = "https://sonomacounty.ca.gov/News/"

// Spanish versions of some releases are listed too, the english key terms
// mostly filter them out.
var Sonoma = news.PageSource{
	Info: news.Feed{
		Title:       "Sonoma County COVID-19 News",
		HomePageURL: sonomaURL,
	},
	URL:      sonomaURL,
	Endpoint: EndpointPage,
	Parse:    parseSonoma,
	Filter:   news.IsCovidRelated,
}

func parseSonoma(doc *goquery.Document, base string, deps news.Deps) ([]news.Item, error) {
	articles := doc.Find(".teaserContainer.srchResults .teaserContainer")
	if articles.Length() == 0 {
		return nil, upstream.Formatf("could not find any news items on page")
	}

	items := make([]news.Item, 0, articles.Length())
	for i := range articles.Nodes {
		article := articles.Eq(i)
		titleLink := article.Find(".titlePrimary a").First()
		link, err := news.ItemLink(titleLink, base)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		title, err := titleOf(titleLink, i)
		if err != nil {
			return nil, err
		}

		published := text(article.Find(".published .date").First())
		if clock := text(article.Find(".published .time").First()); clock != "" {
			published += " " + clock
		}
		date, err := news.ParseDatetime(published, deps.Clock)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}

		var tags []string
		if source := article.Find(".source").First(); source.Length() > 0 {
			tags = append(tags, htmlutil.CleanText(source))
		}

		items = append(items, news.Item{
			ID:            link,
			URL:           link,
			Title:         title,
			DatePublished: date,
			Summary:       text(article.Find(".summary").First()),
			Tags:          tags,
		})
	}
	return items, nil
}
