package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/htmlutil"
	"baypd-scraper/lib/textutil"
	"baypd-scraper/lib/upstream"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const napaURL = "https://www.countyofnapa.org/CivicAlerts.aspx?sort=date"

// The county news page covers much more than covid, its items are filtered.
var Napa = news.PageSource{
	Info: news.Feed{
		Title:       "Napa County COVID-19 News",
		HomePageURL: napaURL,
	},
	URL:      napaURL,
	Endpoint: EndpointPage,
	Parse:    parseNapa,
	Filter:   news.IsCovidRelated,
}

// Variations on "(Napa, CA) -" that lead summaries.
var napaSummaryPrefix = regexp.MustCompile(`(?i)^\(?NAPA,\sCA\w*\.?\)?\s*[\-\x{00a0}\x{2010}-\x{2015}]?\s*`)

func parseNapa(doc *goquery.Document, base string, deps news.Deps) ([]news.Item, error) {
	articles := doc.Find(".contentMain .listing .item.intro")
	if articles.Length() == 0 {
		return nil, upstream.Formatf("could not find any news items on page")
	}

	items := make([]news.Item, 0, articles.Length())
	for i := range articles.Nodes {
		item, err := napaItem(articles.Eq(i), base, deps)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func napaItem(article *goquery.Selection, base string, deps news.Deps) (news.Item, error) {
	heading := article.Find("h3").First()
	titleLink := heading.Find("a").First()
	link, err := news.ItemLink(titleLink, base)
	if err != nil {
		return news.Item{}, err
	}
	title := text(titleLink)
	if title == "" {
		return news.Item{}, errNoTitle
	}

	posted := strings.Replace(text(article.Find(".date").First()), "Posted on: ", "", 1)
	date, err := news.ParseDatetime(posted, deps.Clock)
	if err != nil {
		return news.Item{}, err
	}

	var tags []string
	article.Find(".category").Each(func(_ int, category *goquery.Selection) {
		tags = append(tags, text(category))
		// drop the link so it stays out of the summary
		if wrapper := category.ParentsFiltered("a").First(); wrapper.Length() > 0 {
			wrapper.Remove()
		} else {
			category.Remove()
		}
	})
	article.Find(".more").Remove()

	var summaries []string
	for n := heading.Get(0).NextSibling; n != nil; n = n.NextSibling {
		var part string
		switch n.Type {
		case html.TextNode:
			part = strings.TrimSpace(n.Data)
		case html.ElementNode:
			part = strings.TrimSpace(htmlutil.GetText(n))
		default:
			continue
		}
		summaries = append(summaries, napaSummaryPrefix.ReplaceAllString(part, ""))
	}

	return news.Item{
		ID:            link,
		URL:           link,
		Title:         title,
		DatePublished: date,
		Summary:       textutil.CollapseSpace(strings.Join(summaries, " ")),
		Tags:          tags,
	}, nil
}
