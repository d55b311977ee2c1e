package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/upstream"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const contraCostaURL = "https://www.coronavirus.cchealth.org/health-services-updates"

var ContraCosta = news.PageSource{
	Info: news.Feed{
		Title:       "Contra Costa County COVID-19 News",
		HomePageURL: contraCostaURL,
	},
	URL:      contraCostaURL,
	Endpoint: EndpointPage,
	Parse:    parseContraCosta,
}

// permissiveSpace also matches the em quads and zero-width spaces the page
// is sprinkled with.
const permissiveSpace = `[\s\x{2000}-\x{200d}]`

var monthHeading = regexp.MustCompile(strings.ReplaceAll(
	`(?i)^\s*(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{4}\s*$`,
	`\s`, permissiveSpace,
))

// Entries read "title - mm/dd/yyyy", optionally with a "| <language>" link
// before the separator.
var contraCostaEntry = regexp.MustCompile(strings.ReplaceAll(
	`^\s*(.*?)(?:\s*\|\s*\w+)?\s*-\s*(\d+/\d+/\d+)`,
	`\s`, permissiveSpace,
))

func parseContraCosta(doc *goquery.Document, base string, deps news.Deps) ([]news.Item, error) {
	var items []news.Item
	index := 0
	headings := doc.Find("h3").FilterFunction(func(_ int, h *goquery.Selection) bool {
		return monthHeading.MatchString(h.Text())
	})
	for i := range headings.Nodes {
		heading := headings.Eq(i)
		list := heading.NextAllFiltered("ol, ul").First()
		if list.Length() == 0 {
			return nil, upstream.Formatf("no list follows the %q heading", text(heading))
		}

		entries := list.Find("li")
		for j := range entries.Nodes {
			index++
			item, ok, err := contraCostaItem(index, entries.Eq(j), base, deps)
			if err != nil {
				return nil, err
			}
			if ok {
				items = append(items, item)
			}
		}
	}

	if len(items) == 0 {
		return nil, upstream.Formatf("news page had no recognizable news items " +
			"(the site returns an empty page every so often, retrying later usually works)")
	}
	return items, nil
}

func contraCostaItem(index int, article *goquery.Selection, base string, deps news.Deps) (news.Item, bool, error) {
	parts := contraCostaEntry.FindStringSubmatch(article.Text())
	// undated entries are dropped
	if parts == nil {
		return news.Item{}, false, nil
	}

	date, err := news.ParseDatetime(parts[2], deps.Clock)
	if err != nil {
		return news.Item{}, false, fmt.Errorf("article %d: %w", index, err)
	}
	link, err := news.ItemLink(article.Find("a").First(), base)
	if err != nil {
		return news.Item{}, false, fmt.Errorf("article %d: %w", index, err)
	}

	return news.Item{
		ID:            link,
		URL:           link,
		Title:         parts[1],
		DatePublished: date,
	}, true, nil
}
