package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/htmlutil"
	"baypd-scraper/lib/upstream"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const alamedaURL = "https://covid-19.acgov.org/press.page"

// The page sets a cookie from javascript and reloads before the listing shows
// up, so it is read through the browser.
var Alameda = news.PageSource{
	Info: news.Feed{
		Title:       "Alameda County COVID-19 News",
		HomePageURL: alamedaURL,
	},
	URL:      alamedaURL,
	Endpoint: EndpointPage,
	Load:     news.Rendered("#mainCol"),
	Parse:    parseAlameda,
}

// languageNames are the link texts of translated versions of a release.
var languageNames = map[string]bool{
	"english":               true,
	"spanish":               true,
	"espa\u00f1ol":          true,
	"chinese":               true,
	"chinese (simplified)":  true,
	"chinese (traditional)": true,
	"korean":                true,
	"vietnamese":            true,
	"amharic":               true,
	"arabic":                true,
	"farsi":                 true,
	"persian":               true,
	"pashto":                true,
	"urdu":                  true,
}

var errNotNews = errors.New("not a news item")

// Releases have no container element. Each starts with <strong>date</strong>
// and runs until a double <br> or the next dated <strong>.
func parseAlameda(doc *goquery.Document, base string, deps news.Deps) ([]news.Item, error) {
	var items []news.Item
	var err error
	doc.Find("#mainCol strong").EachWithBreak(func(_ int, start *goquery.Selection) bool {
		parser := alamedaParser{deps: deps, base: base}
		var item news.Item
		item, err = parser.parse(start.Get(0))
		if errors.Is(err, errNotNews) {
			deps.Tel.ReportDebug(report_not_news, "text", text(start))
			err = nil
			return true
		}
		if err != nil {
			return false
		}
		if item.URL == "" {
			deps.Tel.ReportWarning(report_no_url, "county", "alameda", "date", item.DatePublished)
			return true
		}
		items = append(items, item)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, upstream.Formatf("no news items found for Alameda County")
	}
	return items, nil
}

type alamedaState int

const (
	stateDate alamedaState = iota
	stateTitle
	stateSummary
	stateLanguages
	stateBreak
)

type alamedaParser struct {
	deps  news.Deps
	base  string
	state alamedaState
	item  news.Item
	done  bool
}

func (p *alamedaParser) dateOf(n *html.Node) (time.Time, bool) {
	date, err := news.ParseDatetime(htmlutil.GetText(n), p.deps.Clock)
	return date, err == nil
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

// nextNode is the node after n in document order.
func nextNode(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	return nextSkipping(n)
}

// nextSkipping is the node after n's subtree in document order.
func nextSkipping(n *html.Node) *html.Node {
	for n != nil {
		if n.NextSibling != nil {
			return n.NextSibling
		}
		n = n.Parent
	}
	return nil
}

func within(n, root *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func (p *alamedaParser) parse(start *html.Node) (news.Item, error) {
	p.state = stateDate
	root := start.Parent
	for n := start; n != nil && within(n, root) && !p.done; {
		if n != start && isElement(n, "strong") {
			if _, ok := p.dateOf(n); ok {
				break
			}
		}

		if p.state == stateDate {
			date, ok := p.dateOf(n)
			if !ok {
				return news.Item{}, errNotNews
			}
			p.item.DatePublished = date
			p.state = stateTitle
			n = nextSkipping(n)
			continue
		}

		p.handle(n)
		n = nextNode(n)
	}
	return p.finish()
}

func (p *alamedaParser) isLanguageLink(n *html.Node) bool {
	if !isElement(n, "a") {
		return false
	}
	return languageNames[strings.ToLower(strings.TrimSpace(htmlutil.GetText(n)))]
}

func href(n *html.Node) string {
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			return attr.Val
		}
	}
	return ""
}

func (p *alamedaParser) handle(n *html.Node) {
	switch p.state {
	case stateTitle, stateSummary:
		switch {
		case isElement(n, "br"):
			p.state = stateBreak
		case p.isLanguageLink(n):
			p.state = stateLanguages
			p.handle(n)
		case isElement(n, "a") && p.state == stateTitle:
			p.item.URL = href(n)
		case n.Type == html.TextNode && p.state == stateTitle:
			p.item.Title += n.Data
		case n.Type == html.TextNode:
			p.item.Summary += n.Data
		}
	case stateLanguages:
		switch {
		case isElement(n, "br"):
			p.state = stateBreak
		case isElement(n, "a") && strings.ToLower(strings.TrimSpace(htmlutil.GetText(n))) == "english":
			p.item.URL = href(n)
		}
	case stateBreak:
		switch {
		case isElement(n, "br"):
			p.done = true
		case strings.TrimSpace(p.item.Title) != "":
			p.state = stateSummary
			p.handle(n)
		default:
			p.state = stateTitle
			p.handle(n)
		}
	}
}

func trimItemText(s string) string {
	return strings.Trim(strings.TrimSpace(s), ":")
}

func (p *alamedaParser) finish() (news.Item, error) {
	if p.item.URL != "" {
		p.item.URL = htmlutil.ResolveURL(p.base, p.item.URL)
	}
	p.item.ID = p.item.URL
	p.item.Title = trimItemText(p.item.Title)
	if p.item.Title == "" {
		return news.Item{}, errNoTitle
	}
	p.item.Summary = trimItemText(p.item.Summary)
	return p.item, nil
}
