package sources

import (
	"baypd-scraper/internal/news"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

const santaClaraURL = "https://www.sccgov.org/sites/phd/news/Pages/newsroom.aspx"

var SantaClara = news.PageSource{
	Info: news.Feed{
		Title:       "Santa Clara County COVID-19 News",
		HomePageURL: santaClaraURL,
	},
	URL:      santaClaraURL,
	Endpoint: EndpointPage,
	Load:     loadSantaClara,
	Parse:    parseSantaClara,
}

const (
	santaClaraArticle = ".view-news article"
	santaClaraNext    = ".pager__item--next"
	santaClaraLoading = ".ajax-progress"
)

// loadSantaClara pages through the newsroom until it reaches items older than
// the window, the sources of every page are concatenated.
func loadSantaClara(ctx context.Context, deps news.Deps, pageURL string, window news.Window) (string, error) {
	var pages []string
	err := deps.Browser.Run(ctx, func(ctx context.Context) error {
		err := chromedp.Run(ctx,
			chromedp.Navigate(pageURL),
			chromedp.WaitVisible(santaClaraArticle, chromedp.ByQuery),
		)
		if err != nil {
			return err
		}

		for {
			var page string
			var stamps []string
			err := chromedp.Run(ctx,
				chromedp.OuterHTML("html", &page, chromedp.ByQuery),
				chromedp.Evaluate(
					`Array.from(document.querySelectorAll(".view-news article time")).map(t => t.getAttribute("datetime"))`,
					&stamps,
				),
			)
			if err != nil {
				return err
			}
			pages = append(pages, page)
			if len(stamps) == 0 {
				return upstream.Formatf("page did not load properly: %s", pageURL)
			}

			earliest, err := news.ParseDatetime(stamps[len(stamps)-1], deps.Clock)
			if err != nil {
				return err
			}
			if window.From.IsZero() || !window.From.Before(earliest) {
				return nil
			}

			var next []*cdp.Node
			err = chromedp.Run(ctx, chromedp.Nodes(santaClaraNext, &next, chromedp.ByQuery, chromedp.AtLeast(0)))
			if err != nil {
				return err
			}
			if len(next) == 0 {
				return nil
			}

			deps.Tel.ReportDebug(report_next_page, "county", "santa_clara", "earliest", earliest)
			err = chromedp.Run(ctx,
				chromedp.Click(santaClaraNext+" a", chromedp.ByQuery),
				chromedp.WaitNotPresent(santaClaraLoading, chromedp.ByQuery),
				chromedp.WaitVisible(santaClaraArticle, chromedp.ByQuery),
			)
			if err != nil {
				return err
			}
		}
	})
	return strings.Join(pages, ""), err
}

func parseSantaClara(doc *goquery.Document, base string, deps news.Deps) ([]news.Item, error) {
	articles := doc.Find(santaClaraArticle)
	items := make([]news.Item, 0, articles.Length())
	for i := range articles.Nodes {
		article := articles.Eq(i)
		titleLink := article.Find("a").First()
		link, err := news.ItemLink(titleLink, base)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		title, err := titleOf(titleLink, i)
		if err != nil {
			return nil, err
		}

		stamp, _ := article.Find("time").First().Attr("datetime")
		date, err := news.ParseDatetime(stamp, deps.Clock)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}

		var tags []string
		if category := text(article.Find(".coh-column").Eq(1)); category != "" {
			tags = []string{category}
		}

		items = append(items, news.Item{
			ID:            link,
			URL:           link,
			Title:         title,
			DatePublished: date,
			Tags:          tags,
		})
	}
	return items, nil
}
