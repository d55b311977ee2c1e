package news

import (
	"cmp"
	"encoding/json"
	"encoding/xml"
	"errors"
	"slices"
	"time"
)

const JSONFeedVersion = "https://jsonfeed.org/version/1"

// Item is a single news item. URL, Title and DatePublished are always set by
// the scrapers even though JSON Feed treats them as optional.
type Item struct {
	ID            string
	URL           string
	Title         string
	DatePublished time.Time
	Summary       string
	// DateModified is omitted from every output when zero.
	DateModified time.Time
	// Author may carry the keys name, url and avatar.
	Author map[string]string
	Tags   []string
}

// Feed is the news of one county, items are kept newest first.
type Feed struct {
	Title       string
	HomePageURL string
	FeedURL     string
	Description string
	Icon        string
	Author      map[string]string
	Expired     bool
	Items       []Item
}

// Append adds items and re-sorts the feed by publication date, then id, both
// descending. Dates are often just days, the id keeps runs stable.
func (f *Feed) Append(items ...Item) {
	f.Items = append(f.Items, items...)
	slices.SortStableFunc(f.Items, func(a, b Item) int {
		if c := b.DatePublished.Compare(a.DatePublished); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// FormatDatetime8601 formats t as ISO 8601 with UTC written as "Z".
func FormatDatetime8601(t time.Time) string {
	if t.Nanosecond() != 0 {
		return t.Format("2006-01-02T15:04:05.000000Z07:00")
	}
	return t.Format(time.RFC3339)
}

// FormatDatetime2822 formats t for RSS. Go's layouts are not locale
// dependent so day and month names are always English.
func FormatDatetime2822(t time.Time) string {
	return t.Format(time.RFC1123Z)
}

type simpleItem struct {
	URL  string `json:"url"`
	Text string `json:"text"`
	Date string `json:"date"`
}

type simpleFeed struct {
	NewsItems []simpleItem `json:"newsItems"`
}

func (f Feed) simple() simpleFeed {
	out := simpleFeed{NewsItems: make([]simpleItem, len(f.Items))}
	for i, item := range f.Items {
		out.NewsItems[i] = simpleItem{
			URL:  item.URL,
			Text: item.Title,
			Date: FormatDatetime8601(item.DatePublished),
		}
	}
	return out
}

// FormatJSONSimple renders {"newsItems": [{url, text, date}]}.
func (f Feed) FormatJSONSimple() ([]byte, error) {
	return json.MarshalIndent(f.simple(), "", "  ")
}

// JoinJSONSimple merges several feeds into one simple document, keeping the
// order of the feeds.
func JoinJSONSimple(feeds ...Feed) ([]byte, error) {
	out := simpleFeed{NewsItems: []simpleItem{}}
	for _, f := range feeds {
		out.NewsItems = append(out.NewsItems, f.simple().NewsItems...)
	}
	return json.MarshalIndent(out, "", "  ")
}

type jsonFeedItem struct {
	ID            string            `json:"id"`
	URL           string            `json:"url,omitempty"`
	Title         string            `json:"title,omitempty"`
	DatePublished string            `json:"date_published,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	DateModified  string            `json:"date_modified,omitempty"`
	Author        map[string]string `json:"author,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
}

type jsonFeed struct {
	Version     string            `json:"version"`
	Title       string            `json:"title"`
	HomePageURL string            `json:"home_page_url,omitempty"`
	FeedURL     string            `json:"feed_url,omitempty"`
	Description string            `json:"description,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Author      map[string]string `json:"author,omitempty"`
	Expired     bool              `json:"expired,omitempty"`
	Items       []jsonFeedItem    `json:"items,omitempty"`
}

func optionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return FormatDatetime8601(t)
}

// FormatJSONFeed renders the feed as JSON Feed 1.0, empty fields are left out.
func (f Feed) FormatJSONFeed() ([]byte, error) {
	if f.Title == "" {
		return nil, errors.New("a json feed needs a title")
	}
	out := jsonFeed{
		Version:     JSONFeedVersion,
		Title:       f.Title,
		HomePageURL: f.HomePageURL,
		FeedURL:     f.FeedURL,
		Description: f.Description,
		Icon:        f.Icon,
		Author:      f.Author,
		Expired:     f.Expired,
	}
	for _, item := range f.Items {
		if item.ID == "" {
			return nil, errors.New("every json feed item needs an id")
		}
		out.Items = append(out.Items, jsonFeedItem{
			ID:            item.ID,
			URL:           item.URL,
			Title:         item.Title,
			DatePublished: optionalTime(item.DatePublished),
			Summary:       item.Summary,
			DateModified:  optionalTime(item.DateModified),
			Author:        item.Author,
			Tags:          item.Tags,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

type rssItem struct {
	GUID       string   `xml:"guid"`
	Title      string   `xml:"title"`
	Link       string   `xml:"link"`
	PubDate    string   `xml:"pubDate"`
	Categories []string `xml:"category"`
}

type rssChannel struct {
	Title string `xml:"title"`
	Link  string `xml:"link"`
	// required by RSS 2.0 even when there is nothing to say
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

// FormatRSS renders the feed as an RSS 2.0 document with an xml declaration.
// Publication dates are written in UTC.
func (f Feed) FormatRSS() ([]byte, error) {
	if f.Title == "" {
		return nil, errors.New("an rss feed needs a title")
	}
	if f.HomePageURL == "" {
		return nil, errors.New("an rss feed needs a home page url")
	}
	doc := rssDocument{
		Version: "2.0",
		Channel: rssChannel{
			Title:       f.Title,
			Link:        f.HomePageURL,
			Description: f.Description,
		},
	}
	for _, item := range f.Items {
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			GUID:       item.ID,
			Title:      item.Title,
			Link:       item.URL,
			PubDate:    FormatDatetime2822(item.DatePublished.UTC()),
			Categories: item.Tags,
		})
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}
