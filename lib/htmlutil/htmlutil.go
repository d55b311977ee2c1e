package htmlutil

import (
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/textutil"
	"bytes"
	"context"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

var tracer = otel.Tracer("baypd.lib.htmlutil")

// ParseDocument decodes `body` using the charset given by the content type
// (or sniffed from the markup) and parses it as html.
func ParseDocument(body []byte, contentType string) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(reader)
}

// ParseReader is ParseDocument for streamed bodies.
func ParseReader(r io.Reader, contentType string) (*goquery.Document, error) {
	reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(reader)
}

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	if node.Type == html.ElementNode && node.Data == "br" {
		buffer.WriteByte('\n')
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// CleanText is the visible text of a selection with whitespace runs
// (including unicode spaces) collapsed.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
		buffer.WriteByte(' ')
	}
	return textutil.CollapseSpace(buffer.String())
}

type Anchor struct {
	Name string
	Href string
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || c == '\n' {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// GetAnchors collects the anchors under `sel`, resolving every href against
// `base` when it is not nil. Anchors without a parsable href are skipped.
func GetAnchors(ctx context.Context, base *url.URL, sel *goquery.Selection) []Anchor {
	_, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}
		if base != nil {
			link = base.ResolveReference(link)
		}

		name := GetText(n)
		name = removeNonPrintable(name)
		name = strings.Trim(name, " \t\n")
		name = innerWhitespace.ReplaceAllString(name, " ")

		linkStr := link.String()
		anchors = append(anchors, Anchor{
			Name: name,
			Href: linkStr,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", linkStr),
		))
	}

	return anchors
}

// ResolveURL resolves `href` relative to `base`, returning `href` unchanged
// when either fails to parse.
func ResolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// Table is the text content of an html table, header cells first.
type Table struct {
	Caption string
	Header  []string
	Rows    [][]string
}

// ParseTable reads a <table> element. Header cells are taken from the
// thead, or from the first row when it only contains <th> cells.
func ParseTable(table *goquery.Selection) Table {
	out := Table{
		Caption: CleanText(table.Find("caption").First()),
	}
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := []string{}
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, CleanText(cell))
		})
		if len(cells) == 0 {
			return
		}
		isHeader := row.ParentsFiltered("thead").Length() > 0 ||
			(row.Find("td").Length() == 0 && len(out.Header) == 0 && len(out.Rows) == 0)
		if isHeader && len(out.Header) == 0 {
			out.Header = cells
			return
		}
		out.Rows = append(out.Rows, cells)
	})
	return out
}

// FetchDocument GETs `endpoint` and parses the response as html.
func FetchDocument(ctx context.Context, client *resty.Client, endpoint string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "FetchDocument")
	defer span.End()
	span.SetAttributes(attribute.String("url", endpoint))

	res, err := client.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	err = httpclient.CheckResponse(res)
	if err != nil {
		span.SetStatus(codes.Error, "bad status")
		return nil, err
	}
	doc, err := ParseDocument(res.Body(), res.Header().Get("content-type"))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}
	doc.Url = res.RawResponse.Request.URL
	return doc, nil
}
