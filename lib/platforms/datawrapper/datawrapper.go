// Package datawrapper extracts the data behind Datawrapper charts.
package datawrapper

import (
	"baypd-scraper/lib/browser"
	"baypd-scraper/lib/htmlutil"
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/textutil"
	"baypd-scraper/lib/upstream"
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("platforms/datawrapper")

const (
	DefaultCDN    = "https://datawrapper.dwcdn.net"
	dataURLPrefix = "data:"
	dataURLMedia  = "application/octet-stream;charset=utf-8"
)

// DecodeDataURL decodes the href of a chart's .dw-data-link.
func DecodeDataURL(href string) (string, error) {
	if !strings.HasPrefix(href, dataURLPrefix) {
		return "", upstream.Formatf("chart data link is not a data: url")
	}
	media, data, found := strings.Cut(href[len(dataURLPrefix):], ",")
	if !found {
		return "", upstream.Formatf("malformed data: url")
	}
	if media != dataURLMedia {
		return "", upstream.Formatf("cannot parse data with media type %q", media)
	}
	decoded, err := url.QueryUnescape(data)
	if err != nil {
		return "", upstream.Formatf("decode data url: %s", err)
	}
	return decoded, nil
}

// Table is a parsed CSV, rows are keyed by header.
type Table struct {
	Header []string
	Rows   []map[string]string
}

// ParseCSV parses chart data and asserts that its header is exactly
// `expectedHeader`, header cells are trimmed of any kind of space first.
// A nil expectedHeader accepts any header.
func ParseCSV(data string, expectedHeader []string) (Table, error) {
	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, upstream.Formatf("parse csv: %s", err)
	}
	if len(records) == 0 {
		return Table{}, upstream.Formatf("csv is empty")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = textutil.CollapseSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	if expectedHeader != nil && !slices.Equal(header, expectedHeader) {
		return Table{}, upstream.Formatf(
			"csv headers have changed, expected %q, found %q",
			expectedHeader, header,
		)
	}

	table := Table{Header: header}
	for _, record := range records[1:] {
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		row := map[string]string{}
		for i, h := range header {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

var refreshPattern = regexp.MustCompile(`(?i)url=([^"';]+)`)

// FetchDataset downloads the dataset.csv of the latest published version
// of a chart.
func FetchDataset(ctx context.Context, http *resty.Client, cdn, chartID string) (string, error) {
	ctx, span := tracer.Start(ctx, "FetchDataset")
	defer span.End()
	span.SetAttributes(attribute.String("chart", chartID))

	if cdn == "" {
		cdn = DefaultCDN
	}
	chartURL := fmt.Sprintf("%s/%s/", strings.TrimSuffix(cdn, "/"), chartID)

	res, err := http.R().SetContext(ctx).Get(chartURL)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch chart")
		return "", err
	}
	err = httpclient.CheckResponse(res)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	// the unversioned chart url only redirects to the latest version with
	// a meta refresh
	versionURL := chartURL
	doc, err := htmlutil.ParseDocument(res.Body(), res.Header().Get("content-type"))
	if err == nil {
		refresh := doc.Find(`meta[http-equiv="REFRESH"], meta[http-equiv="refresh"]`).AttrOr("content", "")
		if match := refreshPattern.FindStringSubmatch(refresh); match != nil {
			versionURL = htmlutil.ResolveURL(chartURL, strings.TrimSpace(match[1]))
		}
	}
	if !strings.HasSuffix(versionURL, "/") {
		versionURL += "/"
	}

	res, err = http.R().SetContext(ctx).Get(versionURL + "dataset.csv")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch dataset")
		return "", err
	}
	err = httpclient.CheckResponse(res)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return string(res.Body()), nil
}

// FrameSelector matches the iframe of a chart embedded in a page.
func FrameSelector(chartID string) string {
	return fmt.Sprintf(`iframe[src*="//datawrapper.dwcdn.net/%s/"]`, chartID)
}

// FetchRendered reads the chart's data link from inside its iframe on an
// already loaded page. `ctx` must be a browser context (see browser.Launcher).
func FetchRendered(ctx context.Context, chartID string) (string, error) {
	ctx, span := tracer.Start(ctx, "FetchRendered")
	defer span.End()
	span.SetAttributes(attribute.String("chart", chartID))

	frameSrc, err := browser.FrameSource(ctx, FrameSelector(chartID))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("chart iframe %s not found: %w", chartID, err)
	}

	var href string
	var ok bool
	err = browser.InFrame(ctx, frameSrc, func(frameCtx context.Context) error {
		return chromedp.Run(
			frameCtx,
			chromedp.WaitReady(".dw-data-link", chromedp.ByQuery),
			chromedp.AttributeValue(".dw-data-link", "href", &href, &ok, chromedp.ByQuery),
		)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("read data link of chart %s: %w", chartID, err)
	}
	if !ok {
		return "", upstream.Formatf("chart %s has no data link", chartID)
	}
	return DecodeDataURL(href)
}

// NotesInFrame returns the text of the notes blocks under a chart.
func NotesInFrame(ctx context.Context, chartID string) ([]string, error) {
	frameSrc, err := browser.FrameSource(ctx, FrameSelector(chartID))
	if err != nil {
		return nil, fmt.Errorf("chart iframe %s not found: %w", chartID, err)
	}
	var notes []string
	err = browser.InFrame(ctx, frameSrc, func(frameCtx context.Context) error {
		return chromedp.Run(
			frameCtx,
			chromedp.Evaluate(
				`Array.from(document.querySelectorAll("div.notes-block")).map(e => e.innerText)`,
				&notes,
			),
		)
	})
	return notes, err
}
