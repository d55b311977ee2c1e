// Package livestories reads datasets published through legacy.livestories.com
// dashboards, which proxy Google Sheets as chart series.
package livestories

import (
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/upstream"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("platforms/livestories")

const DefaultBaseURL = "https://legacy.livestories.com"

type Point struct {
	Y float64 `json:"y"`
}

type Series struct {
	Name string  `json:"name"`
	Data []Point `json:"data"`
}

type Dataset struct {
	Categories []string `json:"categories"`
	Series     []Series `json:"series"`
}

// Fetch loads the dataset of a dashboard.
func Fetch(ctx context.Context, http *resty.Client, baseURL, dashID string) (Dataset, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("dash_id", dashID))

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	dataset, err := httpclient.GetJSON[Dataset](
		ctx, http,
		strings.TrimSuffix(baseURL, "/")+"/dataset.json",
		url.Values{"dashId": {dashID}},
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Dataset{}, err
	}
	return dataset, nil
}

// ExpectSeries asserts that series `index` exists, that its name contains
// `contains` (case insensitive) and that it has a value per category.
func (d Dataset) ExpectSeries(index int, contains string) (Series, error) {
	if index >= len(d.Series) {
		return Series{}, upstream.Formatf("dataset has no series %d", index)
	}
	s := d.Series[index]
	if !strings.Contains(strings.ToLower(s.Name), strings.ToLower(contains)) {
		return Series{}, upstream.Formatf("series %d should have been %q, but got %q", index, contains, s.Name)
	}
	if len(s.Data) != len(d.Categories) {
		return Series{}, upstream.Formatf("series %q has %d values for %d categories", s.Name, len(s.Data), len(d.Categories))
	}
	return s, nil
}

// ex. "2020 11/8 - 11/14", the dash may be any kind of dash
var weekPattern = regexp.MustCompile(`^(\d+)\s+(\d+)/(\d+)\s*[-\x{00a0}\x{2010}-\x{2015}]\s*(\d+)/(\d+)`)

// WeekEnd parses a week category label into the last day of the week.
func WeekEnd(label string) (time.Time, error) {
	match := weekPattern.FindStringSubmatch(strings.TrimSpace(label))
	if match == nil {
		return time.Time{}, upstream.Formatf("could not parse week %q", label)
	}
	year, _ := strconv.Atoi(match[1])
	startMonth, _ := strconv.Atoi(match[2])
	month, _ := strconv.Atoi(match[4])
	day, _ := strconv.Atoi(match[5])
	// weeks spanning new year are labelled with the starting year
	if month < startMonth {
		year++
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
