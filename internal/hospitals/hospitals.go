// Package hospitals reads the hospitalization series California publishes
// per county on data.ca.gov.
package hospitals

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/platforms/ckan"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultBase = "https://data.ca.gov"
	LandingPage = "https://data.ca.gov/dataset/covid-19-hospital-data#"
	ResourceID  = "42d33765-20fd-44b8-a978-b083b7542225"
	pageSize    = "50"
	seriesName  = "Hospitalization"
	baypdMeta   = "This data was pulled from the data.ca.gov CKAN Data API"
)

// countFields are published as floats but always hold whole numbers.
var countFields = []string{
	"all_hospital_beds",
	"hospitalized_covid_confirmed_patients",
	"hospitalized_covid_patients",
	"hospitalized_suspected_covid_patients",
	"icu_available_beds",
	"icu_covid_confirmed_patients",
	"icu_suspected_covid_patients",
}

// Report is the hospitalization series of one county.
type Report struct {
	Name           string           `json:"name"`
	UpdateTime     string           `json:"update_time"`
	SourceURL      string           `json:"source_url"`
	MetaFromBaypd  string           `json:"meta_from_baypd"`
	MetaFromSource any              `json:"meta_from_source"`
	Series         []map[string]any `json:"series"`
}

type Client struct {
	api   ckan.Client
	clock chrono.API
}

func New(http *resty.Client, baseURL string, clock chrono.API) (Client, error) {
	if baseURL == "" {
		baseURL = DefaultBase
	}
	api, err := ckan.New(http, baseURL)
	if err != nil {
		return Client{}, err
	}
	return Client{api: api, clock: clock}, nil
}

// GetCounty reads every record mentioning `county`, a county id like
// "san_mateo" or a name like "San Mateo".
func (c Client) GetCounty(ctx context.Context, county string) (Report, error) {
	name := ckan.TitleCase(county)
	out := Report{
		Name:          fmt.Sprintf("%s - %s County", seriesName, name),
		UpdateTime:    record.FormatTime(c.clock.Now().UTC().Truncate(time.Minute)),
		SourceURL:     LandingPage,
		MetaFromBaypd: baypdMeta,
		Series:        []map[string]any{},
	}

	records := c.api.Data(ctx, ResourceID, ckan.Options{
		YieldMeta: true,
		Q:         name,
		Params:    url.Values{"limit": {pageSize}},
	})
	first := true
	for records.Next() {
		if first {
			out.MetaFromSource = records.Value()["fields"]
			first = false
			continue
		}
		standardized, err := Standardize(records.Value())
		if err != nil {
			return Report{}, err
		}
		out.Series = append(out.Series, standardized)
	}
	if err := records.Err(); err != nil {
		return Report{}, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Standardize renames todays_date to report_date (as an ISO date), drops
// rank, replaces nulls with -1 and converts count fields to integers.
func Standardize(row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}

	raw, ok := out["todays_date"].(string)
	if !ok {
		return nil, upstream.Formatf("hospital record has no todays_date")
	}
	delete(out, "todays_date")
	parsed, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return nil, upstream.Formatf("unparseable todays_date %q", raw)
	}
	out["report_date"] = record.DateOf(parsed)
	delete(out, "rank")

	for k, v := range out {
		if v == nil {
			out[k] = record.Unknown
		}
	}
	for _, field := range countFields {
		v, ok := out[field]
		if !ok {
			continue
		}
		out[field], err = record.ToInt(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
	}
	return out, nil
}
