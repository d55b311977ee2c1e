// Package sanfrancisco reads San Francisco county data from the DataSF Socrata portal.
package sanfrancisco

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/platforms/socrata"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	ID          = "san_francisco"
	DefaultBase = "https://data.sfgov.org/"
	sourceURL   = "https://data.sfgov.org/stories/s/San-Francisco-COVID-19-Data-and-Reports/fjki-2fab"
)

var resources = []struct{ name, id string }{
	{"cases_deaths_transmission", "tvq9-ec9w"},
	{"gender", "nhy6-gqam"},
	{"age", "sunc-2t3k"},
	{"race_eth", "vqqm-nsqg"},
	{"tests", "nfpa-mg4g"},
}

func resourceID(name string) string {
	for _, r := range resources {
		if r.name == name {
			return r.id
		}
	}
	panic("unknown resource " + name)
}

var notes = []string{
	"SF county reports tests with positive or negative results. Cumulative cases, cumulative deaths, " +
		"cumulative positive tests, cumulative negative tests and cumulative total tests are not " +
		"reported directly and were calculated by BayPD from the daily values.",
	"Race and Ethnicity: individuals are assigned to just one category. Individuals identified as " +
		"'Hispanic or Latino' are assigned 'Latinx_or_Hispanic'. Individuals identified as 'Not Hispanic " +
		"or Latino' are assigned to their race identification. BayPD is not currently reporting deaths " +
		"by demographic groups.",
}

var genderKeys = map[string]string{
	"Female":       "female",
	"Male":         "male",
	"Unknown":      "unknown",
	"Trans Female": "female",
	"Trans Male":   "male",
	"Other":        "other",
}

var raceEthKeys = map[string]string{
	"Hispanic or Latino/a, all races":           record.LatinxOrHispanic,
	"Asian":                                     record.Asian,
	"Black or African American":                 record.AfricanAmer,
	"White":                                     record.White,
	"Native Hawaiian or Other Pacific Islander": record.PacificIslander,
	"Native American":                           record.NativeAmer,
	"Multi-racial":                              record.MultipleRace,
	"Other":                                     record.Other,
	"Unknown":                                   record.UnknownRace,
}

var transmissionKeys = map[string]string{
	"Community":    "community",
	"From Contact": "from_contact",
	"Unknown":      "unknown",
}

type Adapter struct {
	deps adapter.Deps
	api  *socrata.Client
	tel  telemetry.API
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	return Adapter{
		deps: deps,
		api:  socrata.New(deps.HTTP, deps.Endpoint("socrata", DefaultBase)),
		tel:  telemetry.NewScopedAPI("san_francisco", deps.Tel),
	}
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	out := a.deps.Template.New()
	out.Name = "San Francisco County"
	out.SourceURL = sourceURL
	out.AppendNotes(notes...)

	var descriptions []string
	var earliest time.Time
	for _, r := range resources {
		meta, err := a.api.Metadata(ctx, r.id)
		if err != nil {
			return record.County{}, fmt.Errorf("metadata %s: %w", r.name, err)
		}
		descriptions = append(descriptions, meta.Description)
		updated, err := dateparse.ParseIn(meta.DataUpdatedAt, time.UTC)
		if err != nil {
			return record.County{}, upstream.Formatf("dataUpdatedAt of %s: %q", r.name, meta.DataUpdatedAt)
		}
		if earliest.IsZero() || updated.Before(earliest) {
			earliest = updated
		}
	}
	out.MetaFromSource = strings.Join(descriptions, "\n\n")
	out.UpdateTime = record.FormatTime(earliest)

	var err error
	out.Series.Cases, err = a.cases(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("cases: %w", err)
	}
	out.Series.Deaths, err = a.deaths(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("deaths: %w", err)
	}
	out.Series.Tests, err = a.tests(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("tests: %w", err)
	}

	out.CaseTotals.Gender, err = a.gender(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("gender: %w", err)
	}
	out.CaseTotals.AgeGroup, err = a.age(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("age: %w", err)
	}
	out.CaseTotals.TransmissionCat, err = a.transmission(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("transmission: %w", err)
	}
	out.CaseTotals.RaceEth, err = a.raceEth(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("race_eth: %w", err)
	}
	// no death demographics are published
	out.DeathTotals = record.Totals{}
	return out, nil
}

func dateOf(row map[string]any, key string) (record.Date, error) {
	raw, ok := row[key].(string)
	if !ok || len(raw) < 10 {
		return "", upstream.Formatf("bad %s: %v", key, row[key])
	}
	date := record.Date(raw[:10])
	if _, err := date.Time(); err != nil {
		return "", upstream.Formatf("bad %s: %q", key, raw)
	}
	return date, nil
}

func (a Adapter) dailyCounts(ctx context.Context, disposition, column string) ([]record.Joined, error) {
	rows, err := a.api.Resource(ctx, resourceID("cases_deaths_transmission"), url.Values{
		"case_disposition": {disposition},
		"$select":          {fmt.Sprintf("specimen_collection_date as date, sum(case_count) as %s", column)},
		"$group":           {"specimen_collection_date"},
		"$order":           {"specimen_collection_date"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]record.Joined, 0, len(rows))
	for _, row := range rows {
		date, err := dateOf(row, "date")
		if err != nil {
			return nil, err
		}
		count, err := record.Field(row, column)
		if err != nil {
			return nil, err
		}
		out = append(out, record.Joined{Date: date, Daily: count})
	}
	return out, nil
}

func (a Adapter) cases(ctx context.Context) ([]record.CaseEntry, error) {
	daily, err := a.dailyCounts(ctx, "Confirmed", "cases")
	if err != nil {
		return nil, err
	}
	out := make([]record.CaseEntry, len(daily))
	for i, d := range daily {
		out[i] = record.CaseEntry{Date: d.Date, Cases: d.Daily}
	}
	record.SortByDate(out)
	record.AccumulateCases(out)
	return out, nil
}

func (a Adapter) deaths(ctx context.Context) ([]record.DeathEntry, error) {
	daily, err := a.dailyCounts(ctx, "Death", "deaths")
	if err != nil {
		return nil, err
	}
	out := make([]record.DeathEntry, len(daily))
	for i, d := range daily {
		out[i] = record.DeathEntry{Date: d.Date, Deaths: d.Daily}
	}
	record.SortByDate(out)
	record.AccumulateDeaths(out)
	return out, nil
}

// tests has no pending results, those columns stay unknown.
func (a Adapter) tests(ctx context.Context) ([]record.TestEntry, error) {
	rows, err := a.api.Resource(ctx, resourceID("tests"), url.Values{
		"$order": {"specimen_collection_date"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]record.TestEntry, 0, len(rows))
	for _, row := range rows {
		date, err := dateOf(row, "specimen_collection_date")
		if err != nil {
			return nil, err
		}
		entry := record.NewTestEntry(date)
		if entry.Tests, err = record.Field(row, "tests"); err != nil {
			return nil, err
		}
		if entry.Positive, err = record.Field(row, "pos"); err != nil {
			return nil, err
		}
		if entry.Negative, err = record.Field(row, "neg"); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	record.SortByDate(out)
	record.AccumulateTests(out)
	return out, nil
}

// latest returns rows of a demographic dataset on its most recent collection date.
func (a Adapter) latest(ctx context.Context, resource, selectClause string) ([]map[string]any, error) {
	id := resourceID(resource)
	dates, err := a.api.Resource(ctx, id, url.Values{
		"$select": {"max(specimen_collection_date) as date"},
	})
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, upstream.Formatf("%s has no collection dates", resource)
	}
	latest, ok := dates[0]["date"].(string)
	if !ok {
		return nil, upstream.Formatf("%s has no collection dates", resource)
	}
	return a.api.Resource(ctx, id, url.Values{
		"$select": {selectClause},
		"$where":  {fmt.Sprintf("specimen_collection_date=\"%s\"", latest)},
	})
}

func labels(rows []map[string]any, key string) ([]string, error) {
	out := make([]string, len(rows))
	for i, row := range rows {
		label, ok := row[key].(string)
		if !ok {
			return nil, upstream.Formatf("row %d has no %s", i, key)
		}
		out[i] = label
	}
	return out, nil
}

func (a Adapter) gender(ctx context.Context) (map[string]record.Count, error) {
	rows, err := a.latest(ctx, "gender", "gender, cumulative_confirmed_cases as cases")
	if err != nil {
		return nil, err
	}
	observed, err := labels(rows, "gender")
	if err != nil {
		return nil, err
	}
	if err := record.AssertKeys(genderKeys, observed, "genders"); err != nil {
		return nil, err
	}
	totals := map[string]int{}
	for i, row := range rows {
		cases, err := record.Field(row, "cases")
		if err != nil {
			return nil, err
		}
		totals[genderKeys[observed[i]]] += cases
	}
	return record.Counts(totals), nil
}

func (a Adapter) age(ctx context.Context) ([]record.AgeGroup, error) {
	rows, err := a.latest(ctx, "age", "age_group, cumulative_confirmed_cases as cases")
	if err != nil {
		return nil, err
	}
	groups, err := labels(rows, "age_group")
	if err != nil {
		return nil, err
	}
	out := make([]record.AgeGroup, len(rows))
	for i, row := range rows {
		cases, err := record.Field(row, "cases")
		if err != nil {
			return nil, err
		}
		out[i] = record.AgeGroup{Group: groups[i], RawCount: record.N(cases)}
	}
	record.SortAgeGroups(out)
	return out, nil
}

func (a Adapter) raceEth(ctx context.Context) (map[string]record.Count, error) {
	rows, err := a.latest(ctx, "race_eth", "race_ethnicity, cumulative_confirmed_cases as cases")
	if err != nil {
		return nil, err
	}
	observed, err := labels(rows, "race_ethnicity")
	if err != nil {
		return nil, err
	}
	if err := record.AssertKeys(raceEthKeys, observed, "race/ethnicity labels"); err != nil {
		return nil, err
	}
	totals := map[string]int{}
	for _, label := range raceEthKeys {
		totals[label] = 0
	}
	for i, row := range rows {
		cases, err := record.Field(row, "cases")
		if err != nil {
			return nil, err
		}
		totals[raceEthKeys[observed[i]]] += cases
	}
	return record.Counts(totals), nil
}

func (a Adapter) transmission(ctx context.Context) (map[string]record.Count, error) {
	rows, err := a.api.Resource(ctx, resourceID("cases_deaths_transmission"), url.Values{
		"$select": {"transmission_category, sum(case_count)"},
		"$group":  {"transmission_category"},
	})
	if err != nil {
		return nil, err
	}
	observed, err := labels(rows, "transmission_category")
	if err != nil {
		return nil, err
	}
	if err := record.AssertKeys(transmissionKeys, observed, "transmission categories"); err != nil {
		return nil, err
	}
	totals := map[string]int{}
	for i, row := range rows {
		cases, err := record.Field(row, "sum_case_count")
		if err != nil {
			return nil, err
		}
		totals[transmissionKeys[observed[i]]] += cases
	}
	a.tel.ReportDebug("transmission categories", "count", len(totals))
	return record.Counts(totals), nil
}
