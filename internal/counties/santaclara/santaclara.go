// Package santaclara reads Santa Clara county data from its Socrata portal.
package santaclara

import (
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
	ID          = "santa_clara"
	DefaultBase = "https://data.sccgov.org/"
	sourceURL   = "https://www.sccgov.org/sites/covid19/Pages/dashboard.aspx"
)

// dataset ids on data.sccgov.org
var datasets = []struct{ name, id string }{
	{"cases", "6cnm-gchg"},
	{"deaths", "tg4j-23y2"},
	{"tests", "dvgc-tzgq"},
	{"cases_by_gender", "ibdk-7rf5"},
	{"cases_by_age", "ige8-ixqu"},
	{"cases_by_race", "ccm2-45w3"},
	{"cases_by_transmission", "xar3-th86"},
	{"deaths_by_gender", "v49w-v4a7"},
	{"deaths_by_age", "pg8z-gbgv"},
	{"deaths_by_race", "nd69-4zii"},
	{"deaths_by_condition", "mejj-pzbm"},
}

func datasetID(name string) string {
	for _, d := range datasets {
		if d.name == name {
			return d.id
		}
	}
	panic("unknown dataset " + name)
}

var notes = []string{
	"Santa Clara does not report pending tests in its data, so series.tests[].pending is always -1.",
	"An \"outbreak\" (in the transmission_cat breakdown) is defined as 3+ cases linked to exposures " +
		"at a particular location or event, usually a workplace.",
	"Santa Clara does not distinguish cases with an unknown transmission vector from community " +
		"spread, so both are categorized as \"unknown\" and \"community\" is set to -1.",
	"In race/ethnicity breakdowns, American Indian/Alaska Native and people who identify as " +
		"multi-racial are included in the \"Other\" category.",
}

var raceKeys = map[string]string{
	"african american": record.AfricanAmer,
	"asian":            record.Asian,
	"latino":           record.LatinxOrHispanic,
	"native hawaiian & other pacific islander": record.PacificIslander,
	"white":   record.White,
	"other":   record.Other,
	"unknown": record.UnknownRace,
}

var transmissionKeys = map[string]string{
	"Outbreak Associated":                     "outbreak_associated",
	"Contact to a Case":                       "from_contact",
	"Travel":                                  "travel",
	"Unknown/Presumed Community Transmission": "unknown",
}

var conditionKeys = map[string]string{
	"1 or more comorbidities": "greater_than_1",
	"none":                    "none",
	"unknown":                 "unknown",
}

type Adapter struct {
	deps adapter.Deps
	api  *socrata.Client
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	return Adapter{
		deps: deps,
		api:  socrata.New(deps.HTTP, deps.Endpoint("socrata", DefaultBase)),
	}
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	out := a.deps.Template.New()
	out.Name = "Santa Clara"
	out.SourceURL = sourceURL
	out.AppendNotes(notes...)

	updated, err := a.latestUpdate(ctx)
	if err != nil {
		return record.County{}, err
	}
	out.UpdateTime = record.FormatTime(updated)

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

	out.CaseTotals, err = a.totals(ctx, "cases", "count")
	if err != nil {
		return record.County{}, fmt.Errorf("case totals: %w", err)
	}
	out.CaseTotals.TransmissionCat, err = a.transmission(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("case totals: %w", err)
	}
	out.DeathTotals, err = a.totals(ctx, "deaths", "counts")
	if err != nil {
		return record.County{}, fmt.Errorf("death totals: %w", err)
	}
	out.DeathTotals.UnderlyingCond, err = a.conditions(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("death totals: %w", err)
	}
	out.NotePlaceholders()
	return out, nil
}

func (a Adapter) latestUpdate(ctx context.Context) (time.Time, error) {
	var latest time.Time
	for _, d := range datasets {
		meta, err := a.api.Metadata(ctx, d.id)
		if err != nil {
			return time.Time{}, fmt.Errorf("metadata %s: %w", d.name, err)
		}
		updated, err := dateparse.ParseIn(meta.DataUpdatedAt, time.UTC)
		if err != nil {
			return time.Time{}, upstream.Formatf("dataUpdatedAt of %s: %q", d.name, meta.DataUpdatedAt)
		}
		if updated.After(latest) {
			latest = updated
		}
	}
	return latest, nil
}

func dateField(row map[string]any, key string) (record.Date, error) {
	raw, ok := row[key].(string)
	if !ok {
		return "", upstream.Formatf("missing %s", key)
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return "", upstream.Formatf("bad %s: %q", key, raw)
	}
	return record.DateOf(t), nil
}

func (a Adapter) cases(ctx context.Context) ([]record.CaseEntry, error) {
	rows, err := a.api.Resource(ctx, datasetID("cases"), url.Values{"$order": {"date ASC"}})
	if err != nil {
		return nil, err
	}
	out := make([]record.CaseEntry, len(rows))
	for i, row := range rows {
		entry := record.NewCaseEntry("")
		if entry.Date, err = dateField(row, "date"); err != nil {
			return nil, err
		}
		if entry.Cases, err = record.Field(row, "new_cases"); err != nil {
			return nil, err
		}
		if entry.CumulCases, err = record.Field(row, "total_cases"); err != nil {
			return nil, err
		}
		out[i] = entry
	}
	return out, nil
}

// deaths uses the "total" column, which sums deaths at long-term care
// facilities and elsewhere.
func (a Adapter) deaths(ctx context.Context) ([]record.DeathEntry, error) {
	rows, err := a.api.Resource(ctx, datasetID("deaths"), url.Values{"$order": {"date ASC"}})
	if err != nil {
		return nil, err
	}
	out := make([]record.DeathEntry, len(rows))
	for i, row := range rows {
		entry := record.NewDeathEntry("")
		if entry.Date, err = dateField(row, "date"); err != nil {
			return nil, err
		}
		if entry.Deaths, err = record.Field(row, "total"); err != nil {
			return nil, err
		}
		if entry.CumulDeaths, err = record.Field(row, "cumulative"); err != nil {
			return nil, err
		}
		out[i] = entry
	}
	return out, nil
}

func (a Adapter) tests(ctx context.Context) ([]record.TestEntry, error) {
	rows, err := a.api.Resource(ctx, datasetID("tests"), url.Values{"$order": {"collection_date ASC"}})
	if err != nil {
		return nil, err
	}
	out := make([]record.TestEntry, len(rows))
	for i, row := range rows {
		date, err := dateField(row, "collection_date")
		if err != nil {
			return nil, err
		}
		entry := record.NewTestEntry(date)
		if entry.Tests, err = record.Field(row, "total"); err != nil {
			return nil, err
		}
		if entry.Positive, err = record.Field(row, "post_rslt"); err != nil {
			return nil, err
		}
		if entry.Negative, err = record.Field(row, "neg_rslt"); err != nil {
			return nil, err
		}
		out[i] = entry
	}
	record.AccumulateTests(out)
	return out, nil
}

// totals reads the gender, age and race breakdowns of `kind` (cases or
// deaths). The datasets disagree on whether the count column is "count" or
// "counts".
func (a Adapter) totals(ctx context.Context, kind, countColumn string) (record.Totals, error) {
	var out record.Totals

	rows, err := a.api.Resource(ctx, datasetID(kind+"_by_gender"), nil)
	if err != nil {
		return out, err
	}
	out.Gender = map[string]record.Count{}
	for _, row := range rows {
		label, _ := row["gender"].(string)
		n, err := record.CountField(row, countColumn)
		if err != nil {
			return out, err
		}
		out.Gender[strings.ToLower(label)] = n
	}
	if err := record.RequireGender(out.Gender, kind); err != nil {
		return out, err
	}

	rows, err = a.api.Resource(ctx, datasetID(kind+"_by_age"), nil)
	if err != nil {
		return out, err
	}
	for _, row := range rows {
		group, _ := row["age_group"].(string)
		n, err := record.CountField(row, "count")
		if err != nil {
			return out, err
		}
		out.AgeGroup = append(out.AgeGroup, record.AgeGroup{Group: group, RawCount: n})
	}

	rows, err = a.api.Resource(ctx, datasetID(kind+"_by_race"), nil)
	if err != nil {
		return out, err
	}
	observed := make([]string, len(rows))
	for i, row := range rows {
		label, _ := row["race_eth"].(string)
		observed[i] = strings.ToLower(label)
	}
	if err := record.AssertKeys(raceKeys, observed, "race/ethnicity labels"); err != nil {
		return out, err
	}
	out.RaceEth = map[string]record.Count{
		// both are counted in Other
		record.NativeAmer:   record.N(record.Unknown),
		record.MultipleRace: record.N(record.Unknown),
	}
	for i, row := range rows {
		n, err := record.CountField(row, countColumn)
		if err != nil {
			return out, err
		}
		out.RaceEth[raceKeys[observed[i]]] = n
	}
	return out, nil
}

func (a Adapter) transmission(ctx context.Context) (map[string]record.Count, error) {
	rows, err := a.api.Resource(ctx, datasetID("cases_by_transmission"), nil)
	if err != nil {
		return nil, err
	}
	observed := make([]string, len(rows))
	for i, row := range rows {
		observed[i], _ = row["category"].(string)
	}
	if err := record.AssertKeys(transmissionKeys, observed, "transmission categories"); err != nil {
		return nil, err
	}
	out := map[string]record.Count{"community": record.N(record.Unknown)}
	for i, row := range rows {
		n, err := record.CountField(row, "counts")
		if err != nil {
			return nil, err
		}
		out[transmissionKeys[observed[i]]] = n
	}
	return out, nil
}

func (a Adapter) conditions(ctx context.Context) (map[string]record.Count, error) {
	rows, err := a.api.Resource(ctx, datasetID("deaths_by_condition"), nil)
	if err != nil {
		return nil, err
	}
	observed := make([]string, len(rows))
	for i, row := range rows {
		label, _ := row["comorbidities"].(string)
		observed[i] = strings.ToLower(label)
	}
	if err := record.AssertKeys(conditionKeys, observed, "comorbidity categories"); err != nil {
		return nil, err
	}
	out := map[string]record.Count{}
	for i, row := range rows {
		n, err := record.CountField(row, "counts")
		if err != nil {
			return nil, err
		}
		out[conditionKeys[observed[i]]] = n
	}
	return out, nil
}
