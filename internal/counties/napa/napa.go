// Package napa reads Napa county data from the county's ArcGIS case list and
// the testing spreadsheet published through livestories.
package napa

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/platforms/arcgis"
	"baypd-scraper/lib/platforms/livestories"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ID               = "napa"
	DefaultArcGIS    = "https://services1.arcgis.com/Ko5rxt00spOfjMqj"
	casesService     = "CaseDataDemographics"
	testsDashboardID = "6014a050c648870017b6dc84"
	sourceURL        = "https://legacy.livestories.com/s/v2/coronavirus-report-for-napa-county-ca/9065d62d-f5a6-445f-b2a9-b7cf30b846dd/"
	// earlier specimen collection dates are data entry mistakes, those cases
	// are dated by their lab result instead
	minimumValidDate = "2019-12-01"
)

var notes = []string{
	"Cases are dated by the time a test specimen was collected. When the specimen collection date " +
		"is unknown, the test result time is used instead.",
	"Napa provides a narrower range of race/ethnicity groups than most other counties. Many groups " +
		"(e.g. African American, Asian, Pacific Islander) are collected under \"Other\".",
	"Napa County does not provide information about comorbidities/underlying conditions or " +
		"methods of transmission.",
	"Test data is only provided on a weekly basis; tests are attributed to the last day of the week " +
		"in which they were taken. Test data is updated on Tuesdays, but a test week is Sunday-Saturday. " +
		"Positive tests are estimated from a weekly positivity rate and are approximate.",
}

var raceKeys = map[string]string{
	"hispanic":           record.LatinxOrHispanic,
	"non-hispanic white": record.White,
	"other":              record.Other,
	"unknown":            record.UnknownRace,
}

type Adapter struct {
	deps        adapter.Deps
	api         arcgis.FeatureServer
	livestories string
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	return Adapter{
		deps:        deps,
		api:         arcgis.NewFeatureServer(deps.HTTP, deps.Endpoint("arcgis", DefaultArcGIS)),
		livestories: deps.Endpoint("livestories", livestories.DefaultBaseURL),
	}
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	out := a.deps.Template.New()
	out.Name = "Napa"
	out.SourceURL = sourceURL
	out.AppendNotes(notes...)

	updated, err := a.latestUpdate(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("update time: %w", err)
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

	out.CaseTotals, err = a.totals(ctx, "*")
	if err != nil {
		return record.County{}, fmt.Errorf("case totals: %w", err)
	}
	out.DeathTotals, err = a.totals(ctx, "DtDeath")
	if err != nil {
		return record.County{}, fmt.Errorf("death totals: %w", err)
	}
	out.NotePlaceholders()
	return out, nil
}

func (a Adapter) query(ctx context.Context, params arcgis.Params) ([]map[string]any, error) {
	return a.api.QueryAll(ctx, casesService, 0, params)
}

func (a Adapter) latestUpdate(ctx context.Context) (time.Time, error) {
	rows, err := a.query(ctx, arcgis.Params{OutFields: "MAX(EditDate_1) as edit_date"})
	if err != nil {
		return time.Time{}, err
	}
	if len(rows) == 0 {
		return time.Time{}, upstream.Formatf("no edit date returned")
	}
	ms, err := record.Field(rows[0], "edit_date")
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)).In(a.deps.Clock.Location()), nil
}

// countsByDate runs a grouped COUNT query and keys the counts by date.
func (a Adapter) countsByDate(ctx context.Context, where, field, alias string) (map[record.Date]int, error) {
	rows, err := a.query(ctx, arcgis.Params{
		Where:                      where,
		OutFields:                  fmt.Sprintf("%s,COUNT(*) AS %s", field, alias),
		GroupByFieldsForStatistics: field,
		OrderByFields:              field + " asc",
	})
	if err != nil {
		return nil, err
	}
	out := map[record.Date]int{}
	for _, row := range rows {
		ms, err := record.Field(row, field)
		if err != nil {
			return nil, err
		}
		count, err := record.Field(row, alias)
		if err != nil {
			return nil, err
		}
		out[record.DateFromEpochMillis(int64(ms), a.deps.Clock.Location())] += count
	}
	return out, nil
}

func sortedDates(counts ...map[record.Date]int) []record.Date {
	seen := map[record.Date]bool{}
	var dates []record.Date
	for _, c := range counts {
		for d := range c {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates
}

// cases merges cases dated by specimen collection with the undated ones,
// which fall back to their lab result date. The county's own cumulative
// column mixes both regimes, so the cumulative series is recomputed.
func (a Adapter) cases(ctx context.Context) ([]record.CaseEntry, error) {
	dated, err := a.countsByDate(ctx,
		fmt.Sprintf("DtLabCollect <> NULL AND DtLabCollect >= '%s'", minimumValidDate),
		"DtLabCollect", "count",
	)
	if err != nil {
		return nil, err
	}
	undated, err := a.countsByDate(ctx,
		fmt.Sprintf("DtLabCollect IS NULL OR DtLabCollect < '%s'", minimumValidDate),
		"DtLabResult", "count",
	)
	if err != nil {
		return nil, err
	}

	dates := sortedDates(dated, undated)
	out := make([]record.CaseEntry, len(dates))
	for i, d := range dates {
		out[i] = record.CaseEntry{Date: d, Cases: dated[d] + undated[d]}
	}
	record.AccumulateCases(out)
	return out, nil
}

func (a Adapter) deaths(ctx context.Context) ([]record.DeathEntry, error) {
	counts, err := a.countsByDate(ctx, "DtDeath <> NULL", "DtDeath", "deaths")
	if err != nil {
		return nil, err
	}
	dates := sortedDates(counts)
	out := make([]record.DeathEntry, len(dates))
	for i, d := range dates {
		out[i] = record.DeathEntry{Date: d, Deaths: counts[d]}
	}
	record.AccumulateDeaths(out)
	return out, nil
}

// tests reads the weekly test counts and positivity rates.
func (a Adapter) tests(ctx context.Context) ([]record.TestEntry, error) {
	dataset, err := livestories.Fetch(ctx, a.deps.HTTP, a.livestories, testsDashboardID)
	if err != nil {
		return nil, err
	}
	counts, err := dataset.ExpectSeries(0, "number of tests")
	if err != nil {
		return nil, err
	}
	rates, err := dataset.ExpectSeries(1, "positivity rate")
	if err != nil {
		return nil, err
	}

	out := make([]record.TestEntry, len(dataset.Categories))
	for i, week := range dataset.Categories {
		end, err := livestories.WeekEnd(week)
		if err != nil {
			return nil, fmt.Errorf("week %d: %w", i, err)
		}
		entry := record.NewTestEntry(record.DateOf(end))
		entry.Tests = record.RoundHalfUp(counts.Data[i].Y)
		rate := rates.Data[i].Y
		entry.Positive = record.RoundHalfUp(float64(entry.Tests) * rate / 100)
		entry.Positivity = &rate
		out[i] = entry
	}
	record.SortByDate(out)
	record.AccumulateTests(out)
	return out, nil
}

// label normalizes a grouping value, null and blank values are "unknown".
func label(row map[string]any, field string) string {
	value, _ := row[field].(string)
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

// ageLabel strips leading zeros from the ages of a group, "05-09" is "5-9".
func ageLabel(group string) string {
	ages := strings.Split(group, "-")
	for i, age := range ages {
		age = strings.TrimLeft(strings.TrimSpace(age), "0")
		if age == "" {
			age = "0"
		}
		ages[i] = age
	}
	return strings.Join(ages, "-")
}

// totals counts every case with a non-null `countBy` field by sex, age group
// and race. "*" counts every case.
func (a Adapter) totals(ctx context.Context, countBy string) (record.Totals, error) {
	var out record.Totals
	grouped := func(field string) (map[string]record.Count, []string, error) {
		rows, err := a.query(ctx, arcgis.Params{
			OutFields:                  fmt.Sprintf("%s,COUNT(%s) AS count", field, countBy),
			GroupByFieldsForStatistics: field,
		})
		if err != nil {
			return nil, nil, err
		}
		counts := map[string]record.Count{}
		var order []string
		for _, row := range rows {
			key := label(row, field)
			n, err := record.CountField(row, "count")
			if err != nil {
				return nil, nil, err
			}
			prev, ok := counts[key]
			if !ok {
				order = append(order, key)
				counts[key] = n
				continue
			}
			counts[key], err = prev.Add(n)
			if err != nil {
				return nil, nil, fmt.Errorf("%s %q: %w", field, key, err)
			}
		}
		return counts, order, nil
	}
	// merge folds the counts of labels that map to the same key.
	merge := func(counts map[string]record.Count, keyOf func(string) string) (map[string]record.Count, error) {
		out := map[string]record.Count{}
		for k, v := range counts {
			key := keyOf(k)
			prev, ok := out[key]
			if !ok {
				out[key] = v
				continue
			}
			var err error
			out[key], err = prev.Add(v)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", key, err)
			}
		}
		return out, nil
	}

	sex, _, err := grouped("Sex")
	if err != nil {
		return out, err
	}
	out.Gender, err = merge(sex, strings.ToLower)
	if err != nil {
		return out, err
	}
	if err := record.RequireGender(out.Gender, "napa"); err != nil {
		return out, err
	}

	ages, order, err := grouped("AgeGroup")
	if err != nil {
		return out, err
	}
	merged, err := merge(ages, ageLabel)
	if err != nil {
		return out, err
	}
	seen := map[string]bool{}
	for _, raw := range order {
		g := ageLabel(raw)
		if seen[g] {
			continue
		}
		seen[g] = true
		out.AgeGroup = append(out.AgeGroup, record.AgeGroup{Group: g, RawCount: merged[g]})
	}
	record.SortAgeGroups(out.AgeGroup)

	races, _, err := grouped("RaceEthn")
	if err != nil {
		return out, err
	}
	lowered, err := merge(races, strings.ToLower)
	if err != nil {
		return out, err
	}
	observed := make([]string, 0, len(lowered))
	for k := range lowered {
		observed = append(observed, k)
	}
	if err := record.AssertKeys(raceKeys, observed, "race/ethnicity labels"); err != nil {
		return out, err
	}
	race := record.NewRaceEth()
	for k, v := range lowered {
		race[raceKeys[k]] = v
	}
	out.RaceEth = race
	return out, nil
}
