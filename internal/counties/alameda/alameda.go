// Package alameda reads Alameda county data from the PowerBI reports embedded
// in the county's data page.
package alameda

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/platforms/powerbi"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ID          = "alameda"
	LandingPage = "https://covid-19.acgov.org/data.page"

	casesModel       = 295360
	casesResourceKey = "3a22cb23-cf1a-436e-9a33-511d2edc29f3"
	testsModel       = 296535
	testsResourceKey = "032423d3-f7a4-473b-b50c-bf5518918335"

	combined = "V_Combined_data"
	raceEth  = "V_RaceEth_Rates"
)

var notes = []string{
	"Alameda does not provide a timestamp for their last dataset update, so BayPD uses midnight of the " +
		"latest day in the cases timeseries as a proxy.",
	"Daily tests are a 7-day rolling average. Positive and negative tests are estimated from the 7-day " +
		"rolling positivity rate, cumulative test counts are not reported.",
}

// raceKeys maps the labels of the rates table, the two overall rows are dropped.
var raceKeys = map[string]string{
	"Hispanic/Latino":        record.LatinxOrHispanic,
	"Asian":                  record.Asian,
	"African American/Black": record.AfricanAmer,
	"White":                  record.White,
	"Pacific Islander":       record.PacificIslander,
	"Native American":        record.NativeAmer,
	"Multirace":              record.MultipleRace,
	"Other":                  record.Other,
	"Unknown":                record.UnknownRace,
}

var raceTotals = map[string]bool{
	"Overall":                      true,
	"Overall Known Race/Ethnicity": true,
}

type Adapter struct {
	deps    adapter.Deps
	apiBase string
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	return Adapter{
		deps:    deps,
		apiBase: deps.Endpoint("powerbi", powerbi.DefaultAPIBase),
	}
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	out := a.deps.Template.New()
	out.Name = "Alameda County"
	out.SourceURL = LandingPage
	out.AppendNotes(notes...)

	var err error
	out.MetaFromSource, err = a.meta(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("meta: %w", err)
	}

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
	if len(out.Series.Cases) == 0 {
		return record.County{}, upstream.Formatf("cases timeseries is empty")
	}
	last, err := out.Series.Cases[len(out.Series.Cases)-1].Date.Time()
	if err != nil {
		return record.County{}, err
	}
	out.UpdateTime = record.FormatTime(chrono.MidnightIn(last, a.deps.Clock.Location()))

	for _, t := range []struct {
		totals  *record.Totals
		measure string
		rate    string
	}{
		{&out.CaseTotals, "NumberOfCases", "Cases"},
		{&out.DeathTotals, "NumberOfDeaths", "Deaths"},
	} {
		t.totals.Gender, err = a.gender(ctx, t.measure)
		if err != nil {
			return record.County{}, fmt.Errorf("gender %s: %w", t.measure, err)
		}
		t.totals.AgeGroup, err = a.ageGroups(ctx, t.measure)
		if err != nil {
			return record.County{}, fmt.Errorf("age %s: %w", t.measure, err)
		}
		t.totals.RaceEth, err = a.raceEth(ctx, t.rate)
		if err != nil {
			return record.County{}, fmt.Errorf("race/ethnicity %s: %w", t.rate, err)
		}
	}
	return out, nil
}

func (a Adapter) meta(ctx context.Context) (string, error) {
	exploration, err := powerbi.FetchModelsAndExploration(ctx, a.deps.HTTP, a.apiBase, casesResourceKey)
	if err != nil {
		return "", err
	}
	text, err := powerbi.LongestTextRun(exploration)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(text, ":")), nil
}

func (a Adapter) casesSpec(entity, property string) powerbi.Spec {
	return powerbi.Spec{
		Source:      "v",
		Entity:      entity,
		Property:    property,
		ModelID:     casesModel,
		ResourceKey: casesResourceKey,
		APIBase:     a.apiBase,
	}
}

// measureSpec selects a column and a measure of the combined data table.
func (a Adapter) measureSpec(property, measure string) powerbi.Spec {
	spec := a.casesSpec(combined, property)
	spec.Select = []any{
		powerbi.ColumnSelect("v", combined, property),
		powerbi.Measure("v", combined, measure),
	}
	return spec
}

func (a Adapter) rows(ctx context.Context, spec powerbi.Spec) ([][]any, error) {
	q, err := powerbi.New(a.deps.HTTP, spec)
	if err != nil {
		return nil, err
	}
	return q.Rows(ctx)
}

// pairs keeps the rows that hold both a key and a value.
func pairs(rows [][]any) [][]any {
	return powerbi.CompleteRows(rows, 2)
}

// byDate keys the values of (epoch milliseconds, value) rows by their UTC date.
func byDate(rows [][]any) (map[record.Date]int, error) {
	out := map[record.Date]int{}
	for _, row := range pairs(rows) {
		ms, err := record.ToFloat(row[0])
		if err != nil {
			return nil, err
		}
		value, err := record.ToInt(row[1])
		if err != nil {
			return nil, err
		}
		out[record.DateFromEpochMillis(int64(ms), time.UTC)] = value
	}
	return out, nil
}

func (a Adapter) joined(ctx context.Context, property, dailyMeasure, cumulMeasure string) ([]record.Joined, error) {
	dailyRows, err := a.rows(ctx, a.measureSpec(property, dailyMeasure))
	if err != nil {
		return nil, err
	}
	cumulSpec := a.measureSpec(property, cumulMeasure)
	cumulSpec.Binding = powerbi.BinnedLineSampleBinding(2)
	cumulRows, err := a.rows(ctx, cumulSpec)
	if err != nil {
		return nil, err
	}

	daily, err := byDate(dailyRows)
	if err != nil {
		return nil, err
	}
	cumul, err := byDate(cumulRows)
	if err != nil {
		return nil, err
	}
	return record.JoinDailyCumulative(daily, cumul)
}

func (a Adapter) cases(ctx context.Context) ([]record.CaseEntry, error) {
	joined, err := a.joined(ctx, "DtCreate", "NumberOfCases", "Cumulative Cases")
	if err != nil {
		return nil, err
	}
	out := make([]record.CaseEntry, len(joined))
	for i, j := range joined {
		out[i] = record.CaseEntry{Date: j.Date, Cases: j.Daily, CumulCases: j.Cumul}
	}
	return out, nil
}

func (a Adapter) deaths(ctx context.Context) ([]record.DeathEntry, error) {
	joined, err := a.joined(ctx, "DtDeath", "NumberOfDeaths", "Cumulative Deaths")
	if err != nil {
		return nil, err
	}
	out := make([]record.DeathEntry, len(joined))
	for i, j := range joined {
		out[i] = record.DeathEntry{Date: j.Date, Deaths: j.Daily, CumulDeaths: j.Cumul}
	}
	return out, nil
}

// rolling reads a 7-day rolling measure of the tests report. The first point
// of the window is incomplete and dropped.
func (a Adapter) rolling(ctx context.Context, entity, property string) (map[record.Date]float64, error) {
	spec := powerbi.Spec{
		Source:      "v",
		Entity:      entity,
		Property:    "Date",
		Function:    "Sum",
		ModelID:     testsModel,
		ResourceKey: testsResourceKey,
		APIBase:     a.apiBase,
		Binding:     powerbi.BinnedLineSampleBinding(2),
	}
	spec.Select = []any{
		powerbi.ColumnSelect("v", entity, "Date"),
		powerbi.Aggregation("v", entity, "Sum", property),
	}
	rows, err := a.rows(ctx, spec)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}

	out := map[record.Date]float64{}
	for _, row := range pairs(rows) {
		ms, err := record.ToFloat(row[0])
		if err != nil {
			return nil, err
		}
		value, err := record.ToFloat(row[1])
		if err != nil {
			return nil, err
		}
		out[record.DateFromEpochMillis(int64(ms), time.UTC)] = value
	}
	return out, nil
}

func (a Adapter) tests(ctx context.Context) ([]record.TestEntry, error) {
	totals, err := a.rolling(ctx, "V_Tests_RollingSevenDayAverage", "RollingSevenDayAverage")
	if err != nil {
		return nil, err
	}
	rates, err := a.rolling(ctx, "V_Tests_RollingSevenDayPercentagePositive", "RollingSevenDayPercentagePositiveTests")
	if err != nil {
		return nil, err
	}

	totalDates := make([]string, 0, len(totals))
	for d := range totals {
		totalDates = append(totalDates, string(d))
	}
	rateDates := make([]string, 0, len(rates))
	for d := range rates {
		rateDates = append(rateDates, string(d))
	}
	err = record.AssertEqualSets(totalDates, rateDates, "test total and positivity dates")
	if err != nil {
		return nil, err
	}

	out := make([]record.TestEntry, 0, len(totals))
	for date, total := range totals {
		entry := record.NewTestEntry(date)
		rate := rates[date]
		entry.Tests, entry.Positive, entry.Negative = record.EstimateFromTotal(total, rate)
		entry.Positivity = &rate
		out = append(out, entry)
	}
	record.SortByDate(out)
	return out, nil
}

func (a Adapter) gender(ctx context.Context, measure string) (map[string]record.Count, error) {
	rows, err := a.rows(ctx, a.measureSpec("Gender", measure))
	if err != nil {
		return nil, err
	}
	out := map[string]record.Count{}
	for _, row := range pairs(rows) {
		label := strings.ToLower(strings.TrimSpace(fmt.Sprint(row[0])))
		n, err := record.ToInt(row[1])
		if err != nil {
			return nil, err
		}
		out[label] = record.N(n)
	}
	return out, record.RequireGender(out, "alameda "+measure)
}

func (a Adapter) ageGroups(ctx context.Context, measure string) ([]record.AgeGroup, error) {
	rows, err := a.rows(ctx, a.measureSpec("AgeGroup", measure))
	if err != nil {
		return nil, err
	}
	var out []record.AgeGroup
	for _, row := range pairs(rows) {
		n, err := record.ToInt(row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, record.AgeGroup{Group: fmt.Sprint(row[0]), RawCount: record.N(n)})
	}
	record.SortAgeGroups(out)
	return out, nil
}

// raceEth reads the rates table, whose label column holds indices into the
// D0 value dictionary.
func (a Adapter) raceEth(ctx context.Context, property string) (map[string]record.Count, error) {
	spec := a.casesSpec(raceEth, "RaceEth")
	spec.Select = []any{
		powerbi.ColumnSelect("v", raceEth, "RaceEth"),
		powerbi.Aggregation("v", raceEth, powerbi.DefaultFunction, property),
	}
	q, err := powerbi.New(a.deps.HTTP, spec)
	if err != nil {
		return nil, err
	}
	response, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := powerbi.ResponseRows(response)
	if err != nil {
		return nil, err
	}
	labels, err := powerbi.ValueDict(response, "D0")
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, row := range pairs(rows) {
		index, err := record.ToInt(row[0])
		if err != nil {
			return nil, err
		}
		if index < 0 || index >= len(labels) {
			return nil, upstream.Formatf("race/ethnicity label index %d out of range", index)
		}
		label := strings.TrimSpace(labels[index])
		if raceTotals[label] {
			continue
		}
		n, err := record.ToInt(row[1])
		if err != nil {
			return nil, err
		}
		counts[label] = n
	}

	observed := make([]string, 0, len(counts))
	for label := range counts {
		observed = append(observed, label)
	}
	err = record.AssertKeys(raceKeys, observed, "race/ethnicity labels")
	if err != nil {
		return nil, err
	}
	out := record.NewRaceEth()
	for label, n := range counts {
		out[raceKeys[label]] = record.N(n)
	}
	return out, nil
}
