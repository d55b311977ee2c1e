// Package sanmateo reads San Mateo county data from the county's PowerBI
// dashboards, with the deaths timeseries taken from the LA Times county totals.
package sanmateo

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/platforms/powerbi"
	"baypd-scraper/lib/upstream"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	ID          = "san_mateo"
	LandingPage = "https://www.smchealth.org/post/san-mateo-county-covid-19-data-1"
	// LATimesCSV holds the daily county totals collected by the LA Times data desk.
	LATimesCSV = "https://raw.githubusercontent.com/datadesk/california-coronavirus-data/master/latimes-county-totals.csv"

	casesModel       = 275725
	casesResourceKey = "86dc380f-4914-4cff-b2a5-03af9f292bbd"
	testsModel       = 275728
	testsResourceKey = "1b96a93b-9500-44cf-a3ce-942805b455ce"
	countFunction    = "CountNonNull"
	latimesCounty    = "San Mateo"
)

var applicationContext = map[string]any{
	"DatasetId": "aa4631ab-2f78-40f6-b4c4-d2f5f8a89bcc",
	"Sources":   []any{map[string]any{"ReportId": "baf74baa-bdc9-4c71-995a-b996f1d0b7e9"}},
}

var notes = []string{
	"San Mateo does not provide a timestamp for their last dataset update, so BayPD uses midnight of the " +
		"latest day in the cases timeseries as a proxy.",
	"San Mateo does not provide a deaths timeseries. Instead, the deaths timeseries is from data published " +
		"by LA Times, which appears to be built by saving the county's listed total each day. See more on the " +
		"LA Times data at: https://github.com/datadesk/california-coronavirus-data",
}

// fallbackMeta is used when the dashboard's text boxes cannot be read.
const fallbackMeta = "Because of limited testing capacity, the number of cases detected through testing represents " +
	"only a small portion of the total number of likely cases in the County. COVID-19 data are reported as timely, " +
	"accurately, and completely as we have available. Data are updated as we receive information that is more " +
	"complete and will change over time as we learn more. Cases are lab-confirmed COVID-19 cases reported to San " +
	"Mateo County Public Health by providers, commercial laboratories, and academic laboratories, including " +
	"reporting results through the California Reportable Disease Information Exchange. A lab-confirmed case is " +
	"defined as detection of SARS-CoV-2 RNA in a clinical specimen using a molecular amplification detection test. " +
	"Cases are counted by date the lab result was reported. Deaths reported in this dashboard include only San " +
	"Mateo County residents."

var raceKeys = map[string]string{
	"American Indian/Alaska Native": record.NativeAmer,
	"Asian":                         record.Asian,
	"Latino/Hispanic":               record.LatinxOrHispanic,
	"Black":                         record.AfricanAmer,
	"Multirace":                     record.MultipleRace,
	"Other":                         record.Other,
	"Pacific Islander":              record.PacificIslander,
	"White":                         record.White,
	"Unknown":                       record.UnknownRace,
}

// visual names the table behind one dashboard chart.
type visual struct {
	source   string
	entity   string
	property string
}

var (
	casesByDay    = visual{"c", "cases_by_day", "date_result"}
	casesBySex    = visual{"c1", "cases_by_sex", "sex"}
	casesByAge    = visual{"c1", "cases_by_age", "age_cat"}
	casesByRace   = visual{"c", "cases_by_race", "race_cat"}
	deathsBySex   = visual{"d1", "death by sex", "sex"}
	deathsByAge   = visual{"d1", "deaths by age", "age_cat"}
	deathsByRace  = visual{"d", "deaths by race", "race"}
	testsByDay    = visual{"l", "lab_tests_by_day", "early_spec_date"}
	testsSelected = []string{"Positive", "Inconclusive", "Negative"}
)

type Adapter struct {
	deps    adapter.Deps
	apiBase string
	latimes string
	tel     telemetry.API
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	return Adapter{
		deps:    deps,
		apiBase: deps.Endpoint("powerbi", powerbi.DefaultAPIBase),
		latimes: deps.Endpoint("latimes", LATimesCSV),
		tel:     telemetry.NewScopedAPI("san_mateo", deps.Tel),
	}
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	out := a.deps.Template.New()
	out.Name = "San Mateo County"
	out.SourceURL = LandingPage
	out.AppendNotes(notes...)
	out.MetaFromSource = a.meta(ctx)

	var err error
	out.Series.Cases, err = a.cases(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("cases: %w", err)
	}
	if len(out.Series.Cases) == 0 {
		return record.County{}, upstream.Formatf("cases timeseries is empty")
	}
	last, err := out.Series.Cases[len(out.Series.Cases)-1].Date.Time()
	if err != nil {
		return record.County{}, err
	}
	out.UpdateTime = record.FormatTime(chrono.MidnightIn(last, a.deps.Clock.Location()))

	out.Series.Deaths, err = a.deaths(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("deaths: %w", err)
	}
	out.Series.Tests, err = a.tests(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("tests: %w", err)
	}

	for _, t := range []struct {
		totals            *record.Totals
		gender, age, race visual
	}{
		{&out.CaseTotals, casesBySex, casesByAge, casesByRace},
		{&out.DeathTotals, deathsBySex, deathsByAge, deathsByRace},
	} {
		t.totals.Gender, err = a.gender(ctx, t.gender)
		if err != nil {
			return record.County{}, fmt.Errorf("%s: %w", t.gender.entity, err)
		}
		t.totals.AgeGroup, err = a.ageGroups(ctx, t.age)
		if err != nil {
			return record.County{}, fmt.Errorf("%s: %w", t.age.entity, err)
		}
		t.totals.RaceEth, err = a.raceEth(ctx, t.race)
		if err != nil {
			return record.County{}, fmt.Errorf("%s: %w", t.race.entity, err)
		}
	}
	out.NotePlaceholders()
	return out, nil
}

func (a Adapter) meta(ctx context.Context) string {
	exploration, err := powerbi.FetchModelsAndExploration(ctx, a.deps.HTTP, a.apiBase, casesResourceKey)
	if err == nil {
		var text string
		text, err = powerbi.LongestTextRun(exploration)
		if err == nil {
			return text
		}
	}
	a.tel.ReportWarning("meta.text-runs", "err", err)
	return fallbackMeta
}

func (a Adapter) spec(v visual) powerbi.Spec {
	return powerbi.Spec{
		Source:             v.source,
		Entity:             v.entity,
		Property:           v.property,
		Function:           countFunction,
		ModelID:            casesModel,
		ResourceKey:        casesResourceKey,
		APIBase:            a.apiBase,
		ApplicationContext: applicationContext,
	}
}

func (a Adapter) completeRows(ctx context.Context, spec powerbi.Spec) ([][]any, error) {
	q, err := powerbi.New(a.deps.HTTP, spec)
	if err != nil {
		return nil, err
	}
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return powerbi.CompleteRows(rows, len(q.Spec().Select)), nil
}

func (a Adapter) cases(ctx context.Context) ([]record.CaseEntry, error) {
	rows, err := a.completeRows(ctx, a.spec(casesByDay))
	if err != nil {
		return nil, err
	}
	out := make([]record.CaseEntry, 0, len(rows))
	for _, row := range rows {
		ms, err := record.ToFloat(row[0])
		if err != nil {
			return nil, err
		}
		cases, err := record.ToInt(row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, record.CaseEntry{
			Date:  record.DateFromEpochMillis(int64(ms), time.UTC),
			Cases: cases,
		})
	}
	record.SortByDate(out)
	record.AccumulateCases(out)
	return out, nil
}

func (a Adapter) tests(ctx context.Context) ([]record.TestEntry, error) {
	spec := a.spec(testsByDay)
	spec.Function = "Sum"
	spec.ModelID = testsModel
	spec.ResourceKey = testsResourceKey
	spec.Select = []any{powerbi.ColumnSelect(testsByDay.source, testsByDay.entity, testsByDay.property)}
	for _, property := range testsSelected {
		spec.Select = append(spec.Select, powerbi.Aggregation(testsByDay.source, testsByDay.entity, spec.Function, property))
	}
	spec.Binding = powerbi.SampleBinding(len(spec.Select))

	rows, err := a.completeRows(ctx, spec)
	if err != nil {
		return nil, err
	}
	out := make([]record.TestEntry, 0, len(rows))
	for _, row := range rows {
		ms, err := record.ToFloat(row[0])
		if err != nil {
			return nil, err
		}
		var counts [3]int
		for i := range counts {
			counts[i], err = record.ToInt(row[i+1])
			if err != nil {
				return nil, err
			}
		}
		positive, pending, negative := counts[0], counts[1], counts[2]

		entry := record.NewTestEntry(record.DateFromEpochMillis(int64(ms), time.UTC))
		entry.Positive = positive
		entry.Negative = negative
		entry.Pending = pending
		entry.Tests = positive + negative + pending
		out = append(out, entry)
	}
	record.SortByDate(out)
	record.AccumulateTests(out)
	return out, nil
}

// deaths reads the LA Times county totals, which track the death count the
// county dashboard showed on each day.
func (a Adapter) deaths(ctx context.Context) ([]record.DeathEntry, error) {
	res, err := a.deps.HTTP.R().SetContext(ctx).Get(a.latimes)
	if err != nil {
		return nil, err
	}
	err = httpclient.CheckResponse(res)
	if err != nil {
		return nil, err
	}
	return ParseLATimes(bytes.NewReader(res.Body()), latimesCounty)
}

// ParseLATimes reads the deaths series of `county` from the LA Times county
// totals csv. Cumulative deaths must be the running sum of new deaths.
func ParseLATimes(r io.Reader, county string) ([]record.DeathEntry, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, upstream.Formatf("latimes csv has no header: %s", err)
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"date", "county", "deaths", "new_deaths"} {
		if _, ok := columns[name]; !ok {
			return nil, upstream.Formatf("latimes csv has no %q column", name)
		}
	}
	count := func(row []string, column string) (int, error) {
		text := strings.TrimSpace(row[columns[column]])
		if text == "" {
			return 0, nil
		}
		return record.ParseInt(text)
	}

	var out []record.DeathEntry
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, upstream.Formatf("latimes csv: %s", err)
		}
		if row[columns["county"]] != county {
			continue
		}
		date, err := record.ParseDate(time.DateOnly, row[columns["date"]])
		if err != nil {
			return nil, err
		}
		deaths, err := count(row, "new_deaths")
		if err != nil {
			return nil, err
		}
		cumul, err := count(row, "deaths")
		if err != nil {
			return nil, err
		}
		out = append(out, record.DeathEntry{Date: date, Deaths: deaths, CumulDeaths: cumul})
	}
	record.SortByDate(out)

	total := 0
	for _, entry := range out {
		total += entry.Deaths
		if total != entry.CumulDeaths {
			return nil, upstream.Formatf("death totals do not match on %s: %d new deaths add up to %d, not %d",
				entry.Date, entry.Deaths, total, entry.CumulDeaths)
		}
	}
	return out, nil
}

func (a Adapter) gender(ctx context.Context, v visual) (map[string]record.Count, error) {
	rows, err := a.completeRows(ctx, a.spec(v))
	if err != nil {
		return nil, err
	}
	out := map[string]record.Count{}
	for _, row := range rows {
		n, err := record.CountOf(row[1])
		if err != nil {
			return nil, err
		}
		out[strings.ToLower(strings.TrimSpace(fmt.Sprint(row[0])))] = n
	}
	return out, record.RequireGender(out, v.entity)
}

func (a Adapter) ageGroups(ctx context.Context, v visual) ([]record.AgeGroup, error) {
	rows, err := a.completeRows(ctx, a.spec(v))
	if err != nil {
		return nil, err
	}
	var out []record.AgeGroup
	for _, row := range rows {
		n, err := record.CountOf(row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, record.AgeGroup{Group: strings.TrimSpace(fmt.Sprint(row[0])), RawCount: n})
	}
	record.SortAgeGroups(out)
	return out, nil
}

func (a Adapter) raceEth(ctx context.Context, v visual) (map[string]record.Count, error) {
	rows, err := a.completeRows(ctx, a.spec(v))
	if err != nil {
		return nil, err
	}
	counts := map[string]record.Count{}
	observed := make([]string, 0, len(rows))
	for _, row := range rows {
		label := strings.TrimSpace(fmt.Sprint(row[0]))
		n, err := record.CountOf(row[1])
		if err != nil {
			return nil, err
		}
		if prev, ok := counts[label]; ok {
			n, err = prev.Add(n)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
		}
		counts[label] = n
		observed = append(observed, label)
	}
	err = record.AssertKnown(raceKeys, observed, v.entity+" labels")
	if err != nil {
		return nil, err
	}
	out := record.NewRaceEth()
	for label, n := range counts {
		out[raceKeys[label]] = n
	}
	return out, nil
}
