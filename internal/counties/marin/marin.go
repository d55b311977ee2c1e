// Package marin reads Marin county data from the Datawrapper charts embedded
// in the county's surveillance dashboard.
package marin

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/browser"
	"baypd-scraper/lib/htmlutil"
	"baypd-scraper/lib/platforms/datawrapper"
	"baypd-scraper/lib/textutil"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	ID           = "marin"
	DashboardURL = "https://coronavirus.marinhhs.org/surveillance"
	dateLayout   = "1/2/2006"
	metaSelector = "div.surveillance-data-text p"
)

const (
	casesChart  = "Eq6Es"
	deathsChart = "bSxdG"
	ageChart    = "zSHDs"
	genderChart = "FEciW"
	raceChart   = "aBeEd"
	testsChart  = "7sHQq"
)

var chartIDs = []string{casesChart, deathsChart, ageChart, genderChart, raceChart, testsChart}

var headers = map[string][]string{
	casesChart:  {"Date", "Total Cases", "Total Recovered*"},
	deathsChart: {"Event Date", "Total Hospitalizations", "Total Deaths"},
	ageChart:    {"Age Category", "POPULATION", "Cases", "Hospitalizations", "Deaths"},
	genderChart: {"Gender", "POPULATION", "Cases", "Hospitalizations", "Deaths"},
	raceChart: {
		"Race/Ethnicity", "COUNTY POPULATION", "Cases", "Case Percent",
		"Hospitalizations", "Hospitalizations Percent", "Deaths", "Deaths Percent",
	},
	testsChart: {"Test Date", "Positive Tests"},
}

var testNotes = []string{
	"Negative and pending tests are excluded from the Marin County test data.",
	"Note that this test data is about tests done by Marin County residents, not about all tests done in " +
		"Marin County (includes residents and non-residents).",
}

var notes = []string{
	"Marin publishes a single \"Multi or Other Race\" group, it is reported as Other and Multiple_Race is -1.",
	"Marin does not publish an update time, BayPD uses the time the dashboard was read.",
}

var ageKeys = map[string]string{
	"0-9":   "0_to_9",
	"10-18": "10_to_18",
	"19-34": "19_to_34",
	"35-49": "35_to_49",
	"50-64": "50_to_64",
	"65-79": "65_to_79",
	"80-94": "80_to_94",
	"95+":   "95_and_older",
}

var genderKeys = map[string]bool{"male": true, "female": true}

var raceKeys = map[string]string{
	"Black/African American":           record.AfricanAmer,
	"Hispanic/Latino":                  record.LatinxOrHispanic,
	"White":                            record.White,
	"Asian":                            record.Asian,
	"Native Hawaiian/Pacific Islander": record.PacificIslander,
	"American Indian/Alaska Native":    record.NativeAmer,
	"Multi or Other Race":              record.Other,
}

// dashboard is what one read of the dashboard produces: the csv of each
// chart, the page's explanatory paragraphs and the notes under the charts.
type dashboard struct {
	csv        map[string]string
	page       *goquery.Document
	chartNotes []string
}

type Adapter struct {
	deps adapter.Deps
	cdn  string
	page string
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	return Adapter{
		deps: deps,
		cdn:  deps.Endpoint("datawrapper", datawrapper.DefaultCDN),
		page: deps.Endpoint("page", DashboardURL),
	}
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	var d dashboard
	var err error
	if a.deps.Options.MarinRendered {
		d, err = a.rendered(ctx)
	} else {
		d, err = a.tabular(ctx)
	}
	if err != nil {
		return record.County{}, err
	}

	out := a.deps.Template.New()
	out.Name = "Marin County"
	out.SourceURL = DashboardURL
	out.UpdateTime = record.FormatTime(a.deps.Clock.Now())
	out.AppendNotes(notes...)
	out.MetaFromSource, err = meta(d)
	if err != nil {
		return record.County{}, err
	}

	tables := map[string]datawrapper.Table{}
	for _, id := range chartIDs {
		tables[id], err = datawrapper.ParseCSV(d.csv[id], headers[id])
		if err != nil {
			return record.County{}, fmt.Errorf("chart %s: %w", id, err)
		}
	}

	out.Series.Cases, err = cases(tables[casesChart])
	if err != nil {
		return record.County{}, fmt.Errorf("cases: %w", err)
	}
	out.Series.Deaths, err = deaths(tables[deathsChart])
	if err != nil {
		return record.County{}, fmt.Errorf("deaths: %w", err)
	}
	out.Series.Tests, err = tests(tables[testsChart])
	if err != nil {
		return record.County{}, fmt.Errorf("tests: %w", err)
	}
	out.CaseTotals.AgeGroup, out.DeathTotals.AgeGroup, err = ageGroups(tables[ageChart])
	if err != nil {
		return record.County{}, fmt.Errorf("age: %w", err)
	}
	out.CaseTotals.Gender, out.DeathTotals.Gender, err = gender(tables[genderChart])
	if err != nil {
		return record.County{}, fmt.Errorf("gender: %w", err)
	}
	out.CaseTotals.RaceEth, out.DeathTotals.RaceEth, err = raceEth(tables[raceChart])
	if err != nil {
		return record.County{}, fmt.Errorf("race/ethnicity: %w", err)
	}
	out.NotePlaceholders()
	return out, nil
}

// tabular downloads each chart's published dataset.
func (a Adapter) tabular(ctx context.Context) (dashboard, error) {
	page, err := htmlutil.FetchDocument(ctx, a.deps.HTTP, a.page)
	if err != nil {
		return dashboard{}, fmt.Errorf("dashboard: %w", err)
	}
	d := dashboard{csv: map[string]string{}, page: page}
	for _, id := range chartIDs {
		d.csv[id], err = datawrapper.FetchDataset(ctx, a.deps.HTTP, a.cdn, id)
		if err != nil {
			return dashboard{}, fmt.Errorf("chart %s: %w", id, err)
		}
	}
	return d, nil
}

// rendered loads the dashboard in the browser and reads the data link of
// every chart iframe.
func (a Adapter) rendered(ctx context.Context) (dashboard, error) {
	d := dashboard{csv: map[string]string{}}
	err := a.deps.Browser.Run(ctx, func(ctx context.Context) error {
		html, err := browser.RenderedHTML(ctx, a.page, metaSelector)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		d.page, err = goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return err
		}
		for _, id := range chartIDs {
			d.csv[id], err = datawrapper.FetchRendered(ctx, id)
			if err != nil {
				return err
			}
			chartNotes, err := datawrapper.NotesInFrame(ctx, id)
			if err != nil {
				return err
			}
			d.chartNotes = append(d.chartNotes, chartNotes...)
		}
		return nil
	})
	return d, err
}

// meta joins the dashboard's paragraphs, the chart notes and the notes on
// tests, without repeats.
func meta(d dashboard) (string, error) {
	paragraphs := d.page.Find(metaSelector)
	if paragraphs.Length() == 0 {
		return "", upstream.Formatf("metadata location has changed")
	}
	var all []string
	paragraphs.Each(func(_ int, s *goquery.Selection) {
		all = append(all, textutil.CollapseSpace(s.Text()))
	})
	for _, note := range d.chartNotes {
		all = append(all, textutil.CollapseSpace(note))
	}
	all = append(all, testNotes...)

	seen := map[string]bool{}
	var out []string
	for _, text := range all {
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}
	return strings.Join(out, "\n\n"), nil
}

func date(row map[string]string, column string) (record.Date, error) {
	return record.ParseDate(dateLayout, row[column])
}

func count(row map[string]string, column string) (int, error) {
	n, err := record.ParseInt(row[column])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	return n, nil
}

// breakdown reads a demographic count, which may be suppressed.
func breakdown(row map[string]string, column string) (record.Count, error) {
	n, err := record.ParseCount(row[column])
	if err != nil {
		return record.Count{}, fmt.Errorf("%s: %w", column, err)
	}
	return n, nil
}

// cumulative reads a cumulative column and derives daily values by first
// difference, the first day's daily value is 0.
func cumulative(t datawrapper.Table, dateColumn, column string) ([]record.Date, []int, []int, error) {
	dates := make([]record.Date, len(t.Rows))
	cumul := make([]int, len(t.Rows))
	daily := make([]int, len(t.Rows))
	for i, row := range t.Rows {
		var err error
		dates[i], err = date(row, dateColumn)
		if err != nil {
			return nil, nil, nil, err
		}
		cumul[i], err = count(row, column)
		if err != nil {
			return nil, nil, nil, err
		}
		if i > 0 {
			daily[i] = cumul[i] - cumul[i-1]
		}
	}
	return dates, daily, cumul, nil
}

func cases(t datawrapper.Table) ([]record.CaseEntry, error) {
	dates, daily, cumul, err := cumulative(t, "Date", "Total Cases")
	if err != nil {
		return nil, err
	}
	out := make([]record.CaseEntry, len(dates))
	for i := range dates {
		out[i] = record.CaseEntry{Date: dates[i], Cases: daily[i], CumulCases: cumul[i]}
	}
	return out, nil
}

func deaths(t datawrapper.Table) ([]record.DeathEntry, error) {
	dates, daily, cumul, err := cumulative(t, "Event Date", "Total Deaths")
	if err != nil {
		return nil, err
	}
	out := make([]record.DeathEntry, len(dates))
	for i := range dates {
		out[i] = record.DeathEntry{Date: dates[i], Deaths: daily[i], CumulDeaths: cumul[i]}
	}
	return out, nil
}

// tests only holds positive tests.
func tests(t datawrapper.Table) ([]record.TestEntry, error) {
	out := make([]record.TestEntry, 0, len(t.Rows))
	cumulPos := 0
	for _, row := range t.Rows {
		day, err := date(row, "Test Date")
		if err != nil {
			return nil, err
		}
		positive, err := count(row, "Positive Tests")
		if err != nil {
			return nil, err
		}
		cumulPos += positive
		entry := record.NewTestEntry(day)
		entry.Positive = positive
		entry.CumulPos = cumulPos
		out = append(out, entry)
	}
	return out, nil
}

func labels(t datawrapper.Table, column string) []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[column]
	}
	return out
}

func ageGroups(t datawrapper.Table) ([]record.AgeGroup, []record.AgeGroup, error) {
	err := record.AssertKnown(ageKeys, labels(t, "Age Category"), "age groups")
	if err != nil {
		return nil, nil, err
	}
	var cases, deaths []record.AgeGroup
	for _, row := range t.Rows {
		group := ageKeys[row["Age Category"]]
		c, err := breakdown(row, "Cases")
		if err != nil {
			return nil, nil, err
		}
		d, err := breakdown(row, "Deaths")
		if err != nil {
			return nil, nil, err
		}
		cases = append(cases, record.AgeGroup{Group: group, RawCount: c})
		deaths = append(deaths, record.AgeGroup{Group: group, RawCount: d})
	}
	return cases, deaths, nil
}

func gender(t datawrapper.Table) (map[string]record.Count, map[string]record.Count, error) {
	observed := labels(t, "Gender")
	for i := range observed {
		observed[i] = strings.ToLower(observed[i])
	}
	err := record.AssertKnown(genderKeys, observed, "genders")
	if err != nil {
		return nil, nil, err
	}
	cases := map[string]record.Count{}
	deaths := map[string]record.Count{}
	for i, row := range t.Rows {
		c, err := breakdown(row, "Cases")
		if err != nil {
			return nil, nil, err
		}
		d, err := breakdown(row, "Deaths")
		if err != nil {
			return nil, nil, err
		}
		cases[observed[i]] = c
		deaths[observed[i]] = d
	}
	return cases, deaths, record.RequireGender(cases, "marin")
}

func raceEth(t datawrapper.Table) (map[string]record.Count, map[string]record.Count, error) {
	err := record.AssertKnown(raceKeys, labels(t, "Race/Ethnicity"), "race/ethnicity groups")
	if err != nil {
		return nil, nil, err
	}
	cases := record.NewRaceEth()
	deaths := record.NewRaceEth()
	for _, row := range t.Rows {
		key := raceKeys[row["Race/Ethnicity"]]
		c, err := breakdown(row, "Cases")
		if err != nil {
			return nil, nil, err
		}
		d, err := breakdown(row, "Deaths")
		if err != nil {
			return nil, nil, err
		}
		cases[key] = c
		deaths[key] = d
	}
	return cases, deaths, nil
}
