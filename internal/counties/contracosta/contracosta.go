// Package contracosta reads Contra Costa county data from the charts of the
// county's Qlik dashboard.
package contracosta

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/platforms/qlik"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/araddon/dateparse"
)

const (
	ID          = "contra_costa"
	DefaultQlik = "wss://dashboard.cchealth.org/app/"
	DocumentID  = "b7d7f869-fb91-4950-9262-0b89473ceed6"
	sourceURL   = "https://www.coronavirus.cchealth.org/overview"
)

// Chart ids are found in the getObject calls of
// https://dashboard.cchealth.org/extensions/COVIDDashboard/Overview.js
const (
	newCasesChart   = "cWjnGdK"
	totalCasesChart = "jWjFxe"
	deathsChart     = "zKvfuW"
	totalTestsChart = "ejpTS"
	positivityChart = "VapZPL"

	casesByGenderChart    = "tAqmEW"
	casesByAgeChart       = "mmXYJhJ"
	casesByRaceChart      = "ppmdr"
	casesByEthnicityChart = "PEqthPy"

	deathsByGenderChart    = "KHwxYe"
	deathsByAgeChart       = "pWrYQeL"
	deathsByRaceChart      = "LjJk"
	deathsByEthnicityChart = "ffcHDa"
)

var notes = []string{
	"Positive test counts are not published by the county, so they are estimated from daily positivity rates. " +
		"Positivity rates are not published for dates as early as some tests are, so positive test counts " +
		"before 2020-03-18 may incorrectly show 0.",
	"Unlike other counties, Contra Costa separates hispanic ethnicity from racial demographics, so \"latinx\" is " +
		"not included in `case_totals.race_eth` or `death_totals.race_eth`. Latinx vs. non-latinx is shown in " +
		"separate `case_totals.ethnicity` and `death_totals.ethnicity` groupings.",
	"Contra Costa also does not tally native american or pacific islander as races, and they are instead " +
		"included as \"other\".",
	"Demographic information is not available for tests.",
}

var raceKeys = map[string]string{
	"asian":                     record.Asian,
	"black or african american": record.AfricanAmer,
	"multiple races":            record.MultipleRace,
	"other":                     record.Other,
	"white":                     record.White,
	"unknown":                   record.UnknownRace,
}

var ethnicityKeys = map[string]string{
	"hispanic or latino":     record.LatinxOrHispanic,
	"not hispanic or latino": record.Other,
	"unknown":                record.UnknownRace,
}

type Adapter struct {
	deps adapter.Deps
	base string
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	return Adapter{
		deps: deps,
		base: deps.Endpoint("qlik", DefaultQlik),
	}
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	var out record.County
	err := qlik.WithSession(ctx, a.base, DocumentID, qlik.Options{}, a.deps.Tel, func(c *qlik.Client) error {
		// otherwise every label comes in both English and Spanish
		err := c.SelectFieldValue(ctx, "LabelLanguage", "English")
		if err != nil {
			return fmt.Errorf("select language: %w", err)
		}
		out, err = a.read(ctx, c)
		return err
	})
	if err != nil {
		return record.County{}, err
	}
	return out, nil
}

func (a Adapter) read(ctx context.Context, c *qlik.Client) (record.County, error) {
	out := a.deps.Template.New()
	out.Name = "Contra Costa County"
	out.SourceURL = sourceURL
	out.AppendNotes(notes...)

	app, err := c.GetAppLayout(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("app layout: %w", err)
	}
	reload, err := qlik.LastReloadTime(app)
	if err != nil {
		return record.County{}, err
	}
	updated, err := dateparse.ParseIn(reload, a.deps.Clock.Location())
	if err != nil {
		return record.County{}, upstream.Formatf("unparseable reload time %q", reload)
	}
	out.UpdateTime = record.FormatTime(updated.In(a.deps.Clock.Location()))

	out.Series.Cases, err = cases(ctx, c)
	if err != nil {
		return record.County{}, fmt.Errorf("cases: %w", err)
	}
	out.Series.Deaths, err = deaths(ctx, c)
	if err != nil {
		return record.County{}, fmt.Errorf("deaths: %w", err)
	}
	out.Series.Tests, err = tests(ctx, c)
	if err != nil {
		return record.County{}, fmt.Errorf("tests: %w", err)
	}

	out.CaseTotals, err = caseTotals(ctx, c)
	if err != nil {
		return record.County{}, fmt.Errorf("case totals: %w", err)
	}
	out.DeathTotals, err = deathTotals(ctx, c)
	if err != nil {
		return record.County{}, fmt.Errorf("death totals: %w", err)
	}
	return out, nil
}

func matrix(ctx context.Context, c *qlik.Client, chart string, width int) ([][]qlik.Cell, error) {
	layout, err := c.GetData(ctx, chart)
	if err != nil {
		return nil, err
	}
	rows, err := qlik.Matrix(layout)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", chart, err)
	}
	for i, row := range rows {
		if len(row) != width {
			return nil, upstream.Formatf("chart %s: row %d has %d columns, expected %d", chart, i, len(row), width)
		}
	}
	return rows, nil
}

func count(cell qlik.Cell) (int, error) {
	if !cell.IsNum() {
		return 0, upstream.Formatf("%q is not a number", cell.Text)
	}
	return int(math.Round(cell.Num)), nil
}

func date(cell qlik.Cell) (record.Date, error) {
	if !cell.IsNum() {
		return "", upstream.Formatf("%q is not a date", cell.Text)
	}
	return record.DateOf(qlik.ParseDate(cell.Num)), nil
}

// series reads a chart of (date, value) rows.
func series(ctx context.Context, c *qlik.Client, chart string) (map[record.Date]int, error) {
	rows, err := matrix(ctx, c, chart, 2)
	if err != nil {
		return nil, err
	}
	out := make(map[record.Date]int, len(rows))
	for _, row := range rows {
		day, err := date(row[0])
		if err != nil {
			return nil, err
		}
		out[day], err = count(row[1])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func cases(ctx context.Context, c *qlik.Client) ([]record.CaseEntry, error) {
	daily, err := series(ctx, c, newCasesChart)
	if err != nil {
		return nil, err
	}
	cumul, err := series(ctx, c, totalCasesChart)
	if err != nil {
		return nil, err
	}
	joined, err := record.JoinDailyCumulative(daily, cumul)
	if err != nil {
		return nil, err
	}

	out := make([]record.CaseEntry, len(joined))
	total := 0
	for i, j := range joined {
		total += j.Daily
		if total != j.Cumul {
			return nil, upstream.Formatf("sum of daily cases %d does not equal cumul_cases %d on %s", total, j.Cumul, j.Date)
		}
		out[i] = record.CaseEntry{Date: j.Date, Cases: j.Daily, CumulCases: j.Cumul}
	}
	return out, nil
}

// deaths sums deaths outside and inside long term care facilities, the
// latter include both residents and staff.
func deaths(ctx context.Context, c *qlik.Client) ([]record.DeathEntry, error) {
	rows, err := matrix(ctx, c, deathsChart, 3)
	if err != nil {
		return nil, err
	}
	out := make([]record.DeathEntry, 0, len(rows))
	for _, row := range rows {
		day, err := date(row[0])
		if err != nil {
			return nil, err
		}
		other, err := count(row[1])
		if err != nil {
			return nil, err
		}
		ltcf, err := count(row[2])
		if err != nil {
			return nil, err
		}
		out = append(out, record.DeathEntry{Date: day, Deaths: other + ltcf})
	}
	record.SortByDate(out)
	record.AccumulateDeaths(out)
	return out, nil
}

// tests derives daily tests from the cumulative tests chart. The daily tests
// chart starts later and reports zeros for its first days, so it is not used.
// Positives are estimated from the 7-day average positivity.
func tests(ctx context.Context, c *qlik.Client) ([]record.TestEntry, error) {
	cumul, err := series(ctx, c, totalTestsChart)
	if err != nil {
		return nil, err
	}

	layout, err := c.GetData(ctx, positivityChart)
	if err != nil {
		return nil, err
	}
	nodes, err := qlik.StackedNodes(layout)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", positivityChart, err)
	}
	rates := map[record.Date]float64{}
	for _, node := range nodes {
		// SubNodes are "% Positive Equity Metric" then
		// "% Tested Positive 7-Day Average", each holding a single value.
		if len(node.SubNodes) < 2 || len(node.SubNodes[1].SubNodes) == 0 {
			return nil, upstream.Formatf("positivity on %q has no 7-day average", node.Text)
		}
		rate := node.SubNodes[1].SubNodes[0].Value
		if math.IsNaN(rate) {
			continue
		}
		rates[record.DateOf(qlik.ParseDate(node.Value))] = rate
	}

	days := make([]record.Date, 0, len(cumul))
	for day := range cumul {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	var out []record.TestEntry
	totalPositive := 0
	for i, day := range days {
		// the first day seeds the running total
		if i == 0 {
			continue
		}
		entry := record.NewTestEntry(day)
		entry.CumulTests = cumul[day]
		entry.Tests = cumul[day] - cumul[days[i-1]]
		entry.Positive = 0
		if rate, ok := rates[day]; ok {
			percent := rate * 100
			entry.Positive, _ = record.EstimatePositive(entry.Tests, percent)
			entry.Positivity = &percent
		}
		totalPositive += entry.Positive
		entry.CumulPos = totalPositive
		out = append(out, entry)
	}
	return out, nil
}

func gender(ctx context.Context, c *qlik.Client, chart string) (map[string]record.Count, error) {
	rows, err := matrix(ctx, c, chart, 2)
	if err != nil {
		return nil, err
	}
	out := map[string]record.Count{}
	for _, row := range rows {
		n, err := count(row[1])
		if err != nil {
			return nil, err
		}
		out[strings.ToLower(strings.TrimSpace(row[0].Text))] = record.N(n)
	}
	return out, record.RequireGender(out, chart)
}

func ageGroups(ctx context.Context, c *qlik.Client, chart string) ([]record.AgeGroup, error) {
	rows, err := matrix(ctx, c, chart, 2)
	if err != nil {
		return nil, err
	}
	out := make([]record.AgeGroup, 0, len(rows))
	for _, row := range rows {
		n, err := count(row[1])
		if err != nil {
			return nil, err
		}
		out = append(out, record.AgeGroup{Group: strings.TrimSpace(row[0].Text), RawCount: record.N(n)})
	}
	return out, nil
}

// groups reads (label, count) rows, or (label, population share, share of
// cases) rows when total is not zero.
func groups(ctx context.Context, c *qlik.Client, chart string, mapping map[string]string, total int) (map[string]record.Count, error) {
	width := 2
	if total != 0 {
		width = 3
	}
	rows, err := matrix(ctx, c, chart, width)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	observed := make([]string, 0, len(rows))
	for _, row := range rows {
		label := strings.ToLower(strings.TrimSpace(row[0].Text))
		observed = append(observed, label)
		value := row[width-1]
		if !value.IsNum() {
			return nil, upstream.Formatf("%s: %q is not a number", label, value.Text)
		}
		if total != 0 {
			counts[label] = record.RoundHalfUp(float64(total) * value.Num)
		} else {
			counts[label] = int(math.Round(value.Num))
		}
	}
	err = record.AssertKeys(mapping, observed, chart+" groups")
	if err != nil {
		return nil, err
	}

	out := map[string]record.Count{}
	for label, n := range counts {
		out[mapping[label]] = record.N(n)
	}
	return out, nil
}

// raceEth fills in the groups the county does not publish: native american
// and pacific islander are counted as other, latinx is an ethnicity.
func raceEth(ctx context.Context, c *qlik.Client, chart string, total int) (map[string]record.Count, error) {
	out, err := groups(ctx, c, chart, raceKeys, total)
	if err != nil {
		return nil, err
	}
	for _, label := range []string{record.NativeAmer, record.PacificIslander, record.LatinxOrHispanic} {
		out[label] = record.N(record.Unknown)
	}
	return out, nil
}

// caseTotals converts race and ethnicity shares to counts with the total of
// the gender breakdown.
func caseTotals(ctx context.Context, c *qlik.Client) (record.Totals, error) {
	var out record.Totals
	var err error
	out.Gender, err = gender(ctx, c, casesByGenderChart)
	if err != nil {
		return out, err
	}
	total := 0
	for _, n := range out.Gender {
		total += n.Value
	}
	if total == 0 {
		return out, upstream.Formatf("cases by gender add up to 0")
	}
	out.AgeGroup, err = ageGroups(ctx, c, casesByAgeChart)
	if err != nil {
		return out, err
	}
	out.RaceEth, err = raceEth(ctx, c, casesByRaceChart, total)
	if err != nil {
		return out, err
	}
	out.Ethnicity, err = groups(ctx, c, casesByEthnicityChart, ethnicityKeys, total)
	return out, err
}

func deathTotals(ctx context.Context, c *qlik.Client) (record.Totals, error) {
	var out record.Totals
	var err error
	out.Gender, err = gender(ctx, c, deathsByGenderChart)
	if err != nil {
		return out, err
	}
	out.AgeGroup, err = ageGroups(ctx, c, deathsByAgeChart)
	if err != nil {
		return out, err
	}
	out.RaceEth, err = raceEth(ctx, c, deathsByRaceChart, 0)
	if err != nil {
		return out, err
	}
	out.Ethnicity, err = groups(ctx, c, deathsByEthnicityChart, ethnicityKeys, 0)
	return out, err
}

