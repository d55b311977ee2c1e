// Package sonoma reads Sonoma county data from the tables on the county's
// emergency information page.
package sonoma

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/htmlutil"
	"baypd-scraper/lib/textutil"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

const (
	ID         = "sonoma"
	DefaultURL = "https://socoemergency.org/emergency/novel-coronavirus/coronavirus-cases/"
)

const (
	casesSection        = "Cases by Date"
	testsSection        = "Test Results"
	transmissionSection = "Proportion of Cases Attributable to Specific Exposure Locations"
	ageSection          = "Cases by Age Group"
	raceSection         = "Cases by Race"
	definitionsSection  = "Definitions"
)

var notes = []string{
	"On or about 2021-06-03, Sonoma County stopped providing case totals by gender. " +
		"Null values are inserted as placeholders for consistency.",
	"Transmission categories are published as percentages of all cases, counts were computed by " +
		"BayPD from the sum of cases over all age groups.",
}

var transmissionKeys = map[string]string{
	"congregate care": "congregate_care",
	"health care":     "health_care",
	"household":       "household",
	"large gathering": "gathering_large",
	"other":           "other",
	"small gathering": "gathering_small",
	"travel":          "travel",
	"unknown":         "unknown",
	"workplace":       "workplace",
}

// standardTransmission groups the county's exposure locations into the
// categories other counties report.
var standardTransmission = map[string][]string{
	"from_contact": {"congregate_care", "household", "workplace", "gathering_small"},
	"community":    {"health_care", "gathering_large", "other"},
	"travel":       {"travel"},
	"unknown":      {"unknown"},
}

var raceKeys = map[string]string{
	"Asian, non-Hispanic":                                      record.Asian,
	"Hispanic / Latino":                                        record.LatinxOrHispanic,
	"White, non-Hispanic":                                      record.White,
	"Multi-racial, non-Hispanic":                               record.MultipleRace,
	"Black/African American, non-Hispanic":                     record.AfricanAmer,
	"American Indian/Alaska Native, non-Hispanic":              record.NativeAmer,
	"Native Hawaiian and other Pacific Islander, non-Hispanic": record.PacificIslander,
	"Other, non-Hispanic":                                      record.Other,
	"Unknown":                                                  record.UnknownRace,
}

type Adapter struct {
	deps adapter.Deps
	url  string
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	return Adapter{
		deps: deps,
		url:  deps.Endpoint("page", DefaultURL),
	}
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	doc, err := htmlutil.FetchDocument(ctx, a.deps.HTTP, a.url)
	if err != nil {
		return record.County{}, err
	}

	out := a.deps.Template.New()
	out.Name = "Sonoma County"
	out.SourceURL = DefaultURL
	out.UpdateTime = record.FormatTime(a.deps.Clock.Now())
	out.AppendNotes(notes...)

	definitions, err := section(doc, definitionsSection)
	if err != nil {
		return record.County{}, err
	}
	out.MetaFromSource = strings.TrimSpace(strings.ReplaceAll(definitions.Text(), "\n", "/"))

	tables := map[string]Table{}
	for _, title := range []string{casesSection, testsSection, transmissionSection, ageSection, raceSection} {
		tables[title], err = table(doc, title)
		if err != nil {
			return record.County{}, err
		}
	}

	out.Series.Cases, out.Series.Deaths, err = timeseries(tables[casesSection])
	if err != nil {
		return record.County{}, fmt.Errorf("cases by date: %w", err)
	}
	tests, err := testResults(tables[testsSection])
	if err != nil {
		return record.County{}, fmt.Errorf("test results: %w", err)
	}
	out.TestTotals = &record.TestTotals{Tests: tests}

	out.CaseTotals.AgeGroup, err = ageGroups(tables[ageSection])
	if err != nil {
		return record.County{}, fmt.Errorf("age groups: %w", err)
	}
	totalCases := casesTotal(out.CaseTotals.AgeGroup, out.Series.Cases)
	out.CaseTotals.TransmissionCatOrig, err = transmission(tables[transmissionSection], totalCases)
	if err != nil {
		return record.County{}, fmt.Errorf("transmission: %w", err)
	}
	out.CaseTotals.TransmissionCat = standardize(out.CaseTotals.TransmissionCatOrig)
	out.CaseTotals.RaceEth, err = raceEth(tables[raceSection])
	if err != nil {
		return record.County{}, fmt.Errorf("race/ethnicity: %w", err)
	}
	out.CaseTotals.Gender = record.NewGender()
	out.NotePlaceholders()
	return out, nil
}

// casesTotal sums the age groups, or takes the latest cumulative count when a
// group is suppressed.
func casesTotal(groups []record.AgeGroup, cases []record.CaseEntry) int {
	total := 0
	for _, group := range groups {
		if group.RawCount.IsPlaceholder() {
			if len(cases) == 0 {
				return 0
			}
			return cases[len(cases)-1].CumulCases
		}
		total += group.RawCount.Value
	}
	return total
}

// section finds the element wrapping the h3 titled `title`.
func section(doc *goquery.Document, title string) (*goquery.Selection, error) {
	header := doc.Find("h3").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), title)
	}).First()
	if header.Length() == 0 {
		return nil, upstream.Formatf("the header %q no longer corresponds to a section", title)
	}
	return header.Parent(), nil
}

// Table holds the body rows of an html table keyed by their header cells.
type Table []map[string]string

// table reads the last table in the section titled `title`, some sections
// keep an outdated table before the current one.
func table(doc *goquery.Document, title string) (Table, error) {
	s, err := section(doc, title)
	if err != nil {
		return nil, err
	}
	tables := s.Find("table")
	if tables.Length() == 0 {
		return nil, upstream.Formatf("section %q has no table", title)
	}
	parsed := htmlutil.ParseTable(tables.Last())
	out := make(Table, 0, len(parsed.Rows))
	for _, cells := range parsed.Rows {
		row := map[string]string{}
		for i, header := range parsed.Header {
			if i < len(cells) {
				row[header] = cells[i]
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (t Table) column(row map[string]string, name string) (string, error) {
	value, ok := row[name]
	if !ok {
		return "", upstream.Formatf("table has no %q column", name)
	}
	return value, nil
}

func (t Table) count(row map[string]string, name string) (int, error) {
	text, err := t.column(row, name)
	if err != nil {
		return 0, err
	}
	return record.ParseInt(dashIsZero(text))
}

// cell reads a count that may be suppressed by the county.
func (t Table) cell(row map[string]string, name string) (record.Count, error) {
	text, err := t.column(row, name)
	if err != nil {
		return record.Count{}, err
	}
	return record.ParseCount(text)
}

func dashIsZero(text string) string {
	if strings.TrimSpace(text) == "-" {
		return "0"
	}
	return text
}

// timeseries reads daily new cases and cumulative deaths, the page lists
// the most recent day first.
func timeseries(t Table) ([]record.CaseEntry, []record.DeathEntry, error) {
	rows := slices.Clone(t)
	slices.Reverse(rows)

	cases := make([]record.CaseEntry, 0, len(rows))
	deaths := make([]record.DeathEntry, 0, len(rows))
	for _, row := range rows {
		text, err := t.column(row, "Date")
		if err != nil {
			return nil, nil, err
		}
		parsed, err := dateparse.ParseIn(text, time.UTC)
		if err != nil {
			return nil, nil, upstream.Formatf("unparseable date %q", text)
		}
		date := record.DateOf(parsed)

		newCases, err := t.count(row, "New")
		if err != nil {
			return nil, nil, err
		}
		cumulDeaths, err := t.count(row, "Deaths")
		if err != nil {
			return nil, nil, err
		}
		cases = append(cases, record.CaseEntry{Date: date, Cases: newCases})
		deaths = append(deaths, record.DeathEntry{Date: date, CumulDeaths: cumulDeaths})
	}
	record.AccumulateCases(cases)
	record.DifferenceDeaths(deaths)
	// the first day's deaths are all new
	if len(deaths) > 0 {
		deaths[0].Deaths = deaths[0].CumulDeaths
	}
	return cases, deaths, nil
}

func testResults(t Table) (map[string]record.Count, error) {
	out := map[string]record.Count{}
	for _, row := range t {
		result, err := t.column(row, "Results")
		if err != nil {
			return nil, err
		}
		n, err := t.cell(row, "Number")
		if err != nil {
			return nil, err
		}
		out[strings.ToLower(result)] = n
	}
	return out, nil
}

func ageGroups(t Table) ([]record.AgeGroup, error) {
	out := make([]record.AgeGroup, 0, len(t))
	for _, row := range t {
		group, err := t.column(row, "Age Group")
		if err != nil {
			return nil, err
		}
		n, err := t.cell(row, "Cases")
		if err != nil {
			return nil, err
		}
		out = append(out, record.AgeGroup{Group: group, RawCount: n})
	}
	return out, nil
}

// transmission converts the share of cases per exposure location into counts.
func transmission(t Table, totalCases int) (map[string]record.Count, error) {
	observed := make([]string, 0, len(t))
	for _, row := range t {
		location, err := t.column(row, "Exposure Location")
		if err != nil {
			return nil, err
		}
		observed = append(observed, textutil.NormalizeLabel(location))
	}
	err := record.AssertKeys(transmissionKeys, observed, "transmission types")
	if err != nil {
		return nil, err
	}

	out := map[string]record.Count{}
	for i, row := range t {
		text, err := t.column(row, "All Time")
		if err != nil {
			return nil, err
		}
		percent, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%")), 64)
		if err != nil {
			return nil, upstream.Formatf("unparseable percentage %q", text)
		}
		out[transmissionKeys[observed[i]]] = record.N(int(percent / 100 * float64(totalCases)))
	}
	return out, nil
}

func standardize(orig map[string]record.Count) map[string]record.Count {
	out := map[string]record.Count{}
	for category, members := range standardTransmission {
		sum := 0
		for _, m := range members {
			sum += orig[m].Value
		}
		out[category] = record.N(sum)
	}
	return out
}

func raceEth(t Table) (map[string]record.Count, error) {
	observed := make([]string, 0, len(t))
	for _, row := range t {
		group, err := t.column(row, "Race/Ethnicity")
		if err != nil {
			return nil, err
		}
		observed = append(observed, group)
	}
	err := record.AssertKeys(raceKeys, observed, "racial groups")
	if err != nil {
		return nil, err
	}

	out := record.NewRaceEth()
	for i, row := range t {
		n, err := t.cell(row, "Cases")
		if err != nil {
			return nil, err
		}
		out[raceKeys[observed[i]]] = n
	}
	return out, nil
}
