package sanmateo

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/platforms/powerbi/powerbitest"
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// 2021-01-10 and 2021-01-11, midnight UTC
const (
	day1 = 1610236800000
	day2 = 1610323200000
)

const latimes = `date,county,fips,confirmed_cases,deaths,new_confirmed_cases,new_deaths
2021-01-11,San Mateo,081,100,3,5,1
2021-01-11,Santa Clara,085,900,40,30,2
2021-01-10,San Mateo,081,95,2,4,0
2021-01-09,San Mateo,081,91,2,91,2
`

func newReport() *powerbitest.Report {
	return &powerbitest.Report{
		TextRuns: []string{"Cases by day", "Cases are counted by date the lab result was reported."},
		Visuals: map[string]powerbitest.Visual{
			"cases_by_day.date_result | CountNonNull(cases_by_day.n)": {Rows: [][]any{
				{day1, 4}, {day2, 5}, {nil, 2},
			}},
			"lab_tests_by_day.early_spec_date | Sum(lab_tests_by_day.Positive) | Sum(lab_tests_by_day.Inconclusive) | Sum(lab_tests_by_day.Negative)": {Rows: [][]any{
				{day1, 10, 1, 89}, {day2, 20, 0, 180},
			}},
			"cases_by_sex.sex | CountNonNull(cases_by_sex.n)": {Rows: [][]any{
				{"Female", 50}, {"Male", 48}, {"Unknown", 2},
			}},
			"death by sex.sex | CountNonNull(death by sex.n)": {Rows: [][]any{
				{"Female", 1}, {"Male", 2},
			}},
			"cases_by_age.age_cat | CountNonNull(cases_by_age.n)": {Rows: [][]any{
				{"20-29", 60}, {"0-19", 40},
			}},
			"deaths by age.age_cat | CountNonNull(deaths by age.n)": {Rows: [][]any{
				{"70+", 3},
			}},
			"cases_by_race.race_cat | CountNonNull(cases_by_race.n)": {Rows: [][]any{
				{"Asian ", 30}, {"Latino/Hispanic", 50}, {"White", 20},
			}},
			"deaths by race.race | CountNonNull(deaths by race.n)": {Rows: [][]any{
				{"White", 3},
			}},
		},
	}
}

func serve(t *testing.T, report *powerbitest.Report, csv string) adapter.Adapter {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/reports/", http.StripPrefix("/reports", report))
	mux.HandleFunc("/latimes-county-totals.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/csv")
		w.Write([]byte(csv))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	deps, _ := adapter.TestDeps(map[string]string{
		"powerbi": srv.URL + "/reports",
		"latimes": srv.URL + "/latimes-county-totals.csv",
	})
	return New(deps)
}

func TestGetCounty(t *testing.T) {
	report := newReport()
	county, err := serve(t, report, latimes).GetCounty(context.Background())
	require.NoError(t, err)
	require.NoError(t, record.Validate(county))
	require.NoError(t, record.CheckCumulative(county.Series))

	require.Equal(t, "Cases are counted by date the lab result was reported.", county.MetaFromSource)
	require.Equal(t, "2021-01-11T00:00:00-08:00", county.UpdateTime)

	require.Empty(t, cmp.Diff([]record.CaseEntry{
		{Date: "2021-01-10", Cases: 4, CumulCases: 4},
		{Date: "2021-01-11", Cases: 5, CumulCases: 9},
	}, county.Series.Cases))
	require.Empty(t, cmp.Diff([]record.DeathEntry{
		{Date: "2021-01-09", Deaths: 2, CumulDeaths: 2},
		{Date: "2021-01-10", Deaths: 0, CumulDeaths: 2},
		{Date: "2021-01-11", Deaths: 1, CumulDeaths: 3},
	}, county.Series.Deaths))

	tests := county.Series.Tests
	require.Len(t, tests, 2)
	require.Equal(t, 100, tests[0].Tests)
	require.Equal(t, 1, tests[0].Pending)
	require.Equal(t, 300, tests[1].CumulTests)
	require.Equal(t, 30, tests[1].CumulPos)
	require.Equal(t, 269, tests[1].CumulNeg)

	require.Equal(t, record.N(30), county.CaseTotals.RaceEth[record.Asian])
	require.Equal(t, record.N(record.Unknown), county.CaseTotals.RaceEth[record.AfricanAmer])
	require.Equal(t, record.N(3), county.DeathTotals.RaceEth[record.White])
	require.Equal(t, "0-19", county.CaseTotals.AgeGroup[0].Group)
	require.Equal(t, record.N(2), county.DeathTotals.Gender["male"])

	for _, query := range report.Queries() {
		datasetID, err := upstream.Dig(query, "queries", 0, "ApplicationContext", "DatasetId")
		require.NoError(t, err)
		require.Equal(t, "aa4631ab-2f78-40f6-b4c4-d2f5f8a89bcc", datasetID)
	}
}

func TestMetaFallback(t *testing.T) {
	report := newReport()
	report.TextRuns = nil
	county, err := serve(t, report, latimes).GetCounty(context.Background())
	require.NoError(t, err)
	require.Equal(t, fallbackMeta, county.MetaFromSource)
}

func TestSuppressedCountsAreKept(t *testing.T) {
	report := newReport()
	report.Visuals["cases_by_age.age_cat | CountNonNull(cases_by_age.n)"] = powerbitest.Visual{Rows: [][]any{
		{"20-29", 60}, {"0-19", "<10"},
	}}
	county, err := serve(t, report, latimes).GetCounty(context.Background())
	require.NoError(t, err)
	require.NoError(t, record.Validate(county))

	require.Equal(t, record.AgeGroup{Group: "0-19", RawCount: record.Count{Placeholder: "<10"}}, county.CaseTotals.AgeGroup[0])
	require.Contains(t, county.MetaFromBaypd, "case_totals.age_group.0-19 (<10)")
}

func TestSuppressedRepeatedRaceLabel(t *testing.T) {
	report := newReport()
	report.Visuals["deaths by race.race | CountNonNull(deaths by race.n)"] = powerbitest.Visual{Rows: [][]any{
		{"White", 3}, {"White", "<10"},
	}}
	_, err := serve(t, report, latimes).GetCounty(context.Background())
	require.True(t, upstream.IsFormatError(err), err)
}

func TestUnknownRaceLabel(t *testing.T) {
	report := newReport()
	report.Visuals["cases_by_race.race_cat | CountNonNull(cases_by_race.n)"] = powerbitest.Visual{Rows: [][]any{
		{"Asian", 30}, {"Martian", 1},
	}}
	_, err := serve(t, report, latimes).GetCounty(context.Background())
	require.True(t, upstream.IsFormatError(err), err)
	require.ErrorContains(t, err, `unexpected ["Martian"]`)
}

func TestParseLATimesMismatch(t *testing.T) {
	broken := strings.Replace(latimes, "2021-01-11,San Mateo,081,100,3,5,1", "2021-01-11,San Mateo,081,100,4,5,1", 1)
	_, err := ParseLATimes(strings.NewReader(broken), "San Mateo")
	require.True(t, upstream.IsFormatError(err), err)
}

func TestParseLATimesMissingColumn(t *testing.T) {
	_, err := ParseLATimes(strings.NewReader("date,county,deaths\n2021-01-11,San Mateo,3\n"), "San Mateo")
	require.True(t, upstream.IsFormatError(err), err)
}

func TestLive(t *testing.T) {
	testutil.LiveTests(t, ID)
	deps, _ := adapter.TestDeps(nil)
	county, err := New(deps).GetCounty(context.Background())
	if err != nil {
		t.Skipf("could not scrape %s: %v", ID, err)
	}
	require.NoError(t, record.Validate(county))
}
