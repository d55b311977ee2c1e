package contracosta

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/platforms/qlik/qliktest"
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// Excel serial dates of 2020-03-17 to 2020-03-19
const (
	mar17 = 43907
	mar18 = 43908
	mar19 = 43909
)

func row(cells ...map[string]any) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

func positivity(day float64, rate float64) map[string]any {
	return qliktest.Node("", day,
		qliktest.Node("% Positive Equity Metric", math.NaN(), qliktest.Node("", 0.5)),
		qliktest.Node("% Tested Positive 7-Day Average", math.NaN(), qliktest.Node("", rate)),
	)
}

func newEngine() *qliktest.Engine {
	return &qliktest.Engine{
		ReloadTime: "2020-03-20T17:24:57.136Z",
		Layouts: map[string]map[string]any{
			newCasesChart: qliktest.Matrix(
				row(qliktest.Num(mar17), qliktest.Num(2)),
				row(qliktest.Num(mar18), qliktest.Num(3)),
				row(qliktest.Num(mar19), qliktest.Num(0)),
			),
			totalCasesChart: qliktest.Matrix(
				row(qliktest.Num(mar17), qliktest.Num(2)),
				row(qliktest.Num(mar18), qliktest.Num(5)),
				row(qliktest.Num(mar19), qliktest.Num(5)),
			),
			deathsChart: qliktest.Matrix(
				row(qliktest.Num(mar18), qliktest.Num(1), qliktest.Num(2)),
				row(qliktest.Num(mar19), qliktest.Num(0), qliktest.Num(1)),
			),
			totalTestsChart: qliktest.Matrix(
				row(qliktest.Num(mar17), qliktest.Num(50)),
				row(qliktest.Num(mar18), qliktest.Num(150)),
				row(qliktest.Num(mar19), qliktest.Num(350)),
			),
			positivityChart: qliktest.Stacked(
				positivity(mar18, 0.125),
			),
			casesByGenderChart: qliktest.Matrix(
				row(qliktest.Text("Female"), qliktest.Num(60)),
				row(qliktest.Text("Male"), qliktest.Num(40)),
			),
			casesByAgeChart: qliktest.Matrix(
				row(qliktest.Text("0-17"), qliktest.Num(20)),
				row(qliktest.Text("18-64"), qliktest.Num(80)),
			),
			casesByRaceChart: qliktest.Matrix(
				row(qliktest.Text("Asian"), qliktest.Num(0.2), qliktest.Num(0.25)),
				row(qliktest.Text("Black or African American"), qliktest.Num(0.1), qliktest.Num(0.05)),
				row(qliktest.Text("Multiple Races"), qliktest.Num(0.05), qliktest.Num(0.05)),
				row(qliktest.Text("Other"), qliktest.Num(0.2), qliktest.Num(0.3)),
				row(qliktest.Text("White"), qliktest.Num(0.45), qliktest.Num(0.3)),
				row(qliktest.Text("Unknown"), qliktest.Num(0), qliktest.Num(0.05)),
			),
			casesByEthnicityChart: qliktest.Matrix(
				row(qliktest.Text("Hispanic or Latino"), qliktest.Num(0.25), qliktest.Num(0.4)),
				row(qliktest.Text("Not Hispanic or Latino"), qliktest.Num(0.75), qliktest.Num(0.5)),
				row(qliktest.Text("Unknown"), qliktest.Num(0), qliktest.Num(0.1)),
			),
			deathsByGenderChart: qliktest.Matrix(
				row(qliktest.Text("Female"), qliktest.Num(1)),
				row(qliktest.Text("Male"), qliktest.Num(3)),
			),
			deathsByAgeChart: qliktest.Matrix(
				row(qliktest.Text("65+"), qliktest.Num(4)),
			),
			deathsByRaceChart: qliktest.Matrix(
				row(qliktest.Text("Asian"), qliktest.Num(1)),
				row(qliktest.Text("Black or African American"), qliktest.Num(0)),
				row(qliktest.Text("Multiple Races"), qliktest.Num(0)),
				row(qliktest.Text("Other"), qliktest.Num(0)),
				row(qliktest.Text("White"), qliktest.Num(3)),
				row(qliktest.Text("Unknown"), qliktest.Num(0)),
			),
			deathsByEthnicityChart: qliktest.Matrix(
				row(qliktest.Text("Hispanic or Latino"), qliktest.Num(1)),
				row(qliktest.Text("Not Hispanic or Latino"), qliktest.Num(3)),
				row(qliktest.Text("Unknown"), qliktest.Num(0)),
			),
		},
	}
}

func scrape(t *testing.T, engine *qliktest.Engine) (record.County, error) {
	deps, _ := adapter.TestDeps(map[string]string{"qlik": engine.Serve(t)})
	return New(deps).GetCounty(context.Background())
}

func TestGetCounty(t *testing.T) {
	engine := newEngine()
	county, err := scrape(t, engine)
	require.NoError(t, err)
	require.NoError(t, record.Validate(county))
	require.NoError(t, record.CheckCumulative(county.Series))

	require.Equal(t, "English", engine.Selected("LabelLanguage"))
	require.Equal(t, "2020-03-20T09:24:57-08:00", county.UpdateTime)

	require.Empty(t, cmp.Diff([]record.CaseEntry{
		{Date: "2020-03-17", Cases: 2, CumulCases: 2},
		{Date: "2020-03-18", Cases: 3, CumulCases: 5},
		{Date: "2020-03-19", Cases: 0, CumulCases: 5},
	}, county.Series.Cases))
	require.Empty(t, cmp.Diff([]record.DeathEntry{
		{Date: "2020-03-18", Deaths: 3, CumulDeaths: 3},
		{Date: "2020-03-19", Deaths: 1, CumulDeaths: 4},
	}, county.Series.Deaths))

	tests := county.Series.Tests
	require.Len(t, tests, 2)
	require.Equal(t, record.Date("2020-03-18"), tests[0].Date)
	require.Equal(t, 100, tests[0].Tests)
	require.Equal(t, 13, tests[0].Positive)
	require.Equal(t, 12.5, *tests[0].Positivity)
	require.Equal(t, 200, tests[1].Tests)
	require.Equal(t, 0, tests[1].Positive)
	require.Nil(t, tests[1].Positivity)
	require.Equal(t, 13, tests[1].CumulPos)
	require.Equal(t, record.Unknown, tests[1].Negative)

	require.Equal(t, record.N(25), county.CaseTotals.RaceEth[record.Asian])
	require.Equal(t, record.N(record.Unknown), county.CaseTotals.RaceEth[record.LatinxOrHispanic])
	require.Equal(t, record.N(40), county.CaseTotals.Ethnicity[record.LatinxOrHispanic])
	require.Equal(t, record.N(10), county.CaseTotals.Ethnicity[record.UnknownRace])
	require.Equal(t, record.N(3), county.DeathTotals.RaceEth[record.White])
	require.Equal(t, record.N(3), county.DeathTotals.Gender["male"])
	require.Equal(t, "18-64", county.CaseTotals.AgeGroup[1].Group)
}

func TestCasesDisagreeWithTotals(t *testing.T) {
	engine := newEngine()
	engine.Layouts[totalCasesChart] = qliktest.Matrix(
		row(qliktest.Num(mar17), qliktest.Num(2)),
		row(qliktest.Num(mar18), qliktest.Num(6)),
		row(qliktest.Num(mar19), qliktest.Num(6)),
	)
	_, err := scrape(t, engine)
	require.True(t, upstream.IsFormatError(err), err)
}

func TestUnexpectedRace(t *testing.T) {
	engine := newEngine()
	engine.Layouts[deathsByRaceChart] = qliktest.Matrix(
		row(qliktest.Text("Asian"), qliktest.Num(1)),
		row(qliktest.Text("Pacific Islander"), qliktest.Num(1)),
	)
	_, err := scrape(t, engine)
	require.True(t, upstream.IsFormatError(err), err)
}

func TestMissingGender(t *testing.T) {
	engine := newEngine()
	engine.Layouts[deathsByGenderChart] = qliktest.Matrix(
		row(qliktest.Text("Female"), qliktest.Num(1)),
	)
	_, err := scrape(t, engine)
	require.ErrorContains(t, err, "missing explicit male/female")
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
