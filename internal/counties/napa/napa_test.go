package napa

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/testutil"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func epochMillis(date string) int64 {
	t, err := time.ParseInLocation(time.DateOnly, date, time.FixedZone("PST", -8*60*60))
	if err != nil {
		panic(err)
	}
	return t.Add(12 * time.Hour).UnixMilli()
}

func features(rows ...map[string]any) []byte {
	out := map[string]any{"features": []any{}}
	for _, row := range rows {
		out["features"] = append(out["features"].([]any), map[string]any{"attributes": row})
	}
	body, _ := json.Marshal(out)
	return body
}

func arcgisHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/dataset.json" {
		w.Write([]byte(`{
			"categories": ["2020 11/8 - 11/14", "2020 11/15 - 11/21"],
			"series": [
				{"name": "Number of Tests", "data": [{"y": 100}, {"y": 200}]},
				{"name": "Positivity Rate", "data": [{"y": 12.5}, {"y": 1}]}
			]
		}`))
		return
	}
	if r.URL.Path != "/ArcGIS/rest/services/CaseDataDemographics/FeatureServer/0/query" {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	out := query.Get("outFields")
	unknownSex := 1
	if strings.Contains(out, "COUNT(DtDeath)") {
		unknownSex = 0
	}
	switch {
	case strings.HasPrefix(out, "MAX(EditDate_1)"):
		w.Write(features(map[string]any{"edit_date": epochMillis("2021-01-14")}))
	case strings.HasPrefix(out, "DtLabCollect"):
		w.Write(features(
			map[string]any{"DtLabCollect": epochMillis("2020-03-01"), "count": 2},
			map[string]any{"DtLabCollect": epochMillis("2020-03-03"), "count": 1},
		))
	case strings.HasPrefix(out, "DtLabResult"):
		w.Write(features(
			map[string]any{"DtLabResult": epochMillis("2020-03-01"), "count": 1},
			map[string]any{"DtLabResult": epochMillis("2020-03-02"), "count": 4},
		))
	case strings.HasPrefix(out, "DtDeath"):
		w.Write(features(map[string]any{"DtDeath": epochMillis("2020-03-05"), "deaths": 1}))
	case strings.HasPrefix(out, "Sex"):
		w.Write(features(
			map[string]any{"Sex": "Male", "count": 3},
			map[string]any{"Sex": "Female", "count": 4},
			map[string]any{"Sex": "unknown", "count": unknownSex},
			map[string]any{"Sex": nil, "count": 1},
		))
	case strings.HasPrefix(out, "AgeGroup"):
		w.Write(features(
			map[string]any{"AgeGroup": "18-49", "count": 4},
			map[string]any{"AgeGroup": "05-17", "count": 2},
			map[string]any{"AgeGroup": "5-17", "count": 1},
			map[string]any{"AgeGroup": "00-04", "count": 1},
			map[string]any{"AgeGroup": "65+", "count": 1},
		))
	case strings.HasPrefix(out, "RaceEthn"):
		w.Write(features(
			map[string]any{"RaceEthn": "Hispanic", "count": 5},
			map[string]any{"RaceEthn": "Non-Hispanic White", "count": 2},
			map[string]any{"RaceEthn": "Other", "count": 1},
			map[string]any{"RaceEthn": nil, "count": 1},
		))
	default:
		http.Error(w, "unexpected query "+out, http.StatusBadRequest)
	}
}

func TestGetCounty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(arcgisHandler))
	defer srv.Close()
	deps, _ := adapter.TestDeps(map[string]string{"arcgis": srv.URL, "livestories": srv.URL})

	county, err := New(deps).GetCounty(context.Background())
	require.NoError(t, err)
	require.NoError(t, record.Validate(county))
	require.NoError(t, record.CheckCumulative(county.Series))

	require.Equal(t, "2021-01-14T12:00:00-08:00", county.UpdateTime)
	require.Empty(t, cmp.Diff([]record.CaseEntry{
		{Date: "2020-03-01", Cases: 3, CumulCases: 3},
		{Date: "2020-03-02", Cases: 4, CumulCases: 7},
		{Date: "2020-03-03", Cases: 1, CumulCases: 8},
	}, county.Series.Cases))

	tests := county.Series.Tests
	require.Len(t, tests, 2)
	require.Equal(t, record.Date("2020-11-14"), tests[0].Date)
	require.Equal(t, 13, tests[0].Positive)
	require.Equal(t, 15, tests[1].CumulPos)
	require.Equal(t, 300, tests[1].CumulTests)
	require.Equal(t, 12.5, *tests[0].Positivity)

	require.Equal(t, record.N(2), county.CaseTotals.Gender["unknown"])
	groups := []string{}
	for _, g := range county.CaseTotals.AgeGroup {
		groups = append(groups, g.Group)
	}
	require.Equal(t, []string{"0-4", "5-17", "18-49", "65+"}, groups)
	require.Equal(t, record.N(3), county.CaseTotals.AgeGroup[1].RawCount)
	require.Equal(t, record.N(1), county.CaseTotals.RaceEth[record.UnknownRace])
	require.Equal(t, record.N(record.Unknown), county.CaseTotals.RaceEth[record.Asian])
	require.Equal(t, record.N(1), county.DeathTotals.Gender["unknown"])
}

func TestSuppressedCountsAreKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Query().Get("outFields"), "RaceEthn") {
			w.Write(features(
				map[string]any{"RaceEthn": "Hispanic", "count": 5},
				map[string]any{"RaceEthn": "Non-Hispanic White", "count": 2},
				map[string]any{"RaceEthn": "Other", "count": "<10"},
				map[string]any{"RaceEthn": nil, "count": 1},
			))
			return
		}
		arcgisHandler(w, r)
	}))
	defer srv.Close()
	deps, _ := adapter.TestDeps(map[string]string{"arcgis": srv.URL, "livestories": srv.URL})

	county, err := New(deps).GetCounty(context.Background())
	require.NoError(t, err)
	require.NoError(t, record.Validate(county))
	require.Equal(t, record.Count{Placeholder: "<10"}, county.CaseTotals.RaceEth[record.Other])
	require.Contains(t, county.MetaFromBaypd, "case_totals.race_eth.Other (<10)")
	require.Contains(t, county.MetaFromBaypd, "death_totals.race_eth.Other (<10)")
}

func TestAgeLabel(t *testing.T) {
	require.Equal(t, "5-9", ageLabel("05-09"))
	require.Equal(t, "0-4", ageLabel("00-04"))
	require.Equal(t, "65+", ageLabel("65+"))
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
