package solano

import (
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	seriesPath       = "/ArcGIS/rest/services/COVID19Surveypt1v3_view/FeatureServer/0"
	demographicsPath = "/ArcGIS/rest/services/COVID19Surveypt2v3_view_3/FeatureServer/0/query"
	// 2021-01-12 08:00 UTC, midnight of 2021-01-12 in Pacific time
	latestMillis = 1610438400000
)

func row(attributes string) string {
	return fmt.Sprintf(`{"attributes":{%s}}`, attributes)
}

func features(rows ...string) string {
	return `{"features":[` + strings.Join(rows, ",") + `]}`
}

type portal struct {
	editFieldsInfo string
	// otherCases is the published case count of the "Other" group
	otherCases string
	wheres     []string
}

func (p *portal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	switch r.URL.Path {
	case seriesPath:
		fmt.Fprintf(w, `{"name":"survey","editingInfo":{"lastEditDate":1610470800000},"editFieldsInfo":%s}`, p.editFieldsInfo)
		return
	case seriesPath + "/query":
		fmt.Fprint(w, features(
			// 2020-03-02 and 2020-03-03 at noon Pacific
			row(`"Date_reported":1583179200000,"cumulative_cases":2,"total_deaths":0,"residents_tested":null`),
			row(`"Date_reported":1583265600000,"cumulative_cases":5,"total_deaths":1,"residents_tested":40`),
			row(`"Date_reported":1583352000000,"cumulative_cases":9,"total_deaths":1,"residents_tested":55`),
		))
		return
	case demographicsPath:
	default:
		http.NotFound(w, r)
		return
	}

	where := query.Get("where")
	p.wheres = append(p.wheres, where)
	switch {
	case query.Get("resultRecordCount") == "1":
		fmt.Fprint(w, features(row(fmt.Sprintf(`"Date_reported":%d`, latestMillis))))
	case strings.HasPrefix(where, "AG_Total_cases"):
		fmt.Fprint(w, features(
			row(`"Age_group":"65+","AG_Total_cases":40,"AG_deaths":9`),
			row(`"Age_group":"0-17","AG_Total_cases":30,"AG_deaths":0`),
			row(`"Age_group":"0-17","AG_Total_cases":30,"AG_deaths":0`),
			row(`"Age_group":"18-49","AG_Total_cases":120,"AG_deaths":2`),
			row(`"Age_group":"50-64","AG_Total_cases":60,"AG_deaths":null`),
		))
	case strings.HasPrefix(where, "G_Total_cases"):
		fmt.Fprint(w, features(
			row(`"Gender":"Female","G_Total_cases":130`),
			row(`"Gender":"Male","G_Total_cases":120`),
		))
	case strings.HasPrefix(where, "RE_total_cases"):
		fmt.Fprint(w, features(
			row(`"Race_ethnicity":"Hispanic/Latinx","RE_total_cases":80,"RE_deaths":3`),
			row(`"Race_ethnicity":"Asian","RE_total_cases":30,"RE_deaths":1`),
			row(`"Race_ethnicity":"Black/African American","RE_total_cases":25,"RE_deaths":2`),
			row(`"Race_ethnicity":"White","RE_total_cases":70,"RE_deaths":5`),
			row(`"Race_ethnicity":"Native Hawaiian/Pacific Islander","RE_total_cases":3,"RE_deaths":0`),
			row(`"Race_ethnicity":"American Indian/Alaska Native","RE_total_cases":2,"RE_deaths":0`),
			row(`"Race_ethnicity":"Multirace","RE_total_cases":10,"RE_deaths":0`),
			row(fmt.Sprintf(`"Race_ethnicity":"Other","RE_total_cases":%s,"RE_deaths":0`, p.otherCases)),
			row(`"Race_ethnicity":"Unknown","RE_total_cases":25,"RE_deaths":0`),
		))
	default:
		http.Error(w, "unexpected where "+where, http.StatusBadRequest)
	}
}

func newAdapter(t *testing.T, p *portal) Adapter {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	deps, _ := adapter.TestDeps(map[string]string{"arcgis": srv.URL})
	a := New(deps).(Adapter)
	a.disclaimers = func(ctx context.Context) (string, error) {
		return "Disclaimer: Numbers are updated weekdays at 6:00 PM.", nil
	}
	return a
}

func TestGetCounty(t *testing.T) {
	p := &portal{editFieldsInfo: "null", otherCases: "5"}
	county, err := newAdapter(t, p).GetCounty(context.Background())
	require.NoError(t, err)
	require.NoError(t, record.Validate(county))
	require.NoError(t, record.CheckCumulative(county.Series))

	require.Equal(t, "2021-01-12T17:00:00Z", county.UpdateTime)
	require.True(t, strings.HasSuffix(county.SourceURL, seriesPath+"/query"))
	require.Equal(t, "Disclaimer: Numbers are updated weekdays at 6:00 PM.", county.MetaFromSource)

	require.Empty(t, cmp.Diff([]record.CaseEntry{
		{Date: "2020-03-02", Cases: 0, CumulCases: 2},
		{Date: "2020-03-03", Cases: 3, CumulCases: 5},
		{Date: "2020-03-04", Cases: 4, CumulCases: 9},
	}, county.Series.Cases))
	require.Len(t, county.Series.Tests, 2)
	require.Equal(t, 15, county.Series.Tests[1].Tests)
	require.Equal(t, record.Unknown, county.Series.Tests[1].Positive)

	require.Len(t, county.CaseTotals.AgeGroup, 4)
	require.Equal(t, "0-17", county.CaseTotals.AgeGroup[0].Group)
	require.Equal(t, record.N(record.Unknown), county.DeathTotals.AgeGroup[2].RawCount)
	require.Equal(t, record.N(130), county.CaseTotals.Gender["female"])
	require.Equal(t, record.N(record.Unknown), county.DeathTotals.Gender["male"])
	require.Equal(t, record.N(80), county.CaseTotals.RaceEth[record.LatinxOrHispanic])
	require.Equal(t, record.N(5), county.DeathTotals.RaceEth[record.White])

	require.Contains(t, p.wheres, "AG_Total_cases > 0 AND Date_reported = '01-12-2021' AND Age_group <> 'Total_AG'")
}

func TestSuppressedCountsAreKept(t *testing.T) {
	p := &portal{editFieldsInfo: "null", otherCases: `"<10"`}
	county, err := newAdapter(t, p).GetCounty(context.Background())
	require.NoError(t, err)
	require.NoError(t, record.Validate(county))

	require.Equal(t, record.Count{Placeholder: "<10"}, county.CaseTotals.RaceEth[record.Other])
	require.Equal(t, record.N(80), county.CaseTotals.RaceEth[record.LatinxOrHispanic])
	require.Contains(t, county.MetaFromBaypd, `case_totals.race_eth.Other (<10)`)

	encoded, err := json.Marshal(county.CaseTotals.RaceEth)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"Other":"<10"`)
}

func TestTimeReferenceIsRejected(t *testing.T) {
	p := &portal{
		editFieldsInfo: `{"dateFieldsTimeReference":{"timeZone":"Pacific Standard Time"}}`,
		otherCases:     "5",
	}
	_, err := newAdapter(t, p).GetCounty(context.Background())
	require.True(t, upstream.IsFormatError(err), err)
}

func TestDisclaimerLines(t *testing.T) {
	text := "Solano County COVID-19\n  Disclaimer: data are preliminary  \nCases\nDISCLAIMERS apply"
	require.Equal(t, []string{"Disclaimer: data are preliminary", "DISCLAIMERS apply"}, DisclaimerLines(text))
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
