package arcgis

import (
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryFollowsTransferLimit(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ArcGIS/rest/services/CaseDataDemographics/FeatureServer/0/query", r.URL.Path)
		require.Equal(t, "json", r.URL.Query().Get("f"))
		require.Equal(t, "false", r.URL.Query().Get("returnGeometry"))
		require.Equal(t, "1=1", r.URL.Query().Get("where"))
		offsets = append(offsets, r.URL.Query().Get("resultOffset"))

		if r.URL.Query().Get("resultOffset") == "" {
			w.Write([]byte(`{"exceededTransferLimit":true,"features":[
				{"attributes":{"Sex":"Male","value":3},"geometry":{"x":1}},
				{"attributes":{"Sex":"Female","value":4}}
			]}`))
			return
		}
		w.Write([]byte(`{"features":[{"attributes":{"Sex":"Unknown","value":1}}]}`))
	}))
	defer srv.Close()

	server := NewFeatureServer(testutil.HTTPClient(), srv.URL+"/")
	rows, err := server.QueryAll(context.Background(), "CaseDataDemographics", 0, Params{OutFields: "*"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "Male", rows[0]["Sex"])
	require.Equal(t, "Unknown", rows[2]["Sex"])
	require.Equal(t, json.Number("1"), rows[2]["value"])
	require.Equal(t, []string{"", "2"}, offsets)
}

func TestQueryStopsOnEmptyPage(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("resultOffset") == "" {
			w.Write([]byte(`{"exceededTransferLimit":true,"features":[{"attributes":{"value":1}}]}`))
			return
		}
		w.Write([]byte(`{"exceededTransferLimit":true,"features":[]}`))
	}))
	defer srv.Close()

	server := NewFeatureServer(testutil.HTTPClient(), srv.URL)
	rows, err := server.QueryAll(context.Background(), "Svc", 0, Params{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2, requests)
}

func TestQueryInvalidOffset(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	server := NewFeatureServer(testutil.HTTPClient(), srv.URL)
	rows := server.Query(context.Background(), "Svc", 0, Params{Extra: url.Values{"resultOffset": {"ten"}}})
	require.False(t, rows.Next())
	require.ErrorContains(t, rows.Err(), "invalid resultOffset")
	require.Zero(t, requests)
}

func TestQueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":400,"message":"Cannot perform query.","details":["Invalid field:", "Foo"]}}`))
	}))
	defer srv.Close()

	server := NewFeatureServer(testutil.HTTPClient(), srv.URL)
	rows := server.Query(context.Background(), "Svc", 1, Params{})
	require.False(t, rows.Next())

	var badReq *upstream.BadRequest
	require.ErrorAs(t, rows.Err(), &badReq)
	require.Equal(t, "Cannot perform query. (Invalid field: Foo)", badReq.Message)
}

func TestOutStatisticsParam(t *testing.T) {
	values, err := Params{
		GroupByFieldsForStatistics: "AgeGroup",
		OutStatistics: []Statistic{{
			Type:         "count",
			OnField:      "ObjectId",
			OutFieldName: "value",
		}},
	}.values()
	require.NoError(t, err)
	require.Equal(t, "AgeGroup", values.Get("groupByFieldsForStatistics"))
	require.JSONEq(t, `[{"statisticType":"count","onStatisticField":"ObjectId","outStatisticFieldName":"value"}]`, values.Get("outStatistics"))
}

func TestMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ArcGIS/rest/services/Svc/FeatureServer/0", r.URL.Path)
		w.Write([]byte(`{"name":"Cases","editingInfo":{"lastEditDate":1609459200000}}`))
	}))
	defer srv.Close()

	meta, err := NewFeatureServer(testutil.HTTPClient(), srv.URL).Metadata(context.Background(), "Svc", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1609459200000), meta.EditingInfo.LastEditDate)
}
