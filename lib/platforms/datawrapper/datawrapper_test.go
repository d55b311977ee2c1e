package datawrapper

import (
	"baypd-scraper/lib/testutil"
	"baypd-scraper/lib/upstream"
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func dataURL(csv string) string {
	return "data:application/octet-stream;charset=utf-8," + url.QueryEscape(csv)
}

func TestDecodeDataURL(t *testing.T) {
	decoded, err := DecodeDataURL(dataURL("Test Date,Positive Tests\n3/1/2020,2\n"))
	require.NoError(t, err)
	require.Equal(t, "Test Date,Positive Tests\n3/1/2020,2\n", decoded)

	_, err = DecodeDataURL("https://example.org/data.csv")
	require.True(t, upstream.IsFormatError(err))

	_, err = DecodeDataURL("data:text/csv,a,b")
	require.True(t, upstream.IsFormatError(err))
}

func TestParseCSV(t *testing.T) {
	table, err := ParseCSV(
		"Date ,Total Cases,Total Recovered*\n3/1/2020,1,0\n3/2/2020,3,0\n",
		[]string{"Date", "Total Cases", "Total Recovered*"},
	)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	require.Equal(t, "3", table.Rows[1]["Total Cases"])

	_, err = ParseCSV("Date,Cases\n", []string{"Date", "Total Cases"})
	require.True(t, upstream.IsFormatError(err))
}

func TestFetchDatasetFollowsRefresh(t *testing.T) {
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{
		"/Eq6Es/": {
			ContentType: "text/html",
			Body:        `<html><head><meta http-equiv="REFRESH" content="0; url=https://datawrapper.dwcdn.net/Eq6Es/14/"></head></html>`,
		},
		"/Eq6Es/14/dataset.csv": {
			ContentType: "text/csv",
			Body:        "Date,Total Cases\n3/1/2020,1\n",
		},
	})

	// the refresh points at the real cdn, rewrite it to the test server
	body := `<html><head><meta http-equiv="REFRESH" content="0; url=` + srv.URL + `/Eq6Es/14/"></head></html>`
	srv2 := testutil.ServeFixtures(t, map[string]testutil.Fixture{
		"/Eq6Es/": {ContentType: "text/html", Body: body},
	})

	csv, err := FetchDataset(context.Background(), testutil.HTTPClient(), srv2.URL, "Eq6Es")
	require.NoError(t, err)
	require.Equal(t, "Date,Total Cases\n3/1/2020,1\n", csv)
}

func TestFetchDatasetWithoutRefresh(t *testing.T) {
	srv := testutil.ServeFixtures(t, map[string]testutil.Fixture{
		"/7sHQq/":            {ContentType: "text/html", Body: `<html></html>`},
		"/7sHQq/dataset.csv": {ContentType: "text/csv", Body: "Test Date,Positive Tests\n"},
	})

	csv, err := FetchDataset(context.Background(), testutil.HTTPClient(), srv.URL, "7sHQq")
	require.NoError(t, err)
	require.Equal(t, "Test Date,Positive Tests\n", csv)
}

func TestFrameSelector(t *testing.T) {
	require.Equal(t, `iframe[src*="//datawrapper.dwcdn.net/aBeEd/"]`, FrameSelector("aBeEd"))
}
