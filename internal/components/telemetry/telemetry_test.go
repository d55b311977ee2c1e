package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorder()
	scoped := NewScopedAPI("socrata", NewScopedAPI("santa_clara", rec))
	scoped.ReportDebug("paging", 2)

	scoped.ReportBroken("client.resource", "6cnm-gchg")
	scoped.ReportCount("client.rows", 42)

	broken := rec.Events(EVENT_BROKEN)
	require.Len(t, broken, 1)
	require.Equal(t, "santa_clara.socrata.client.resource", broken[0].ID)
	require.Equal(t, []any{"6cnm-gchg"}, broken[0].Params)

	counts := rec.Events(EVENT_COUNT)
	require.Len(t, counts, 1)
	require.Equal(t, int64(42), counts[0].Count)
	require.True(t, rec.Has(EVENT_COUNT, "client.rows"))
	require.Equal(t, "santa_clara.socrata: paging", rec.Events(EVENT_DEBUG)[0].ID)
}

func TestInstrumentResty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(fromCacheHeader, "1")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := NewRecorder()
	client := resty.New()
	InstrumentResty(client, rec)

	_, err := client.R().Get(srv.URL)
	require.NoError(t, err)

	require.True(t, rec.Has(EVENT_DEBUG, report_resty_request))
	require.True(t, rec.Has(EVENT_DEBUG, report_resty_response))
	require.True(t, rec.Has(EVENT_COUNT, report_resty_cached))
	require.Empty(t, rec.Events(EVENT_BROKEN))
}

func TestInstrumentRestyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "dataset not found", http.StatusNotFound)
	}))
	defer srv.Close()

	rec := NewRecorder()
	client := resty.New()
	InstrumentResty(client, rec)

	_, err := client.R().Get(srv.URL + "/resource/6cnm-gchg.json")
	require.NoError(t, err)

	warnings := rec.Events(EVENT_WARNING)
	require.Len(t, warnings, 1)
	require.Equal(t, report_resty_status, warnings[0].ID)
	require.Equal(t, http.StatusNotFound, warnings[0].Params[2])
	require.False(t, rec.Has(EVENT_COUNT, report_resty_cached))
}
