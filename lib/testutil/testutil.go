package testutil

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/lib/httpclient"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
)

// LiveCounties parses the LIVE_TESTS environment variable into the set of county ids whose
// network-touching tests should run. The second return value is true when every county is enabled.
func LiveCounties(value string) (map[string]bool, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "":
		return nil, false
	case "1", "t", "true", "*", "all":
		return nil, true
	}

	enabled := map[string]bool{}
	for _, county := range strings.Split(value, ",") {
		county = strings.TrimSpace(county)
		if county != "" {
			enabled[county] = true
		}
	}
	return enabled, false
}

// LiveTests skips the test unless LIVE_TESTS enables county.
func LiveTests(t testing.TB, county string) {
	t.Helper()
	enabled, all := LiveCounties(os.Getenv("LIVE_TESTS"))
	if all || enabled[county] {
		return
	}
	t.Skipf("set LIVE_TESTS=%s (or *) to run tests against the live %s sources", county, county)
}

// Fixture is a canned HTTP response.
type Fixture struct {
	Status      int
	ContentType string
	Body        string
}

// ServeFixtures starts a test server that answers request paths (query excluded) with fixtures.
// Unknown paths answer 404.
func ServeFixtures(t testing.TB, fixtures map[string]Fixture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture, ok := fixtures[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if fixture.ContentType != "" {
			w.Header().Set("Content-Type", fixture.ContentType)
		}
		if fixture.Status != 0 {
			w.WriteHeader(fixture.Status)
		}
		w.Write([]byte(fixture.Body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// HTTPClient returns an unthrottled session for talking to test servers.
func HTTPClient() *resty.Client {
	return httpclient.New(httpclient.Options{RequestsPerSecond: -1}, telemetry.NewRecorder())
}
