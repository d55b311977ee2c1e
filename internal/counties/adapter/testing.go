package adapter

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/browser"
	"baypd-scraper/lib/testutil"
	"time"
)

// TestNow is the instant TestDeps' clock is fixed at.
var TestNow = time.Date(2021, 1, 15, 12, 0, 0, 0, time.FixedZone("PST", -8*60*60))

// TestDeps returns dependencies suitable for tests: an unthrottled session,
// a fixed clock, the default template and an in-memory telemetry recorder.
func TestDeps(endpoints map[string]string) (Deps, *telemetry.Recorder) {
	tel := telemetry.NewRecorder()
	return Deps{
		HTTP:      testutil.HTTPClient(),
		Browser:   browser.New(browser.Options{}),
		Template:  record.DefaultTemplate(),
		Clock:     chrono.FixedImpl{Time: TestNow},
		Tel:       tel,
		Endpoints: endpoints,
	}, tel
}
