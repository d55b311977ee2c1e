// Package adapter holds what every county adapter shares: the dependencies it
// receives and the interface it implements.
package adapter

import (
	"baypd-scraper/internal/components/assert"
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/browser"
	"context"

	"github.com/go-resty/resty/v2"
)

// Adapter produces the record of a single county.
type Adapter interface {
	GetCounty(ctx context.Context) (record.County, error)
}

// Func adapts a function to Adapter.
type Func func(ctx context.Context) (record.County, error)

func (f Func) GetCounty(ctx context.Context) (record.County, error) {
	return f(ctx)
}

// Options toggles alternate acquisition paths.
type Options struct {
	// MarinRendered reads Marin charts through the headless browser instead of
	// fetching their datasets directly.
	MarinRendered bool
}

// Deps are handed to an adapter when it is created. They are owned by that
// adapter for the duration of GetCounty.
type Deps struct {
	HTTP     *resty.Client
	Browser  browser.Launcher
	Template record.Template
	Clock    chrono.API
	Tel      telemetry.API
	Options  Options
	// Endpoints overrides upstream base urls by name, tests point them at
	// local servers.
	Endpoints map[string]string
}

// Check panics when a required dependency is missing.
func (d Deps) Check() {
	if d.HTTP == nil {
		panic("adapter: http client is required")
	}
	assert.NotNil(d.Clock)
	assert.NotNil(d.Tel)
}

// Endpoint returns the override for `name`, or fallback.
func (d Deps) Endpoint(name, fallback string) string {
	if override, ok := d.Endpoints[name]; ok {
		return override
	}
	return fallback
}

// Factory creates the adapter for a county.
type Factory func(deps Deps) Adapter
