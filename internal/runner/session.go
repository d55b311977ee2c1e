// Package runner drives the scrapers behind the command line tools: it builds
// the shared dependencies of a run, scrapes the requested counties in order
// and renders what they produced.
package runner

import (
	"baypd-scraper/internal/components/assert"
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/news"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/browser"
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/restyutil"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gregjones/httpcache"
)

// Options are the per-invocation overrides of a Config.
type Options struct {
	// CacheDir overrides http.cache_dir.
	CacheDir string
	// DebugHTTP is a directory receiving request/response transcripts.
	DebugHTTP     string
	MarinRendered bool
	// Clock defaults to the America/Los_Angeles wall clock.
	Clock chrono.API
	Tel   telemetry.API
	// Endpoints overrides upstream urls by name, tests point them at local
	// servers.
	Endpoints map[string]string
}

// Session holds what stays alive for one run. HTTP clients are not part of
// it, every county gets a fresh one.
type Session struct {
	Config   Config
	Template record.Template
	Browser  browser.Launcher
	Clock    chrono.API
	Tel      telemetry.API

	opts        Options
	cache       *httpclient.BadgerCache
	transcripts restyutil.InstrumentOutput
}

func NewSession(cfg Config, opts Options) (*Session, error) {
	assert.NotNil(opts.Tel)

	clock := opts.Clock
	if clock == nil {
		standard, err := chrono.NewStandardImpl()
		if err != nil {
			return nil, err
		}
		clock = standard
	}

	template := record.DefaultTemplate()
	if cfg.Template != "" {
		loaded, err := record.LoadTemplate(cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("load template: %w", err)
		}
		template = loaded
	}

	s := &Session{
		Config:   cfg,
		Template: template,
		Browser: browser.New(browser.Options{
			Visible: cfg.Browser.Visible || browser.VisibleFromEnv(),
		}),
		Clock: clock,
		Tel:   opts.Tel,
		opts:  opts,
	}

	if opts.DebugHTTP != "" {
		output, err := restyutil.NewFilesystemOutput(opts.DebugHTTP)
		if err != nil {
			return nil, fmt.Errorf("debug http output: %w", err)
		}
		s.transcripts = output
	}

	cacheDir := cfg.HTTP.CacheDir
	if opts.CacheDir != "" {
		cacheDir = opts.CacheDir
	}
	if cacheDir != "" {
		cache, err := httpclient.OpenBadgerCache(cacheDir, opts.Tel)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// Close releases the persistent cache.
func (s *Session) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// prefixedOutput keeps transcripts of different clients apart, each client
// numbers its requests from 1.
type prefixedOutput struct {
	prefix string
	inner  restyutil.InstrumentOutput
}

func (o prefixedOutput) Write(id string, contents string) {
	o.inner.Write(o.prefix+"-"+id, contents)
}

// NewHTTP creates a client owned by a single county, `name` labels its
// transcripts.
func (s *Session) NewHTTP(name string, cloudflareBypass bool) *resty.Client {
	var cache httpcache.Cache
	if s.cache != nil {
		cache = s.cache
	}
	var transcripts restyutil.InstrumentOutput
	if s.transcripts != nil {
		transcripts = prefixedOutput{prefix: name, inner: s.transcripts}
	}
	return httpclient.New(httpclient.Options{
		Timeout:           time.Duration(s.Config.HTTP.TimeoutSeconds) * time.Second,
		RequestsPerSecond: s.Config.HTTP.RequestsPerSecond,
		UserAgent:         s.Config.HTTP.UserAgent,
		Cache:             cache,
		CloudflareBypass:  cloudflareBypass,
		Transcripts:       transcripts,
	}, s.Tel)
}

func (s *Session) Endpoints() map[string]string {
	return s.opts.Endpoints
}

// AdapterDeps returns the dependencies of one county adapter.
func (s *Session) AdapterDeps(id string) adapter.Deps {
	return adapter.Deps{
		HTTP:      s.NewHTTP(id, false),
		Browser:   s.Browser,
		Template:  s.Template,
		Clock:     s.Clock,
		Tel:       s.Tel,
		Options:   adapter.Options{MarinRendered: s.opts.MarinRendered},
		Endpoints: s.opts.Endpoints,
	}
}

// NewsDeps returns the dependencies of one county news scraper.
func (s *Session) NewsDeps(id string) news.Deps {
	return news.Deps{
		HTTP:      s.NewHTTP("news-"+id, true),
		Browser:   s.Browser,
		Clock:     s.Clock,
		Tel:       s.Tel,
		Endpoints: s.opts.Endpoints,
	}
}
