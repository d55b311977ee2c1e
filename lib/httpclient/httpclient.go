// Package httpclient builds the HTTP session shared by every source client during a run.
package httpclient

import (
	"baypd-scraper/internal/components/assert"
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/lib/restyutil"
	"baypd-scraper/lib/upstream"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	// Timeout defaults to 60 seconds.
	Timeout time.Duration
	// RequestsPerSecond defaults to 4, a negative value disables the limiter.
	RequestsPerSecond float64
	UserAgent         string
	// Cache stores responses according to their caching headers, nil means an in-memory cache.
	Cache httpcache.Cache
	// CloudflareBypass makes the session look like a browser to anti-bot middleboxes, it is used
	// for county news pages.
	CloudflareBypass bool
	// Transcripts receives full request/response transcripts when not nil.
	Transcripts restyutil.InstrumentOutput
}

// New creates a cache-controlled resty session.
func New(opts Options, tel telemetry.API) *resty.Client {
	assert.NotNil(tel)

	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 4
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Cache == nil {
		opts.Cache = httpcache.NewMemoryCache()
	}

	var base http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if opts.CloudflareBypass {
		base = cloudflarebp.AddCloudFlareByPass(base)
	}
	cached := httpcache.NewTransport(opts.Cache)
	cached.Transport = base

	client := resty.New()
	client.SetTransport(cached)
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, telemetry.NewScopedAPI("http", tel))
	restyutil.InstrumentClient(client, nil, opts.Transcripts)

	return client
}

// CheckResponse converts an HTTP error status into *upstream.BadRequest, using the
// message in the response body when the server sent one.
func CheckResponse(res *resty.Response) error {
	if !res.IsError() {
		return nil
	}
	message := ServerMessage(res.Body())
	if message == "" {
		message = http.StatusText(res.StatusCode())
	}
	return &upstream.BadRequest{
		Status:  res.StatusCode(),
		URL:     res.Request.URL,
		Message: message,
	}
}

// ServerMessage extracts a human readable message from a JSON error body, it returns an
// empty string when there is none.
func ServerMessage(body []byte) string {
	var payload map[string]any
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if msg, ok := payload["message"].(string); ok {
		return msg
	}
	switch e := payload["error"].(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// GetJSON performs a GET and decodes the JSON response into a value of type T.
func GetJSON[T any](ctx context.Context, client *resty.Client, endpoint string, params url.Values) (T, error) {
	var out T

	req := client.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	res, err := req.Get(endpoint)
	if err != nil {
		return out, fmt.Errorf("fetch: %w", err)
	}
	err = CheckResponse(res)
	if err != nil {
		return out, err
	}

	err = DecodeJSON(res.Body(), &out)
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return out, nil
}

// DecodeJSON decodes JSON into out, keeping numbers as json.Number when out holds
// untyped values so that large integers do not lose precision.
func DecodeJSON(body []byte, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	return decoder.Decode(out)
}
