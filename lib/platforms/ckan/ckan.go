// Package ckan reads CKAN datastore resources, ex. data.ca.gov.
package ckan

import (
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/upstream"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("platforms/ckan")

type Client struct {
	http    *resty.Client
	baseURL *url.URL
}

func New(http *resty.Client, baseURL string) (Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return Client{}, err
	}
	return Client{http: http, baseURL: parsed}, nil
}

func (c Client) resolve(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.baseURL.ResolveReference(parsed).String()
}

type envelope struct {
	Success bool            `json:"success"`
	Error   json.RawMessage `json:"error"`
	Result  json.RawMessage `json:"result"`
}

func errorMessage(raw json.RawMessage, body []byte) string {
	if len(raw) == 0 || string(raw) == "null" {
		return string(body)
	}
	var e map[string]any
	if json.Unmarshal(raw, &e) == nil {
		if msg, ok := e["message"]; ok {
			return fmt.Sprint(msg)
		}
	}
	return string(raw)
}

// request GETs an action endpoint and returns its `result`.
func (c Client) request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	res, err := req.Get(endpoint)
	if err != nil {
		return nil, err
	}

	var data envelope
	err = json.Unmarshal(res.Body(), &data)
	if err != nil {
		checkErr := httpclient.CheckResponse(res)
		if checkErr != nil {
			return nil, checkErr
		}
		return nil, fmt.Errorf("decode ckan response: %w", err)
	}
	if !data.Success {
		return nil, &upstream.BadRequest{
			Status:  res.StatusCode(),
			URL:     endpoint,
			Message: "CKAN API Error: " + errorMessage(data.Error, res.Body()),
		}
	}
	return data.Result, nil
}

type Options struct {
	// YieldMeta makes the first item the non-record part of the first page
	// (fields, total, etc).
	YieldMeta bool
	// Filters and Q are JSON encoded unless they are strings.
	Filters any
	Q       any
	Params  url.Values
}

func encodeParam(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	serialized, err := json.Marshal(v)
	return string(serialized), err
}

// Records iterates over a datastore_search, following result._links.next.
type Records struct {
	ctx     context.Context
	client  Client
	nextURL string
	params  url.Values

	yieldMeta bool
	page      []map[string]any
	current   map[string]any
	count     int
	done      bool
	err       error
}

// Data searches a resource. No request is sent until the first call to Next.
func (c Client) Data(ctx context.Context, resourceID string, opts Options) *Records {
	params := url.Values{}
	for k, v := range opts.Params {
		params[k] = append([]string{}, v...)
	}
	params.Set("resource_id", resourceID)

	records := &Records{
		ctx:       ctx,
		client:    c,
		nextURL:   c.resolve("/api/3/action/datastore_search"),
		params:    params,
		yieldMeta: opts.YieldMeta,
	}
	for key, value := range map[string]any{"q": opts.Q, "filters": opts.Filters} {
		if value == nil {
			continue
		}
		encoded, err := encodeParam(value)
		if err != nil {
			records.err = err
			return records
		}
		params.Set(key, encoded)
	}
	return records
}

type searchResult struct {
	Records []map[string]any `json:"records"`
	Total   int              `json:"total"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

func (r *Records) fetch() error {
	ctx, span := tracer.Start(r.ctx, "Data")
	defer span.End()
	span.SetAttributes(attribute.String("url", r.nextURL))

	raw, err := r.client.request(ctx, r.nextURL, r.params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	var result searchResult
	err = httpclient.DecodeJSON(raw, &result)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse json response")
		return fmt.Errorf("decode datastore_search result: %w", err)
	}

	if r.yieldMeta {
		var meta map[string]any
		err = httpclient.DecodeJSON(raw, &meta)
		if err != nil {
			return err
		}
		delete(meta, "records")
		r.page = append(r.page, meta)
		r.yieldMeta = false
	}

	if len(result.Records) == 0 {
		r.done = true
		return nil
	}
	r.count += len(result.Records)
	r.page = append(r.page, result.Records...)

	if result.Links.Next == "" || (result.Total > 0 && r.count >= result.Total) {
		r.done = true
		return nil
	}
	r.nextURL = r.client.resolve(result.Links.Next)
	r.params = nil
	return nil
}

func (r *Records) Next() bool {
	for len(r.page) == 0 {
		if r.err != nil || r.done {
			return false
		}
		r.err = r.fetch()
	}
	r.current = r.page[0]
	r.page = r.page[1:]
	return true
}

func (r *Records) Value() map[string]any {
	return r.current
}

func (r *Records) Err() error {
	return r.err
}

// All collects every item of a search.
func (c Client) All(ctx context.Context, resourceID string, opts Options) ([]map[string]any, error) {
	records := c.Data(ctx, resourceID, opts)
	var out []map[string]any
	for records.Next() {
		out = append(out, records.Value())
	}
	return out, records.Err()
}

// ResourceShow returns a resource's metadata.
func (c Client) ResourceShow(ctx context.Context, resourceID string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "ResourceShow")
	defer span.End()

	raw, err := c.request(ctx, c.resolve("/api/3/action/resource_show"), url.Values{"id": {resourceID}})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	var out map[string]any
	err = httpclient.DecodeJSON(raw, &out)
	return out, err
}

// TitleCase is how data.ca.gov spells county names in its records.
func TitleCase(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
