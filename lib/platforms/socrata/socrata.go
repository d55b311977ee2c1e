// Package socrata reads datasets through the Socrata Open Data API (SODA).
package socrata

import (
	"baypd-scraper/lib/httpclient"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("platforms/socrata")

// SODA's own default page size.
// https://dev.socrata.com/docs/paging.html
const DefaultLimit = 1000

type Client struct {
	http    *resty.Client
	baseURL string

	mutex sync.Mutex
	memo  map[string][]byte
}

func New(http *resty.Client, baseURL string) *Client {
	return &Client{
		http:    http,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		memo:    map[string][]byte{},
	}
}

// request GETs a url and returns the body, identical requests made through
// the same client are only sent once.
func (c *Client) request(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	key := endpoint + "?" + params.Encode()

	c.mutex.Lock()
	cached, ok := c.memo[key]
	c.mutex.Unlock()
	if ok {
		return cached, nil
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(endpoint)
	if err != nil {
		return nil, err
	}
	err = httpclient.CheckResponse(res)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.memo[key] = res.Body()
	c.mutex.Unlock()
	return res.Body(), nil
}

// Resource fetches every record of a dataset matching `params` (SoQL $where,
// $select, $order, etc), paging with $offset/$limit.
func (c *Client) Resource(ctx context.Context, id string, params url.Values) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "Resource")
	defer span.End()
	span.SetAttributes(attribute.String("resource", id))

	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string{}, v...)
	}
	limit := DefaultLimit
	if query.Get("$limit") != "" {
		parsed, err := strconv.Atoi(query.Get("$limit"))
		if err != nil {
			return nil, fmt.Errorf("invalid $limit: %w", err)
		}
		limit = parsed
	}
	query.Set("$limit", strconv.Itoa(limit))
	offset := 0
	if query.Get("$offset") != "" {
		parsed, err := strconv.Atoi(query.Get("$offset"))
		if err != nil {
			return nil, fmt.Errorf("invalid $offset: %w", err)
		}
		offset = parsed
	}

	endpoint := fmt.Sprintf("%s/resource/%s", c.baseURL, id)
	var data []map[string]any
	for {
		query.Set("$offset", strconv.Itoa(offset))
		body, err := c.request(ctx, endpoint, query)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		var page []map[string]any
		err = httpclient.DecodeJSON(body, &page)
		if err != nil {
			span.SetStatus(codes.Error, "failed to parse json response")
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		data = append(data, page...)
		if len(page) < limit || limit <= 0 {
			break
		}
		offset += limit
	}

	span.SetAttributes(attribute.Int("records", len(data)))
	return data, nil
}

// Metadata is the dataset descriptor, only the fields the adapters read are typed.
type Metadata struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	DataUpdatedAt string         `json:"dataUpdatedAt"`
	UpdatedAt     string         `json:"updatedAt"`
	Extra         map[string]any `json:"-"`
}

func (c *Client) Metadata(ctx context.Context, id string) (Metadata, error) {
	ctx, span := tracer.Start(ctx, "Metadata")
	defer span.End()

	body, err := c.request(ctx, fmt.Sprintf("%s/api/views/metadata/v1/%s.json", c.baseURL, id), url.Values{})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Metadata{}, err
	}
	var out Metadata
	err = httpclient.DecodeJSON(body, &out)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	err = httpclient.DecodeJSON(body, &out.Extra)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	return out, nil
}
