// Package arcgis is a thin client for the query endpoint of ArcGIS FeatureServer layers.
package arcgis

import (
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/upstream"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("platforms/arcgis")

type FeatureServer struct {
	http    *resty.Client
	baseURL string
}

// NewFeatureServer creates a client for the server at `baseURL`, which
// includes the organization id, ex. https://services1.arcgis.com/Ko5rxt00spOfjMqj
func NewFeatureServer(http *resty.Client, baseURL string) FeatureServer {
	return FeatureServer{
		http:    http,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s FeatureServer) LayerURL(service string, layer int) string {
	return fmt.Sprintf("%s/ArcGIS/rest/services/%s/FeatureServer/%d", s.baseURL, service, layer)
}

// Params are the commonly used query parameters, anything else goes in Extra.
// https://developers.arcgis.com/rest/services-reference/query-feature-service-layer-.htm
type Params struct {
	// Where defaults to 1=1.
	Where                      string
	OutFields                  string
	GroupByFieldsForStatistics string
	OrderByFields              string
	OutStatistics              []Statistic
	Extra                      url.Values
}

type Statistic struct {
	Type         string `json:"statisticType"`
	OnField      string `json:"onStatisticField"`
	OutFieldName string `json:"outStatisticFieldName"`
}

func (p Params) values() (url.Values, error) {
	values := url.Values{}
	for k, v := range p.Extra {
		values[k] = append([]string{}, v...)
	}
	where := p.Where
	if where == "" {
		where = "1=1"
	}
	values.Set("where", where)
	values.Set("f", "json")
	values.Set("returnGeometry", "false")
	if p.OutFields != "" {
		values.Set("outFields", p.OutFields)
	}
	if p.GroupByFieldsForStatistics != "" {
		values.Set("groupByFieldsForStatistics", p.GroupByFieldsForStatistics)
	}
	if p.OrderByFields != "" {
		values.Set("orderByFields", p.OrderByFields)
	}
	if len(p.OutStatistics) > 0 {
		serialized, err := json.Marshal(p.OutStatistics)
		if err != nil {
			return nil, err
		}
		values.Set("outStatistics", string(serialized))
	}
	return values, nil
}

type errorPayload struct {
	Message string   `json:"message"`
	Details []string `json:"details"`
}

type queryResponse struct {
	Error                 *errorPayload `json:"error"`
	ExceededTransferLimit bool          `json:"exceededTransferLimit"`
	Features              []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
}

func checkError(e *errorPayload, endpoint string) error {
	if e == nil {
		return nil
	}
	message := e.Message
	if len(e.Details) > 0 {
		message = fmt.Sprintf("%s (%s)", message, strings.Join(e.Details, " "))
	}
	return &upstream.BadRequest{URL: endpoint, Message: message}
}

// Rows iterates over the attributes of the features a query returns,
// transparently following exceededTransferLimit pages.
type Rows struct {
	ctx      context.Context
	server   FeatureServer
	endpoint string
	params   url.Values

	offset  int
	page    []map[string]any
	current map[string]any
	done    bool
	err     error
}

// Query starts a query against a layer of `service`, no request is sent
// until the first call to Next.
func (s FeatureServer) Query(ctx context.Context, service string, layer int, params Params) *Rows {
	rows := &Rows{
		ctx:      ctx,
		server:   s,
		endpoint: s.LayerURL(service, layer) + "/query",
	}
	rows.params, rows.err = params.values()
	if rows.err != nil {
		return rows
	}
	if offset := rows.params.Get("resultOffset"); offset != "" {
		var err error
		rows.offset, err = strconv.Atoi(offset)
		if err != nil {
			rows.err = fmt.Errorf("invalid resultOffset: %w", err)
		}
	}
	return rows
}

func (r *Rows) fetch() (more bool, err error) {
	ctx, span := tracer.Start(r.ctx, "Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("endpoint", r.endpoint),
		attribute.Int("offset", r.offset),
	)

	params := url.Values{}
	for k, v := range r.params {
		params[k] = v
	}
	if r.offset > 0 {
		params.Set("resultOffset", strconv.Itoa(r.offset))
	}

	res, err := r.server.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(r.endpoint)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return false, err
	}
	err = httpclient.CheckResponse(res)
	if err != nil {
		span.SetStatus(codes.Error, "bad status")
		return false, err
	}

	var data queryResponse
	err = httpclient.DecodeJSON(res.Body(), &data)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse json response")
		return false, fmt.Errorf("decode arcgis response: %w", err)
	}
	err = checkError(data.Error, r.endpoint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	r.page = make([]map[string]any, len(data.Features))
	for i, f := range data.Features {
		r.page[i] = f.Attributes
	}
	r.offset += len(data.Features)
	// an empty page ends the query even when the server claims more
	return data.ExceededTransferLimit && len(data.Features) > 0, nil
}

// Next advances to the next row, fetching another page when needed.
func (r *Rows) Next() bool {
	for len(r.page) == 0 {
		if r.err != nil || r.done {
			return false
		}
		more, err := r.fetch()
		if err != nil {
			r.err = err
			return false
		}
		if !more {
			r.done = true
		}
	}
	r.current = r.page[0]
	r.page = r.page[1:]
	return true
}

func (r *Rows) Value() map[string]any {
	return r.current
}

func (r *Rows) Err() error {
	return r.err
}

// QueryAll collects every row of a query.
func (s FeatureServer) QueryAll(ctx context.Context, service string, layer int, params Params) ([]map[string]any, error) {
	rows := s.Query(ctx, service, layer, params)
	var out []map[string]any
	for rows.Next() {
		out = append(out, rows.Value())
	}
	return out, rows.Err()
}

type LayerMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	EditingInfo struct {
		LastEditDate int64 `json:"lastEditDate"`
	} `json:"editingInfo"`
	// EditFieldsInfo is null unless the layer tracks editors, in which case
	// dateFieldsTimeReference may move edit dates out of UTC.
	EditFieldsInfo map[string]any `json:"editFieldsInfo"`
	Fields []struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		Alias string `json:"alias"`
	} `json:"fields"`
}

// Metadata fetches a layer's descriptor.
func (s FeatureServer) Metadata(ctx context.Context, service string, layer int) (LayerMetadata, error) {
	ctx, span := tracer.Start(ctx, "Metadata")
	defer span.End()

	endpoint := s.LayerURL(service, layer)
	type metadataResponse struct {
		LayerMetadata
		Error *errorPayload `json:"error"`
	}
	data, err := httpclient.GetJSON[metadataResponse](ctx, s.http, endpoint, url.Values{"f": {"json"}})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return LayerMetadata{}, err
	}
	err = checkError(data.Error, endpoint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return LayerMetadata{}, err
	}
	return data.LayerMetadata, nil
}
