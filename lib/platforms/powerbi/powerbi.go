// Package powerbi queries the backend of public PowerBI reports the same way
// the report frontend does.
package powerbi

import (
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/upstream"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("platforms/powerbi")

const (
	DefaultAPIBase    = "https://wabi-us-gov-iowa-api.analysis.usgovcloudapi.net/public/reports"
	DefaultFunction   = "CountNotNull"
	resourceKeyHeader = "X-PowerBI-ResourceKey"
)

// the row list of the first data shape
var dataPath = []any{"results", 0, "result", "data", "dsr", "DS", 0, "PH", 0, "DM0"}
var dsPath = []any{"results", 0, "result", "data", "dsr", "DS", 0}
var errorPath = []any{"results", 0, "result", "data", "dsr", "DataShapes", 0, "odata.error", "message", "value"}

// QueryError is an error envelope returned by the query endpoint.
type QueryError struct {
	URL     string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("powerbi query error: %s", e.Message)
}

func (e *QueryError) Unwrap() error {
	return &upstream.BadRequest{URL: e.URL, Message: e.Message}
}

// Spec describes a single visual's query. Source, Entity and Property are
// required, everything else has a default.
type Spec struct {
	// Source is the alias of the entity within the query, ex. "v".
	Source string
	// Entity is the table the visual reads, ex. "V_RaceEth_Rates".
	Entity string
	// Property is the grouping column, ex. "RaceEth".
	Property string
	// Function names the default aggregation, CountNotNull when empty.
	Function    string
	ModelID     int
	ResourceKey string
	// APIBase defaults to DefaultAPIBase.
	APIBase string

	// Select defaults to [ColumnSelect(Property), Aggregation("n")].
	Select []any
	// OrderBy defaults to ascending Property.
	OrderBy []any
	// Binding defaults to WindowBinding(len(Select), 1000).
	Binding            map[string]any
	ApplicationContext map[string]any
}

type Querier struct {
	http *resty.Client
	spec Spec
}

func New(http *resty.Client, spec Spec) (Querier, error) {
	if spec.Source == "" || spec.Entity == "" || spec.Property == "" {
		return Querier{}, fmt.Errorf("powerbi: source, entity and property must be set")
	}
	if spec.ModelID == 0 || spec.ResourceKey == "" {
		return Querier{}, fmt.Errorf("powerbi: model id and resource key must be set")
	}
	if spec.Function == "" {
		spec.Function = DefaultFunction
	}
	if spec.APIBase == "" {
		spec.APIBase = DefaultAPIBase
	}
	spec.APIBase = strings.TrimSuffix(spec.APIBase, "/")
	if spec.Select == nil {
		spec.Select = []any{
			ColumnSelect(spec.Source, spec.Entity, spec.Property),
			Aggregation(spec.Source, spec.Entity, spec.Function, "n"),
		}
	}
	if spec.OrderBy == nil {
		spec.OrderBy = OrderBy(spec.Source, spec.Property)
	}
	if spec.Binding == nil {
		spec.Binding = WindowBinding(len(spec.Select), 1000)
	}
	return Querier{http: http, spec: spec}, nil
}

func (q Querier) Spec() Spec {
	return q.spec
}

// Aggregation is the Aggregation helper bound to the querier's source, entity and function.
func (q Querier) Aggregation(property string) map[string]any {
	return Aggregation(q.spec.Source, q.spec.Entity, q.spec.Function, property)
}

func (q Querier) command() map[string]any {
	return map[string]any{
		"SemanticQueryDataShapeCommand": map[string]any{
			"Query": map[string]any{
				"Version": 2,
				"From": []any{
					map[string]any{"Name": q.spec.Source, "Entity": q.spec.Entity},
				},
				"Select":  q.spec.Select,
				"OrderBy": q.spec.OrderBy,
			},
			"Binding": q.spec.Binding,
		},
	}
}

// Body builds the querydata request body.
func (q Querier) Body() (map[string]any, error) {
	commands := map[string]any{"Commands": []any{q.command()}}
	cacheKey, err := json.Marshal(commands)
	if err != nil {
		return nil, err
	}
	query := map[string]any{
		"Query":    commands,
		"CacheKey": string(cacheKey),
		"QueryId":  "",
	}
	if q.spec.ApplicationContext != nil {
		query["ApplicationContext"] = q.spec.ApplicationContext
	}
	return map[string]any{
		"version":       "1.0.0",
		"queries":       []any{query},
		"cancelQueries": []any{},
		"modelId":       q.spec.ModelID,
	}, nil
}

// Execute sends the query and returns the decoded response, error envelopes
// are returned as *QueryError.
func (q Querier) Execute(ctx context.Context) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("entity", q.spec.Entity),
		attribute.Int("model_id", q.spec.ModelID),
	)

	body, err := q.Body()
	if err != nil {
		span.SetStatus(codes.Error, "failed to serialize query")
		return nil, err
	}

	endpoint := q.spec.APIBase + "/querydata"
	res, err := q.http.R().
		SetContext(ctx).
		SetHeader(resourceKeyHeader, q.spec.ResourceKey).
		SetHeader("content-type", "application/json").
		SetQueryParam("synchronous", "true").
		SetBody(body).
		Post(endpoint)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	err = httpclient.CheckResponse(res)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out map[string]any
	err = httpclient.DecodeJSON(res.Body(), &out)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse json response")
		return nil, fmt.Errorf("decode powerbi response: %w", err)
	}

	message, err := upstream.Dig(out, errorPath...)
	if err == nil {
		span.SetStatus(codes.Error, "error envelope")
		return nil, &QueryError{URL: endpoint, Message: fmt.Sprint(message)}
	}
	return out, nil
}

// Rows executes the query and decodes the compressed row list.
func (q Querier) Rows(ctx context.Context) ([][]any, error) {
	response, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return ResponseRows(response)
}

// ResponseRows decodes the row list of a querydata response.
func ResponseRows(response map[string]any) ([][]any, error) {
	raw, err := upstream.DigAs[[]any](response, dataPath...)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, upstream.Formatf("powerbi row %d is %T", i, item)
		}
		rows[i], err = rowFromJSON(obj)
		if err != nil {
			return nil, err
		}
	}
	return DecodeRows(rows)
}

// ValueDict returns a value dictionary (ex. "D0") of a response, category
// columns that use one hold indices into it instead of values.
func ValueDict(response map[string]any, name string) ([]string, error) {
	path := append(append([]any{}, dsPath...), "ValueDicts", name)
	values, err := upstream.DigAs[[]any](response, path...)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprint(v)
	}
	return out, nil
}
