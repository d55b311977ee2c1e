// Package qlik speaks the Qlik Engine API, JSON-RPC over a websocket with
// Qlik's `handle` and `delta` extensions.
package qlik

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/lib/upstream"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var tracer = otel.Tracer("platforms/qlik")

const (
	report_send    = "client.send"
	report_receive = "client.receive"
	report_skip    = "client.skip-message"
)

// GlobalHandle addresses the engine itself rather than an opened object.
const GlobalHandle = -1

// JsonRpcError is an error returned inside a JSON-RPC reply.
type JsonRpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JsonRpcError) Error() string {
	reason := fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	if len(e.Data) > 0 && string(e.Data) != "null" {
		reason += fmt.Sprintf(" -- %s", e.Data)
	}
	return reason
}

func (e *JsonRpcError) Unwrap() error {
	return &upstream.BadRequest{Message: e.Error()}
}

type request struct {
	JsonRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Handle  int    `json:"handle"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Delta   bool   `json:"delta,omitempty"`
}

type reply struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *JsonRpcError   `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type Options struct {
	// Cookie is sent with the websocket handshake when not empty.
	Cookie string
	// Timeout bounds every single request/reply, zero means 30 seconds.
	Timeout time.Duration
}

// Client is a session with one Qlik document. It is not safe for concurrent use.
type Client struct {
	conn           *websocket.Conn
	documentID     string
	documentHandle int
	messageID      int
	timeout        time.Duration
	tel            telemetry.API
}

// Open connects to <baseURL>/<documentID> and opens the document.
func Open(ctx context.Context, baseURL, documentID string, opts Options, tel telemetry.API) (*Client, error) {
	ctx, span := tracer.Start(ctx, "Open")
	defer span.End()

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	socketURL := baseURL + documentID
	span.SetAttributes(attribute.String("url", socketURL))

	dialOpts := &websocket.DialOptions{}
	if opts.Cookie != "" {
		dialOpts.HTTPHeader = http.Header{"Cookie": {opts.Cookie}}
	}
	conn, _, err := websocket.Dial(ctx, socketURL, dialOpts)
	if err != nil {
		span.SetStatus(codes.Error, "failed to connect")
		return nil, fmt.Errorf("connect %s: %w", socketURL, err)
	}
	// layouts of big charts easily exceed the default 32KiB
	conn.SetReadLimit(64 << 20)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		conn:           conn,
		documentID:     documentID,
		documentHandle: GlobalHandle,
		messageID:      1,
		timeout:        timeout,
		tel:            telemetry.NewScopedAPI("qlik", tel),
	}

	var doc handleResult
	err = c.Send(ctx, GlobalHandle, "OpenDoc", []any{documentID, "", "", "", false}, false, &doc)
	if err != nil {
		c.Close()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("open document: %w", err)
	}
	c.documentHandle = doc.Return.Handle
	return c, nil
}

// WithSession opens a session, runs fn with it and closes it on every path.
func WithSession(ctx context.Context, baseURL, documentID string, opts Options, tel telemetry.API, fn func(c *Client) error) error {
	c, err := Open(ctx, baseURL, documentID, opts, tel)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// Send sends a message and waits for the reply with the same id, skipping
// notifications and unrelated replies. The result is decoded into `out`
// when it is not nil.
func (c *Client) Send(ctx context.Context, handle int, method string, params any, delta bool, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := c.messageID
	c.messageID++

	msg := request{
		JsonRPC: "2.0",
		ID:      id,
		Handle:  handle,
		Method:  method,
		Params:  params,
		Delta:   delta,
	}
	c.tel.ReportDebug(report_send, method, handle, id)
	err := wsjson.Write(ctx, c.conn, msg)
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	var res reply
	for {
		res = reply{}
		err = wsjson.Read(ctx, c.conn, &res)
		if err != nil {
			return fmt.Errorf("receive %s: %w", method, err)
		}
		if res.ID != nil && *res.ID == id {
			break
		}
		c.tel.ReportDebug(report_skip, res.Method)
	}
	c.tel.ReportDebug(report_receive, method, id)

	if res.Error != nil {
		return res.Error
	}
	if len(res.Result) > 0 {
		if out == nil {
			return nil
		}
		return json.Unmarshal(res.Result, out)
	}
	if res.Method != "" {
		if out == nil {
			return nil
		}
		serialized, err := json.Marshal(map[string]any{
			"method": res.Method,
			"params": res.Params,
		})
		if err != nil {
			return err
		}
		return json.Unmarshal(serialized, out)
	}
	return upstream.Formatf("unexpected reply to %s with id %d", method, id)
}

type handleResult struct {
	Return struct {
		Type   string `json:"qType"`
		Handle int    `json:"qHandle"`
	} `json:"qReturn"`
}

// Layout is the result of GetLayout/GetAppLayout.
type Layout = map[string]any

func (c *Client) GetAppLayout(ctx context.Context) (Layout, error) {
	var out Layout
	err := c.Send(ctx, c.documentHandle, "GetAppLayout", []any{}, false, &out)
	return out, err
}

// GetObject returns the handle of an object (ex. a chart) by id.
func (c *Client) GetObject(ctx context.Context, objectID string) (int, error) {
	var out handleResult
	err := c.Send(ctx, c.documentHandle, "GetObject", []any{objectID}, false, &out)
	return out.Return.Handle, err
}

func (c *Client) GetLayout(ctx context.Context, handle int) (Layout, error) {
	var out Layout
	err := c.Send(ctx, handle, "GetLayout", []any{}, false, &out)
	return out, err
}

// GetData is the layout of an object, including its data pages.
func (c *Client) GetData(ctx context.Context, objectID string) (Layout, error) {
	ctx, span := tracer.Start(ctx, "GetData")
	defer span.End()
	span.SetAttributes(attribute.String("object", objectID))

	handle, err := c.GetObject(ctx, objectID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get object %s: %w", objectID, err)
	}
	layout, err := c.GetLayout(ctx, handle)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get layout of %s: %w", objectID, err)
	}
	return layout, nil
}

func (c *Client) GetField(ctx context.Context, field string) (int, error) {
	var out handleResult
	err := c.Send(ctx, c.documentHandle, "GetField", []any{field}, false, &out)
	return out.Return.Handle, err
}

// SelectFieldValue filters the whole document, ex. to pin the label language.
func (c *Client) SelectFieldValue(ctx context.Context, field, value string) error {
	handle, err := c.GetField(ctx, field)
	if err != nil {
		return fmt.Errorf("get field %s: %w", field, err)
	}
	return c.Send(ctx, handle, "Select", []any{value}, false, nil)
}

var excelEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseDate converts a Qlik date, which is an Excel serial date (days since
// 1900-01-01 plus 2, counting the nonexistent 1900-02-29).
func ParseDate(value float64) time.Time {
	return excelEpoch.AddDate(0, 0, int(value)-2)
}
