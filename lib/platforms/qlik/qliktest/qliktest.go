// Package qliktest runs an in-process Qlik engine serving canned chart layouts.
package qliktest

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const documentHandle = 1

// Engine answers OpenDoc, GetAppLayout, GetField, Select, GetObject and
// GetLayout. Objects are looked up in Layouts by id.
type Engine struct {
	Layouts    map[string]map[string]any
	ReloadTime string

	mutex    sync.Mutex
	methods  []string
	selected map[string]string
}

// Methods lists the methods called so far, in order.
func (e *Engine) Methods() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]string{}, e.methods...)
}

// Selected returns the value selected in `field`.
func (e *Engine) Selected(field string) string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.selected[field]
}

// Serve starts the engine and returns its websocket base url.
func (e *Engine) Serve(t *testing.T) string {
	srv := httptest.NewServer(http.HandlerFunc(e.handle))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/"
}

func (e *Engine) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")
	ctx := r.Context()

	err = wsjson.Write(ctx, conn, map[string]any{
		"jsonrpc": "2.0",
		"method":  "OnConnected",
		"params":  map[string]any{"qSessionState": "SESSION_CREATED"},
	})
	if err != nil {
		return
	}

	// handles above documentHandle index into objects, fields use negative
	// handles below the global one
	var objects []string
	var fields []string
	for {
		var req struct {
			ID     int    `json:"id"`
			Handle int    `json:"handle"`
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		err := wsjson.Read(ctx, conn, &req)
		if err != nil {
			return
		}
		e.mutex.Lock()
		e.methods = append(e.methods, req.Method)
		e.mutex.Unlock()

		param := ""
		if len(req.Params) > 0 {
			param, _ = req.Params[0].(string)
		}
		var result any
		var rpcErr map[string]any
		switch req.Method {
		case "OpenDoc":
			result = handleResult("Doc", documentHandle)
		case "GetAppLayout":
			result = map[string]any{"qLayout": map[string]any{"qLastReloadTime": e.ReloadTime}}
		case "GetField":
			fields = append(fields, param)
			result = handleResult("Field", -2-len(fields)+1)
		case "Select":
			index := -2 - req.Handle
			if index < 0 || index >= len(fields) {
				rpcErr = invalidHandle(req.Handle)
				break
			}
			e.mutex.Lock()
			if e.selected == nil {
				e.selected = map[string]string{}
			}
			e.selected[fields[index]] = param
			e.mutex.Unlock()
			result = map[string]any{"qReturn": true}
		case "GetObject":
			if _, ok := e.Layouts[param]; !ok {
				rpcErr = map[string]any{"code": 2, "message": "Invalid parameters", "data": param}
				break
			}
			objects = append(objects, param)
			result = handleResult("GenericObject", documentHandle+len(objects))
		case "GetLayout":
			index := req.Handle - documentHandle - 1
			if index < 0 || index >= len(objects) {
				rpcErr = invalidHandle(req.Handle)
				break
			}
			result = e.Layouts[objects[index]]
		default:
			rpcErr = map[string]any{"code": -32601, "message": "Method not found"}
		}

		reply := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			reply["error"] = rpcErr
		} else {
			reply["result"] = result
		}
		err = wsjson.Write(ctx, conn, reply)
		if err != nil {
			return
		}
	}
}

func handleResult(kind string, handle int) map[string]any {
	return map[string]any{"qReturn": map[string]any{"qType": kind, "qHandle": handle}}
}

func invalidHandle(handle int) map[string]any {
	return map[string]any{"code": 3, "message": "Invalid handle", "data": handle}
}

// Cell is a matrix cell, NaN numbers are sent as "NaN" like the engine does.
func Cell(text string, num float64) map[string]any {
	if math.IsNaN(num) {
		return map[string]any{"qText": text, "qNum": "NaN"}
	}
	return map[string]any{"qText": text, "qNum": num}
}

// Text is a text-only cell.
func Text(text string) map[string]any {
	return Cell(text, math.NaN())
}

// Num is a numeric cell.
func Num(num float64) map[string]any {
	return Cell("", num)
}

// Matrix is the layout of an unstacked chart with the given rows.
func Matrix(rows ...[]any) map[string]any {
	matrix := make([]any, len(rows))
	for i, row := range rows {
		matrix[i] = row
	}
	return map[string]any{
		"qLayout": map[string]any{"qHyperCube": map[string]any{
			"qDataPages": []any{map[string]any{"qMatrix": matrix}},
		}},
	}
}

// Node is an entry of a stacked chart.
func Node(text string, value float64, children ...map[string]any) map[string]any {
	node := Cell(text, value)
	node["qValue"] = node["qNum"]
	delete(node, "qNum")
	if len(children) > 0 {
		sub := make([]any, len(children))
		for i, c := range children {
			sub[i] = c
		}
		node["qSubNodes"] = sub
	}
	return node
}

// Stacked is the layout of a stacked chart with the given top level nodes.
func Stacked(nodes ...map[string]any) map[string]any {
	sub := make([]any, len(nodes))
	for i, n := range nodes {
		sub[i] = n
	}
	return map[string]any{
		"qLayout": map[string]any{"qHyperCube": map[string]any{
			"qStackedDataPages": []any{map[string]any{
				"qData": []any{map[string]any{"qSubNodes": sub}},
			}},
		}},
	}
}
