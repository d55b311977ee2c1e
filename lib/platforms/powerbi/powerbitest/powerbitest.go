// Package powerbitest serves canned PowerBI reports for adapter tests.
package powerbitest

import (
	"baypd-scraper/lib/platforms/powerbi"
	"baypd-scraper/lib/upstream"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// Visual is the data behind one query, ValueDicts is optional.
type Visual struct {
	Rows       [][]any
	ValueDicts map[string]any
}

// Report answers querydata requests with the visual registered under the
// names of the query's selections joined by " | ", ex.
// "V_Combined_data.Gender | V_Combined_data.NumberOfCases". The longest
// text of TextRuns is served as the report's disclaimer block.
type Report struct {
	Visuals  map[string]Visual
	TextRuns []string

	mutex   sync.Mutex
	queries []map[string]any
}

// Queries returns the bodies of every querydata request received so far.
func (r *Report) Queries() []map[string]any {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]map[string]any{}, r.queries...)
}

func (r *Report) exploration() map[string]any {
	var containers []any
	for _, text := range r.TextRuns {
		config, _ := json.Marshal(map[string]any{
			"singleVisual": map[string]any{"objects": map[string]any{"general": []any{map[string]any{
				"properties": map[string]any{"paragraphs": []any{map[string]any{
					"textRuns": []any{map[string]any{"value": text}},
				}}},
			}}}},
		})
		containers = append(containers, map[string]any{"config": string(config)})
	}
	return map[string]any{
		"exploration": map[string]any{"sections": []any{map[string]any{
			"visualContainers": containers,
		}}},
	}
}

func (r *Report) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if strings.HasSuffix(req.URL.Path, "/modelsAndExploration") {
		json.NewEncoder(w).Encode(r.exploration())
		return
	}
	if !strings.HasSuffix(req.URL.Path, "/querydata") {
		http.NotFound(w, req)
		return
	}

	var body map[string]any
	err := json.NewDecoder(req.Body).Decode(&body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mutex.Lock()
	r.queries = append(r.queries, body)
	r.mutex.Unlock()

	selects, err := upstream.DigAs[[]any](body, "queries", 0, "Query", "Commands", 0, "SemanticQueryDataShapeCommand", "Query", "Select")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	names := make([]string, len(selects))
	for i, s := range selects {
		names[i], _ = upstream.DigAs[string](s, "Name")
	}
	key := strings.Join(names, " | ")
	visual, ok := r.Visuals[key]
	if !ok {
		json.NewEncoder(w).Encode(errorEnvelope("could not resolve visual " + key))
		return
	}

	ds := map[string]any{"PH": []any{map[string]any{"DM0": powerbi.EncodeRows(visual.Rows)}}}
	if visual.ValueDicts != nil {
		ds["ValueDicts"] = visual.ValueDicts
	}
	json.NewEncoder(w).Encode(map[string]any{
		"results": []any{map[string]any{"result": map[string]any{"data": map[string]any{
			"dsr": map[string]any{"DS": []any{ds}},
		}}}},
	})
}

func errorEnvelope(message string) map[string]any {
	return map[string]any{
		"results": []any{map[string]any{"result": map[string]any{"data": map[string]any{
			"dsr": map[string]any{"DataShapes": []any{map[string]any{
				"odata.error": map[string]any{"message": map[string]any{"value": message}},
			}}},
		}}}},
	}
}
