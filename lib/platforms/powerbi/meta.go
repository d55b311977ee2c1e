package powerbi

import (
	"baypd-scraper/lib/httpclient"
	"baypd-scraper/lib/upstream"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

// FetchModelsAndExploration loads the report definition, which holds the
// static text boxes of a report.
func FetchModelsAndExploration(ctx context.Context, http *resty.Client, apiBase, resourceKey string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "FetchModelsAndExploration")
	defer span.End()

	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	endpoint := fmt.Sprintf("%s/%s/modelsAndExploration", strings.TrimSuffix(apiBase, "/"), resourceKey)
	res, err := http.R().
		SetContext(ctx).
		SetHeader(resourceKeyHeader, resourceKey).
		SetQueryParam("preferReadOnlySession", "true").
		Get(endpoint)
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
		return nil, fmt.Errorf("decode modelsAndExploration: %w", err)
	}
	return out, nil
}

// TextRuns returns the text of every text box on the first page of a report.
func TextRuns(exploration map[string]any) ([]string, error) {
	containers, err := upstream.DigAs[[]any](exploration, "exploration", "sections", 0, "visualContainers")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, c := range containers {
		rawConfig, err := upstream.DigAs[string](c, "config")
		if err != nil {
			return nil, err
		}
		if !strings.Contains(rawConfig, "textRuns") {
			continue
		}
		var config any
		err = json.Unmarshal([]byte(rawConfig), &config)
		if err != nil {
			return nil, upstream.Formatf("visual container config: %s", err)
		}
		paragraphs, err := upstream.DigAs[[]any](config, "singleVisual", "objects", "general", 0, "properties", "paragraphs")
		if err != nil {
			return nil, err
		}
		for _, p := range paragraphs {
			runs, err := upstream.DigAs[[]any](p, "textRuns")
			if err != nil {
				return nil, err
			}
			for _, run := range runs {
				value, err := upstream.DigAs[string](run, "value")
				if err != nil {
					return nil, err
				}
				out = append(out, value)
			}
		}
	}
	return out, nil
}

// LongestTextRun is the longest text box, which on county dashboards is the
// disclaimer block.
func LongestTextRun(exploration map[string]any) (string, error) {
	runs, err := TextRuns(exploration)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", upstream.Formatf("report has no text runs")
	}
	longest := runs[0]
	for _, r := range runs[1:] {
		if len(r) > len(longest) {
			longest = r
		}
	}
	return longest, nil
}
