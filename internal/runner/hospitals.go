package runner

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/hospitals"
	"context"
	"fmt"
	"time"
)

const (
	report_hospitals = "hospitals.get_county"

	// EndpointHospitals overrides the data.ca.gov base url.
	EndpointHospitals = "hospitals"
)

// RunHospitals reads the hospitalization series of counties in order into a
// {county_id: report} document.
func RunHospitals(ctx context.Context, s *Session, ids []string) (Document, Outcome) {
	tel := telemetry.NewScopedAPI("runner", s.Tel)

	var doc Document
	outcome := make(Outcome, 0, len(ids))
	for _, id := range ids {
		start := time.Now()
		report, err := scrapeHospitals(ctx, s, id)
		result := Result{ID: id, Err: err, Elapsed: time.Since(start)}
		if err != nil {
			tel.ReportBroken(report_hospitals, fmt.Errorf("%s: %w", id, err))
		} else {
			doc.Set(id, report)
			result.Detail = fmt.Sprintf("%d days", len(report.Series))
		}
		outcome = append(outcome, result)
	}
	return doc, outcome
}

func scrapeHospitals(ctx context.Context, s *Session, id string) (report hospitals.Report, err error) {
	defer recoverInto(&err)

	client, err := hospitals.New(s.NewHTTP("hospitals-"+id, false), s.Endpoints()[EndpointHospitals], s.Clock)
	if err != nil {
		return hospitals.Report{}, err
	}
	return client.GetCounty(ctx, id)
}
