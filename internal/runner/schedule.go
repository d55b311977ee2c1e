package runner

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/components/telemetry"
	"context"
	"fmt"
)

const report_scheduled_run = "schedule.run"

// Repeat runs job on a cron spec (interpreted in the zone of clock) until ctx
// is done, then waits for a run in progress to finish. Runs that would
// overlap a previous one are skipped.
func Repeat(ctx context.Context, spec string, clock chrono.API, tel telemetry.API, job func(ctx context.Context) error) error {
	tel = telemetry.NewScopedAPI("runner", tel)
	runCtx := context.WithoutCancel(ctx)

	cron := chrono.NewStandardCron(clock, tel)
	err := cron.Cron(spec, func() {
		if err := job(runCtx); err != nil {
			tel.ReportBroken(report_scheduled_run, err)
		}
	})
	if err != nil {
		cron.Stop()
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	tel.ReportDebug("waiting for the next scheduled run", "spec", spec)

	<-ctx.Done()
	cron.Stop()
	return nil
}
