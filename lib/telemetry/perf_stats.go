package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("baypd.perf_stats")
var cpuGauge, _ = meter.Float64Gauge("cpu_usage")
var rssGauge, _ = meter.Int64Gauge("process_rss_mb")
var memoryGauge, _ = meter.Int64Gauge("allocated_mb")
var goroutineGauge, _ = meter.Int64Gauge("goroutine_count")

// PerfSample is a single reading of the process' resource usage.
type PerfSample struct {
	CPUPercent   float64
	RSSMegabytes int64
	AllocatedMB  int64
	Goroutines   int64
}

// SamplePerf reads the current resource usage, cpu usage is measured over `window`.
func SamplePerf(window time.Duration) PerfSample {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sample := PerfSample{
		AllocatedMB: int64(memStats.Alloc / 1_000_000),
		Goroutines:  int64(runtime.NumGoroutine()),
	}

	cpuUsage, err := cpu.Percent(window, false)
	if err == nil && len(cpuUsage) > 0 {
		sample.CPUPercent = cpuUsage[0]
	} else if err != nil {
		slog.Warn("failed to read cpu usage", "err", err)
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		mem, err := proc.MemoryInfo()
		if err == nil {
			sample.RSSMegabytes = int64(mem.RSS / 1_000_000)
		}
	}

	return sample
}

// InstrumentPerfStats records the process' resource usage to the global
// meter every `interval` until ctx is done. Browser-driven scrapes are
// the heaviest part of a run, this makes them visible.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sample := SamplePerf(time.Second)
				cpuGauge.Record(ctx, sample.CPUPercent)
				rssGauge.Record(ctx, sample.RSSMegabytes)
				memoryGauge.Record(ctx, sample.AllocatedMB)
				goroutineGauge.Record(ctx, sample.Goroutines)
			case <-ctx.Done():
				return
			}
		}
	}()
}
