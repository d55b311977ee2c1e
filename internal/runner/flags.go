package runner

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/components/telemetry"
	libtelemetry "baypd-scraper/lib/telemetry"
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
)

const perfInterval = 5 * time.Second

// Flags are accepted by every command.
type Flags struct {
	Config        string
	Output        string
	Schedule      string
	CacheDir      string
	DebugHTTP     string
	Verbose       bool
	MarinRendered bool
}

func (f *Flags) Register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.Config, "config", "config.json5", "The json5 config file, config.local.json5 next to it overrides it.")
	flags.StringVarP(&f.Output, "output", "o", "", "The directory to write results into, stdout when empty.")
	flags.StringVar(&f.Schedule, "schedule", "", "A cron spec (America/Los_Angeles), keeps running and repeats the scrape on it.")
	flags.StringVar(&f.CacheDir, "cache-dir", "", "A directory persisting the http cache between runs.")
	flags.StringVar(&f.DebugHTTP, "debug-http", "", "A directory to write request/response transcripts into.")
	flags.BoolVarP(&f.Verbose, "verbose", "v", false, "Log debug messages.")
}

// Job is a single run of a command.
type Job func(ctx context.Context, s *Session) (Outcome, error)

// Execute runs job once, or on the --schedule until ctx is done. Every run
// gets its own session and prints a summary to stderr.
func (f Flags) Execute(ctx context.Context, title string, stderr io.Writer, job Job) error {
	libtelemetry.InitSlog(f.Verbose)
	tel := telemetry.SlogAPI{}

	cfg, err := ReadConfig(f.Config)
	if err != nil {
		return err
	}
	clock, err := chrono.NewStandardImpl()
	if err != nil {
		return err
	}

	run := func(ctx context.Context) error {
		s, err := NewSession(cfg, Options{
			CacheDir:      f.CacheDir,
			DebugHTTP:     f.DebugHTTP,
			MarinRendered: f.MarinRendered,
			Clock:         clock,
			Tel:           tel,
		})
		if err != nil {
			return err
		}
		defer s.Close()

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		libtelemetry.InstrumentPerfStats(runCtx, perfInterval)

		outcome, err := job(runCtx, s)
		if err != nil {
			return err
		}
		outcome.WriteSummary(stderr, title)
		return outcome.Err()
	}

	if f.Schedule == "" {
		return run(ctx)
	}
	return Repeat(ctx, f.Schedule, clock, tel, run)
}
