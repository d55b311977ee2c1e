package main

import (
	"baypd-scraper/cmd/scraper-news/commands"
	"baypd-scraper/lib/serviceutil"
	"baypd-scraper/lib/telemetry"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "scraper-news")
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	err = commands.ExecuteContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	tel.Shutdown(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(serviceutil.ExitCode(err))
	}
}
