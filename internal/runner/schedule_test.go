package runner

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/counties/adapter"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRepeat(t *testing.T) {
	tel := telemetry.NewRecorder()
	clock := chrono.FixedImpl{Time: adapter.TestNow}

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	var cancelled atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- Repeat(ctx, "@every 1s", clock, tel, func(ctx context.Context) error {
			if runs.Add(1) == 1 {
				cancel()
				// a stop request lets the current run finish
				cancelled.Store(ctx.Err() != nil)
			}
			return errors.New("county failed")
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	require.EqualValues(t, 1, runs.Load())
	require.False(t, cancelled.Load())
	require.True(t, tel.Has(telemetry.EVENT_BROKEN, report_scheduled_run))
}

func TestRepeatInvalidSpec(t *testing.T) {
	err := Repeat(context.Background(), "every tuesday", chrono.FixedImpl{Time: adapter.TestNow}, telemetry.NewRecorder(), func(context.Context) error {
		return nil
	})
	require.Error(t, err)
}
