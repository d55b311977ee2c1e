package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVisibleFromEnv(t *testing.T) {
	t.Setenv("FIREFOX_VISIBLE", "")
	require.True(t, VisibleFromEnv())
}

func TestNewDefaults(t *testing.T) {
	l := New(Options{})
	require.Equal(t, 2*time.Minute, l.opts.Timeout)
	require.False(t, l.opts.Visible)
	require.NotEmpty(t, l.allocatorOptions())
}
