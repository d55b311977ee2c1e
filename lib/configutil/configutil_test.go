package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	HTTP struct {
		TimeoutSeconds int    `json:"timeout_seconds"`
		UserAgent      string `json:"user_agent"`
	} `json:"http"`
	Notes map[string][]string `json:"notes"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// comments and trailing commas are allowed
		http: { timeout_seconds: 30, user_agent: "baypd", },
		notes: { napa: ["rolling positivity"] },
	}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		http: { timeout_seconds: 90 },
	}`), 0600))

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, 90, cfg.HTTP.TimeoutSeconds)
	require.Equal(t, "baypd", cfg.HTTP.UserAgent)
	require.Equal(t, []string{"rolling positivity"}, cfg.Notes["napa"])
}

func TestReadOptional(t *testing.T) {
	var defaults testConfig
	defaults.HTTP.TimeoutSeconds = 60
	defaults.HTTP.UserAgent = "default"

	cfg, err := ReadOptional(filepath.Join(t.TempDir(), "missing.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, cfg)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{http: {user_agent: "custom"}}`), 0600))
	cfg, err = ReadOptional(filepath.Join(dir, "config.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, "custom", cfg.HTTP.UserAgent)
	require.Equal(t, 60, cfg.HTTP.TimeoutSeconds)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.True(t, os.IsNotExist(err))
}
