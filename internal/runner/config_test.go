package runner

import (
	"baypd-scraper/internal/components/telemetry"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadConfigMissing(t *testing.T) {
	cfg, err := ReadConfig(filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// seconds
		http: { timeout_seconds: 30 },
		counties: {
			marin: { notes: ["Marin publishes weekly."] },
		},
	}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		http: { cache_dir: ".cache" },
	}`), 0o600))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 30, cfg.HTTP.TimeoutSeconds)
	require.Equal(t, ".cache", cfg.HTTP.CacheDir)
	require.Equal(t, DefaultConfig().HTTP.RequestsPerSecond, cfg.HTTP.RequestsPerSecond)
	require.Equal(t, []string{"Marin publishes weekly."}, cfg.Notes("marin"))
	require.Nil(t, cfg.Notes("napa"))
}

func TestReadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{ http: `), 0o600))
	_, err := ReadConfig(path)
	require.Error(t, err)
}

func TestNewSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Template = filepath.Join(t.TempDir(), "missing.json")
	_, err := NewSession(cfg, Options{Tel: telemetry.NewRecorder()})
	require.Error(t, err)

	dir := t.TempDir()
	s, err := NewSession(DefaultConfig(), Options{
		Tel:       telemetry.NewRecorder(),
		CacheDir:  filepath.Join(dir, "cache"),
		DebugHTTP: filepath.Join(dir, "transcripts"),
	})
	require.NoError(t, err)
	require.NotNil(t, s.NewHTTP("napa", false))
	require.NotNil(t, s.AdapterDeps("napa").HTTP)
	require.NoError(t, s.Close())

	_, err = os.Stat(filepath.Join(dir, "transcripts"))
	require.NoError(t, err)
}
