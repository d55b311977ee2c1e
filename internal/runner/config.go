package runner

import (
	"baypd-scraper/lib/configutil"
	"baypd-scraper/lib/httpclient"
	"fmt"
)

type HTTPConfig struct {
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	UserAgent         string  `json:"user_agent"`
	// CacheDir holds the persistent response cache, empty means responses
	// are only cached in memory for the duration of a run.
	CacheDir string `json:"cache_dir"`
}

type BrowserConfig struct {
	Visible bool `json:"visible"`
}

type CountyConfig struct {
	// Notes are appended to the county's meta_from_baypd.
	Notes []string `json:"notes"`
}

type Config struct {
	HTTP     HTTPConfig              `json:"http"`
	Browser  BrowserConfig           `json:"browser"`
	Counties map[string]CountyConfig `json:"counties"`
	// Template is the path of a record template overriding the embedded one.
	Template string `json:"template"`
}

func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			TimeoutSeconds:    60,
			RequestsPerSecond: 4,
			UserAgent:         httpclient.DefaultUserAgent,
		},
	}
}

// ReadConfig reads a json5 config (and its .local override) from path, a
// missing file yields DefaultConfig.
func ReadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadOptional(path, DefaultConfig())
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

// Notes returns the configured notes of a county.
func (c Config) Notes(id string) []string {
	return c.Counties[id].Notes
}
