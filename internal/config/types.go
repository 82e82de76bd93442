package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds every client-level option.
type Config struct {
	API     APIConfig     `koanf:"api"`
	Session SessionConfig `koanf:"session"`
	Cache   CacheConfig   `koanf:"cache"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// APIConfig points the transport at the forwarding service and tunes its
// retry and rate behavior.
type APIConfig struct {
	BaseURL        string  `koanf:"baseUrl"`
	TimeoutSeconds int     `koanf:"timeoutSeconds"`
	ReadRetries    int     `koanf:"readRetries"`
	RatePerSecond  float64 `koanf:"ratePerSecond"`
	Burst          int     `koanf:"burst"`
}

// SessionConfig locates the persisted credential.
type SessionConfig struct {
	TokenFile string `koanf:"tokenFile"`
	// Watch reloads the credential when the token file changes on disk,
	// picking up logins and logouts from other invocations.
	Watch bool `koanf:"watch"`
}

// CacheConfig expresses freshness windows per resource class.
type CacheConfig struct {
	StaleAfterSeconds int `koanf:"staleAfterSeconds"`
	// StaleOverrides maps a key prefix to a freshness window in seconds.
	StaleOverrides map[string]int `koanf:"staleOverrides"`
	// PollIntervalSeconds paces background polling of live resources.
	PollIntervalSeconds int `koanf:"pollIntervalSeconds"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig optionally exposes the Prometheus endpoint. An empty
// listen address disables it.
type MetricsConfig struct {
	Listen string `koanf:"listen"`
}

// Timeout returns the per-request timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StaleAfter returns the default freshness window as a duration.
func (c CacheConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// PollInterval returns the polling cadence as a duration.
func (c CacheConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Overrides converts the per-prefix second counts into durations.
func (c CacheConfig) Overrides() map[string]time.Duration {
	if len(c.StaleOverrides) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(c.StaleOverrides))
	for prefix, seconds := range c.StaleOverrides {
		out[prefix] = time.Duration(seconds) * time.Second
	}
	return out
}

// DefaultConfig returns the baseline values that align with the documented
// defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 15,
			ReadRetries:    3,
			RatePerSecond:  10,
			Burst:          5,
		},
		Session: SessionConfig{
			TokenFile: defaultTokenFile(),
			Watch:     true,
		},
		Cache: CacheConfig{
			StaleAfterSeconds: 300,
			StaleOverrides: map[string]int{
				"botStatus":   15,
				"performance": 30,
				"stats":       60,
			},
			PollIntervalSeconds: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations the client could not run with.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: api.baseUrl %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: api.timeoutSeconds must be positive")
	}
	if c.API.ReadRetries < 1 {
		return fmt.Errorf("config: api.readRetries must be at least 1")
	}
	if c.API.RatePerSecond <= 0 {
		return fmt.Errorf("config: api.ratePerSecond must be positive")
	}
	if c.API.Burst < 1 {
		return fmt.Errorf("config: api.burst must be at least 1")
	}
	if strings.TrimSpace(c.Session.TokenFile) == "" {
		return fmt.Errorf("config: session.tokenFile must be set")
	}
	if c.Cache.StaleAfterSeconds <= 0 {
		return fmt.Errorf("config: cache.staleAfterSeconds must be positive")
	}
	for prefix, seconds := range c.Cache.StaleOverrides {
		if seconds <= 0 {
			return fmt.Errorf("config: cache.staleOverrides[%s] must be positive", prefix)
		}
	}
	if c.Cache.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config: cache.pollIntervalSeconds must be positive")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("config: logging.level %q is not supported", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("config: logging.format %q is not supported", c.Logging.Format)
	}
	return nil
}

func defaultTokenFile() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".telefwd", "token")
	}
	return filepath.Join(base, "telefwd", "token")
}
