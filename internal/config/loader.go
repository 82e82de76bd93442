package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the client configuration while respecting env > file >
// default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract
// before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot using the documented precedence
// rules. Config files may be YAML, JSON, or TOML, dispatched by extension.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"api.baseurl":               "api.baseUrl",
			"api.timeoutseconds":        "api.timeoutSeconds",
			"api.readretries":           "api.readRetries",
			"api.ratepersecond":         "api.ratePerSecond",
			"session.tokenfile":         "session.tokenFile",
			"cache.staleafterseconds":   "cache.staleAfterSeconds",
			"cache.pollintervalseconds": "cache.pollIntervalSeconds",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path
			// (API__BASE_URL -> api.baseurl -> api.baseUrl).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ReplaceAll(key, "_", "")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			return lower
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported config file extension %s", ext)
	}
}

// structToMap converts DefaultConfig into a map for the koanf confmap
// provider.
func structToMap(cfg Config) map[string]any {
	overrides := make(map[string]any, len(cfg.Cache.StaleOverrides))
	for prefix, seconds := range cfg.Cache.StaleOverrides {
		overrides[prefix] = seconds
	}
	return map[string]any{
		"api": map[string]any{
			"baseUrl":        cfg.API.BaseURL,
			"timeoutSeconds": cfg.API.TimeoutSeconds,
			"readRetries":    cfg.API.ReadRetries,
			"ratePerSecond":  cfg.API.RatePerSecond,
			"burst":          cfg.API.Burst,
		},
		"session": map[string]any{
			"tokenFile": cfg.Session.TokenFile,
			"watch":     cfg.Session.Watch,
		},
		"cache": map[string]any{
			"staleAfterSeconds":   cfg.Cache.StaleAfterSeconds,
			"staleOverrides":      overrides,
			"pollIntervalSeconds": cfg.Cache.PollIntervalSeconds,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"metrics": map[string]any{
			"listen": cfg.Metrics.Listen,
		},
	}
}
