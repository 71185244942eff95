// Package config loads claritydesk settings from a JSON file under
// $XDG_CONFIG_HOME, CLARITY_* environment variables and a local secrets file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

type Config struct {
	Server       ServerConfig
	Storage      StorageConfig
	Generation   GenerationConfig
	Connectivity ConnectivityConfig
	Sync         SyncConfig
	Log          LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type GenerationConfig struct {
	Provider string
	Model    string
	// RateLimit is requests per second; zero disables limiting.
	RateLimit        float64
	GeminiAPIKey     string
	OpenRouterAPIKey string
}

type ConnectivityConfig struct {
	ProbeURL      string
	ProbeInterval string
	ForceOffline  bool
}

type SyncConfig struct {
	Interval string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Generation: GenerationConfig{
			Provider:  ProviderGemini,
			RateLimit: 1,
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:      "https://generativelanguage.googleapis.com/",
			ProbeInterval: "15s",
		},
		Sync: SyncConfig{
			Interval: "1m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file, applies CLARITY_* environment overrides and
// falls back to the secrets file for the provider API key.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// SecretStore holds API keys and the local bearer token.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Generation.Provider {
	case ProviderGemini:
		if c.Generation.GeminiAPIKey == "" {
			return missingKey("generation.gemini_api_key")
		}
	case ProviderOpenRouter:
		if c.Generation.OpenRouterAPIKey == "" {
			return missingKey("generation.openrouter_api_key")
		}
	default:
		return fmt.Errorf("unknown generation.provider %q (want %s or %s)", c.Generation.Provider, ProviderGemini, ProviderOpenRouter)
	}
	if c.Generation.RateLimit < 0 {
		return fmt.Errorf("generation.rate_limit must not be negative, got %v", c.Generation.RateLimit)
	}
	if _, err := c.ProbeEvery(); err != nil {
		return err
	}
	if _, err := c.SyncEvery(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

func missingKey(key string) error {
	return fmt.Errorf("missing required config: %s. Set it via environment variable %s or `claritydesk config set-secret %s <value>`",
		key, envFor(key), key)
}

// APIKey returns the key for the selected provider.
func (c Config) APIKey() string {
	if c.Generation.Provider == ProviderOpenRouter {
		return c.Generation.OpenRouterAPIKey
	}
	return c.Generation.GeminiAPIKey
}

func (c Config) ProbeEvery() (time.Duration, error) {
	return positiveDuration("connectivity.probe_interval", c.Connectivity.ProbeInterval)
}

func (c Config) SyncEvery() (time.Duration, error) {
	return positiveDuration("sync.interval", c.Sync.Interval)
}

func positiveDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

// LogLevel parses log.level into a slog.Level.
func (c Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	return lvl, nil
}
