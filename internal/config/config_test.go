package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	data map[string]any
}

func newMockBackend(kv map[string]any) *mockBackend {
	if kv == nil {
		kv = make(map[string]any)
	}
	return &mockBackend{data: kv}
}

func (m *mockBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	if s, ok := v.(string); ok {
		return s, true, nil
	}
	return "", true, errors.New("not a string")
}

func (m *mockBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	if i, ok := v.(int); ok {
		return i, true, nil
	}
	return 0, true, errors.New("not an int")
}

func (m *mockBackend) SetString(key, val string) error { m.data[key] = val; return nil }

func (m *mockBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }

func (m *mockBackend) Delete(key string) error { delete(m.data, key); return nil }

type mockSecrets map[string]string

func (m mockSecrets) Get(account string) (string, error) {
	v, ok := m[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m mockSecrets) Set(account, value string) error {
	m[account] = value
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(newMockBackend(nil), mockSecrets{"generation.gemini_api_key": "g-key"})
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, ProviderGemini, cfg.Generation.Provider)
	assert.Equal(t, 1.0, cfg.Generation.RateLimit)
	assert.Equal(t, "g-key", cfg.APIKey())
	assert.False(t, cfg.Connectivity.ForceOffline)
	assert.Equal(t, "claritydesk", filepath.Base(cfg.Storage.DataDir))

	probe, err := cfg.ProbeEvery()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, probe)
	sync, err := cfg.SyncEvery()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, sync)
	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestLoadBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMockBackend(map[string]any{
		"server.port":                 5000,
		"generation.provider":         "openrouter",
		"generation.rate_limit":       "0.5",
		"connectivity.force_offline":  "true",
		"connectivity.probe_interval": "5s",
		"log.level":                   "debug",
	})
	cfg, err := loadWith(b, mockSecrets{"generation.openrouter_api_key": "or-key"})
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, ProviderOpenRouter, cfg.Generation.Provider)
	assert.Equal(t, 0.5, cfg.Generation.RateLimit)
	assert.True(t, cfg.Connectivity.ForceOffline)
	assert.Equal(t, "or-key", cfg.APIKey())
	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestEnvOverridesBackendAndSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLARITY_SERVER_PORT", "6000")
	t.Setenv("CLARITY_GEMINI_API_KEY", "env-key")
	t.Setenv("CLARITY_CONNECTIVITY_FORCE_OFFLINE", "1")

	b := newMockBackend(map[string]any{"server.port": 5000})
	cfg, err := loadWith(b, mockSecrets{"generation.gemini_api_key": "file-key"})
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Generation.GeminiAPIKey)
	assert.True(t, cfg.Connectivity.ForceOffline)
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLARITY_SERVER_PORT", "not-a-number")
	t.Setenv("CLARITY_GEMINI_API_KEY", "k")
	cfg, err := loadWith(newMockBackend(nil), mockSecrets{})
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		backend map[string]any
		secrets mockSecrets
		wantErr string
	}{
		{"missing gemini key", nil, mockSecrets{}, "CLARITY_GEMINI_API_KEY"},
		{"missing openrouter key", map[string]any{"generation.provider": "openrouter"},
			mockSecrets{"generation.gemini_api_key": "k"}, "CLARITY_OPENROUTER_API_KEY"},
		{"unknown provider", map[string]any{"generation.provider": "ollama"},
			mockSecrets{"generation.gemini_api_key": "k"}, "unknown generation.provider"},
		{"negative rate", map[string]any{"generation.rate_limit": "-1"},
			mockSecrets{"generation.gemini_api_key": "k"}, "rate_limit"},
		{"bad probe interval", map[string]any{"connectivity.probe_interval": "soon"},
			mockSecrets{"generation.gemini_api_key": "k"}, "connectivity.probe_interval"},
		{"zero sync interval", map[string]any{"sync.interval": "0s"},
			mockSecrets{"generation.gemini_api_key": "k"}, "sync.interval must be positive"},
		{"bad log level", map[string]any{"log.level": "loud"},
			mockSecrets{"generation.gemini_api_key": "k"}, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(newMockBackend(tt.backend), tt.secrets)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetKey(t *testing.T) {
	b := newMockBackend(nil)

	require.NoError(t, setKey(b, "server.port", "4100"))
	assert.Equal(t, 4100, b.data["server.port"])
	require.NoError(t, setKey(b, "connectivity.force_offline", "true"))
	require.NoError(t, setKey(b, "generation.rate_limit", "2.5"))
	assert.Equal(t, "2.5", b.data["generation.rate_limit"])

	assert.ErrorContains(t, setKey(b, "server.port", "abc"), "invalid integer")
	assert.ErrorContains(t, setKey(b, "connectivity.force_offline", "maybe"), "invalid bool")
	assert.ErrorContains(t, setKey(b, "generation.rate_limit", "fast"), "invalid float")
	assert.ErrorContains(t, setKey(b, "generation.gemini_api_key", "k"), "cannot set secret")
	assert.ErrorContains(t, setKey(b, "nope", "x"), "unknown config key")
}

func TestSetSecret(t *testing.T) {
	s := mockSecrets{}
	require.NoError(t, setSecret(s, "generation.gemini_api_key", "abc"))
	assert.Equal(t, "abc", s["generation.gemini_api_key"])
	assert.ErrorContains(t, setSecret(s, "server.port", "1"), "unknown secret key")
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Generation.GeminiAPIKey = "super-secret"
	for _, k := range ShowAll(cfg) {
		assert.NotContains(t, k.Key, "api_key")
		assert.NotEqual(t, "super-secret", k.Value)
	}
	assert.Len(t, ShowAll(cfg), len(ValidKeys()))
	assert.ElementsMatch(t, []string{"generation.gemini_api_key", "generation.openrouter_api_key"}, SecretKeys())
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claritydesk", "config.json")
	b := newFileBackend(path)
	require.NoError(t, b.SetInt("server.port", 4200))
	require.NoError(t, b.SetString("log.level", "warn"))

	reloaded := newFileBackend(path)
	port, ok, err := reloaded.GetInt("server.port")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4200, port)

	lvl, ok, err := reloaded.GetString("log.level")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "warn", lvl)

	require.NoError(t, reloaded.Delete("log.level"))
	_, ok, _ = newFileBackend(path).GetString("log.level")
	assert.False(t, ok)
}

func TestFileBackendIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	b := newFileBackend(path)
	_, ok, err := b.GetString("log.level")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetAPITokenGeneratesOnce(t *testing.T) {
	s := fileSecrets{path: filepath.Join(t.TempDir(), "secrets.json")}

	first, err := GetAPIToken(s)
	require.NoError(t, err)
	assert.Len(t, first, 36)

	second, err := GetAPIToken(s)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(s.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
