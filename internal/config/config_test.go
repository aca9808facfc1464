package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL())
	assert.Equal(t, 20*time.Second, cfg.UpstreamTimeout())
	assert.Equal(t, 30*time.Second, cfg.DefaultDelay())
	assert.Equal(t, StoreDriverMySQL, cfg.CredentialStore.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Contains(t, cfg.DSN, "tcp(127.0.0.1:3306)/yapper")
	assert.Contains(t, cfg.DSN, "parseTime=true")
	require.Len(t, cfg.AI.Providers, 1)
	assert.Equal(t, "https://api.akbxr.com", cfg.AI.Providers[0].Endpoint)
	assert.True(t, cfg.IsDev())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
port: 8080
env: Production
allowed_origins: [" chrome-extension://abc ", ""]
credential_store:
  driver: memory
session:
  auto_verify: true
upstream:
  timeout_seconds: 5
  max_retries: 0
autocomment:
  default_delay_seconds: 0
  max_batch: 10
redis:
  url: cache:6380/2
twitter:
  bearer_token: from-file
`)
	t.Setenv("TWITTER_BEARER_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, []string{"chrome-extension://abc"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Session.AutoVerify)
	assert.Equal(t, 0, cfg.Upstream.MaxRetries)
	assert.Equal(t, 0, cfg.AutoComment.DefaultDelaySeconds)
	assert.Equal(t, 10, cfg.AutoComment.MaxBatch)
	assert.Equal(t, "redis://cache:6380/2", cfg.RedisURL)
	assert.Equal(t, "from-env", cfg.Twitter.BearerToken)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "bogus: 1"},
		{"bad port", "port: 70000"},
		{"negative delay", "autocomment:\n  default_delay_seconds: -1"},
		{"unknown driver", "credential_store:\n  driver: sqlite"},
		{"supabase without key", "credential_store:\n  driver: supabase\n  supabase_url: https://x.supabase.co"},
		{"bad dsn", "database:\n  dsn: not a dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "")
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLogDir(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Empty(t, cfg.LogDir())

	path := writeConfig(t, "paths:\n  logs: var/logs\n")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "var", "logs"), cfg.LogDir())

	cfg, err = Load(writeConfig(t, "paths:\n  logs: /srv/yapper/logs/\n"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/yapper/logs", cfg.LogDir())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDSNValue(t *testing.T) {
	dsn := DatabaseRuntimeConfig{
		Host: "db", Port: 3307, User: "app", Password: "p@ss", Name: "yapper",
		Params: map[string]string{"timeout": "5s"},
	}.DSNValue()
	assert.Contains(t, dsn, "app:p@ss@tcp(db:3307)/yapper?")
	assert.Contains(t, dsn, "timeout=5s")
	assert.Contains(t, dsn, "charset=utf8mb4")

	assert.Equal(t, "u:p@tcp(h)/d", DatabaseRuntimeConfig{DSN: " u:p@tcp(h)/d "}.DSNValue())
}

func TestRedisURLValue(t *testing.T) {
	assert.Equal(t, "rediss://:secret@r:6390/1", RedisRuntimeConfig{Host: "r", Port: 6390, DB: 1, Password: "secret", TLS: true}.URLValue())
}
