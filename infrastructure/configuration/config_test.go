package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10001, cfg.App.Port)
	assert.Equal(t, "redis", cfg.Queue.Transport)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, DefaultProxyEndpoints, cfg.Proxy.Endpoints)
	assert.Equal(t, 20*time.Second, cfg.Proxy.CheckTimeout())
	assert.Equal(t, time.Second, cfg.Proxy.CheckDelay())
	assert.Equal(t, 10*time.Second, cfg.Pipeline.Tick())
	lo, hi := cfg.Pipeline.CooldownRange()
	assert.Equal(t, 300*time.Second, lo)
	assert.Equal(t, 1500*time.Second, hi)
	assert.Equal(t, 7*24*time.Hour, cfg.Tasks.Retention())
	assert.Equal(t, 50, cfg.Tasks.DefaultListLimit)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("ENV", "test")
	t.Setenv("APP_PORT", "8088")
	t.Setenv("TELEGRAM_CHAT_ID", "4242")

	body := `{
		"app": {"secretKey": "from-file"},
		"pipeline": {"cooldownMinSeconds": 10, "cooldownMaxSeconds": 20, "tickSeconds": 1},
		"queue": {"transport": "servicebus", "workers": 4}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config-test.json"), []byte(body), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.App.Port)
	assert.Equal(t, "from-file", cfg.App.SecretKey)
	assert.Equal(t, int64(4242), cfg.Telegram.ChatID)
	assert.Equal(t, "servicebus", cfg.Queue.Transport)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, time.Second, cfg.Pipeline.Tick())
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		return Config{
			Pipeline: Pipeline{CooldownMinSeconds: 300, CooldownMaxSeconds: 1500, TickSeconds: 10},
			Queue:    Queue{Transport: "redis", MaxAttempts: 3},
			Sessions: Sessions{Backend: "redis"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"inverted cooldown", func(c *Config) { c.Pipeline.CooldownMaxSeconds = 1 }, true},
		{"zero tick", func(c *Config) { c.Pipeline.TickSeconds = 0 }, true},
		{"no attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }, true},
		{"unknown transport", func(c *Config) { c.Queue.Transport = "kafka" }, true},
		{"unknown session backend", func(c *Config) { c.Sessions.Backend = "file" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, c.Proxy.Endpoints)
		})
	}
}

func TestDatabase_DSN(t *testing.T) {
	d := Database{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())

	d.URL = "postgres://x"
	assert.Equal(t, "postgres://x", d.DSN())
}
