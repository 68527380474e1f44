package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "summary", cfg.LogLevel)
	assert.True(t, cfg.Progress)
	assert.False(t, cfg.StripQuery)
	assert.Equal(t, 8*time.Second, cfg.ProbeTimeout())
	assert.Equal(t, 1, cfg.Retry)
	assert.True(t, cfg.CachePresentWithSize)
	assert.Equal(t, 4194304, cfg.MaxProbeBytes)
	assert.Equal(t, "imgsize-cache.json", cfg.CacheFile)
	assert.Equal(t, "imgsize-run-report.json", cfg.ReportFile)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, ".cache", cfg.Storage.Dir)
	assert.Equal(t, "imgsize_documents", cfg.Storage.PostgresTable)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Whitelist)
	assert.True(t, cfg.ShowProgress())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "imgsize.yaml")
	configYAML := `
concurrency: 3
log_level: verbose
progress: false
strip_query: true
timeout_ms: 250
retry: 0
headers:
  X-Site: blog
referer: https://blog.example.com/
whitelist: ["cdn.example.com", "img.example.com"]
host_rps: 2.5
checkpoint_pages: true
storage:
  backend: gcs
  gcs_bucket: assets
  prefix: sites/blog
notify:
  project_id: demo
  topic: imgsize-runs
server:
  port: 9090
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, "verbose", cfg.LogLevel)
	assert.False(t, cfg.ShowProgress())
	assert.True(t, cfg.StripQuery)
	assert.Equal(t, 250*time.Millisecond, cfg.ProbeTimeout())
	assert.Zero(t, cfg.Retry)
	assert.Equal(t, "blog", cfg.Headers["x-site"], "viper lower-cases map keys")
	assert.Equal(t, "https://blog.example.com/", cfg.Referer)
	assert.Equal(t, []string{"cdn.example.com", "img.example.com"}, cfg.Whitelist)
	assert.InDelta(t, 2.5, cfg.HostRPS, 1e-9)
	assert.True(t, cfg.CheckpointPages)
	assert.Equal(t, StorageConfig{
		Backend:       BackendGCS,
		Dir:           ".cache",
		GCSBucket:     "assets",
		Prefix:        "sites/blog",
		PostgresTable: "imgsize_documents",
	}, cfg.Storage)
	assert.Equal(t, NotifyConfig{ProjectID: "demo", Topic: "imgsize-runs"}, cfg.Notify)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IMGSIZE_CONCURRENCY", "2")
	t.Setenv("IMGSIZE_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, want: "concurrency"},
		{name: "timeout", mutate: func(c *Config) { c.TimeoutMS = 0 }, want: "timeout_ms"},
		{name: "retry", mutate: func(c *Config) { c.Retry = -1 }, want: "retry"},
		{name: "host rps", mutate: func(c *Config) { c.HostRPS = -1 }, want: "host_rps"},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }, want: "log_level"},
		{name: "backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Storage.Backend = BackendGCS }, want: "gcs_bucket"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, want: "postgres_dsn"},
		{name: "notify project", mutate: func(c *Config) { c.Notify.Topic = "t" }, want: "notify.project_id"},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
