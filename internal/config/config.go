// Package config loads and validates imgsize configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Enabled              bool              `mapstructure:"enabled"`
	Concurrency          int               `mapstructure:"concurrency"`
	LogLevel             string            `mapstructure:"log_level"`
	Progress             bool              `mapstructure:"progress"`
	StripQuery           bool              `mapstructure:"strip_query"`
	TimeoutMS            int               `mapstructure:"timeout_ms"`
	Retry                int               `mapstructure:"retry"`
	Headers              map[string]string `mapstructure:"headers"`
	Referer              string            `mapstructure:"referer"`
	Whitelist            []string          `mapstructure:"whitelist"`
	CachePresentWithSize bool              `mapstructure:"cache_present_with_size"`
	HostRPS              float64           `mapstructure:"host_rps"`
	MaxProbeBytes        int               `mapstructure:"max_probe_bytes"`
	CacheFile            string            `mapstructure:"cache_file"`
	ReportFile           string            `mapstructure:"report_file"`
	CheckpointPages      bool              `mapstructure:"checkpoint_pages"`
	Storage              StorageConfig     `mapstructure:"storage"`
	Notify               NotifyConfig      `mapstructure:"notify"`
	Server               ServerConfig      `mapstructure:"server"`
	Logging              LoggingConfig     `mapstructure:"logging"`
}

// StorageConfig selects where the cache and report documents live.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	Dir           string `mapstructure:"dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	Prefix        string `mapstructure:"prefix"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// NotifyConfig holds Pub/Sub metadata for run summaries.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Storage backends.
const (
	BackendLocal    = "local"
	BackendMemory   = "memory"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMGSIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", true)
	v.SetDefault("concurrency", 8)
	v.SetDefault("log_level", "summary")
	v.SetDefault("progress", true)
	v.SetDefault("strip_query", false)
	v.SetDefault("timeout_ms", 8000)
	v.SetDefault("retry", 1)
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("referer", "")
	v.SetDefault("whitelist", []string{})
	v.SetDefault("cache_present_with_size", true)
	v.SetDefault("host_rps", 0)
	v.SetDefault("max_probe_bytes", 4<<20)
	v.SetDefault("cache_file", "imgsize-cache.json")
	v.SetDefault("report_file", "imgsize-run-report.json")
	v.SetDefault("checkpoint_pages", false)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.dir", ".cache")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.postgres_table", "imgsize_documents")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be > 0")
	}
	if c.Retry < 0 {
		return fmt.Errorf("retry must be >= 0")
	}
	if c.HostRPS < 0 {
		return fmt.Errorf("host_rps must be >= 0")
	}
	if c.MaxProbeBytes <= 0 {
		return fmt.Errorf("max_probe_bytes must be > 0")
	}
	switch strings.ToLower(c.LogLevel) {
	case "off", "summary", "verbose":
	default:
		return fmt.Errorf("log_level must be off, summary or verbose, got %q", c.LogLevel)
	}
	if c.CacheFile == "" || c.ReportFile == "" {
		return fmt.Errorf("cache_file and report_file must be set")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir must be set for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// ProbeTimeout converts timeout_ms into a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ShowProgress reports whether the terminal progress bar should be drawn.
func (c Config) ShowProgress() bool {
	return c.Progress && !strings.EqualFold(c.LogLevel, "off")
}
