// Package config loads and validates application configuration from a YAML
// file and environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the API and the sync pipeline.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Search   SearchConfig   `mapstructure:"search"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServiceConfig holds settings for the public REST API.
type ServiceConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	// PublicBase is the public API root used when rewriting pagination
	// links, e.g. https://api.acmi.net.au. Cached pages must never carry
	// upstream addresses.
	PublicBase string `mapstructure:"public_base"`
	Debug      bool   `mapstructure:"debug"`
}

// UpstreamConfig holds settings for the private XOS API.
type UpstreamConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Retries  int           `mapstructure:"retries"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
	// IncludeExternal passes external=true upstream so loaned and
	// externally-sourced records are included in listings.
	IncludeExternal bool `mapstructure:"include_external"`
}

// CacheConfig holds on-disk cache locations.
type CacheConfig struct {
	JSONRoot string `mapstructure:"json_root"`
	TSVRoot  string `mapstructure:"tsv_root"`
}

// StorageConfig holds public object store settings for asset migration.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// Bucket is the public destination bucket for migrated assets.
	Bucket string `mapstructure:"bucket"`
	// IncludeImages and IncludeVideos control redaction: when false the
	// corresponding asset fields are stripped from cached records.
	IncludeImages bool `mapstructure:"include_images"`
	IncludeVideos bool `mapstructure:"include_videos"`
}

// SearchConfig holds Elasticsearch connection settings. Host is used for
// local development; CloudID plus APIKey take precedence when set.
type SearchConfig struct {
	Host    string        `mapstructure:"host"`
	CloudID string        `mapstructure:"cloud_id"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig holds sync pass behaviour.
type SyncConfig struct {
	// AllWorks and AllCreators force a full pass instead of the default
	// incremental fetch of records modified since UpdateFromDate.
	AllWorks    bool `mapstructure:"all_works"`
	AllCreators bool `mapstructure:"all_creators"`
	// UpdateFromDate is the date_modified__gte bound (YYYY-MM-DD).
	// Empty means yesterday in Timezone.
	UpdateFromDate string `mapstructure:"update_from_date"`
	Timezone       string `mapstructure:"timezone"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

const (
	defaultPort         = 8081
	defaultRetries      = 3
	defaultTimeout      = 60 * time.Second
	defaultPageSize     = 10
	defaultSearchTimout = 30 * time.Second
	defaultTimezone     = "Australia/Melbourne"
)

// envBindings maps config keys to the environment variables used by the
// existing deployments.
var envBindings = map[string]string{
	"service.public_base":       "ACMI_API_ENDPOINT",
	"service.debug":             "DEBUG",
	"upstream.endpoint":         "XOS_API_ENDPOINT",
	"upstream.retries":          "XOS_RETRIES",
	"upstream.timeout":          "XOS_TIMEOUT",
	"upstream.include_external": "INCLUDE_EXTERNAL",
	"storage.access_key":        "AWS_ACCESS_KEY_ID",
	"storage.secret_key":        "AWS_SECRET_ACCESS_KEY",
	"storage.bucket":            "AWS_STORAGE_BUCKET_NAME",
	"storage.include_images":    "INCLUDE_IMAGES",
	"storage.include_videos":    "INCLUDE_VIDEOS",
	"search.host":               "ELASTICSEARCH_HOST",
	"search.cloud_id":           "ELASTICSEARCH_CLOUD_ID",
	"search.api_key":            "ELASTICSEARCH_API_KEY",
	"sync.all_works":            "ALL_WORKS",
	"sync.all_creators":         "ALL_CREATORS",
	"sync.update_from_date":     "UPDATE_FROM_DATE",
}

// Load reads configuration from the given file (optional) and the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "acmi-public-api")
	v.SetDefault("service.port", defaultPort)
	v.SetDefault("service.public_base", "https://api.acmi.net.au")
	v.SetDefault("upstream.retries", defaultRetries)
	v.SetDefault("upstream.timeout", defaultTimeout)
	v.SetDefault("upstream.page_size", defaultPageSize)
	v.SetDefault("cache.json_root", "json")
	v.SetDefault("cache.tsv_root", "tsv")
	v.SetDefault("storage.bucket", "acmi-public-api")
	v.SetDefault("storage.endpoint", "s3.amazonaws.com")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("search.host", "http://api-search:9200")
	v.SetDefault("search.timeout", defaultSearchTimout)
	v.SetDefault("sync.timezone", defaultTimezone)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port: invalid port %d", c.Service.Port)
	}
	if c.Service.PublicBase == "" {
		return fmt.Errorf("service.public_base is required")
	}
	if c.Upstream.Retries < 1 {
		return fmt.Errorf("upstream.retries: must be at least 1")
	}
	if c.Upstream.PageSize < 1 {
		return fmt.Errorf("upstream.page_size: must be at least 1")
	}
	if c.Cache.JSONRoot == "" {
		return fmt.Errorf("cache.json_root is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		return fmt.Errorf("sync.timezone: %w", err)
	}
	if c.Sync.UpdateFromDate != "" {
		if _, err := time.Parse("2006-01-02", c.Sync.UpdateFromDate); err != nil {
			return fmt.Errorf("sync.update_from_date: %w", err)
		}
	}
	return nil
}

// UpdateFrom resolves the incremental sync cutoff: the configured date, or
// yesterday in the configured timezone.
func (c *Config) UpdateFrom() string {
	if c.Sync.UpdateFromDate != "" {
		return c.Sync.UpdateFromDate
	}
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).AddDate(0, 0, -1).Format("2006-01-02")
}
