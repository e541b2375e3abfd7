// Package config loads the sync configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SUBGRAPH_SYNC_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable, e.g.
// SUBGRAPH_SYNC_SINK_DSN or SUBGRAPH_SYNC_FETCH_WORKERS.
const EnvPrefix = "SUBGRAPH_SYNC"

// Config is the complete configuration of one sync run.
type Config struct {
	// Entity selects what to sync (domain or registration)
	Entity string `mapstructure:"entity" validate:"required,oneof=domain registration" yaml:"entity"`

	// Endpoint is the subgraph GraphQL URL
	Endpoint string `mapstructure:"endpoint" validate:"required,http_url" yaml:"endpoint"`

	// UserAgent is sent with every request
	UserAgent string `mapstructure:"user_agent" validate:"required" yaml:"user_agent"`

	// Mode is buffered or streaming
	Mode string `mapstructure:"mode" validate:"required,oneof=buffered streaming" yaml:"mode"`

	// DryRun fetches without writing
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	Fetch   FetchConfig   `mapstructure:"fetch" yaml:"fetch"`
	Sink    SinkConfig    `mapstructure:"sink" yaml:"sink"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Lock    LockConfig    `mapstructure:"lock" yaml:"lock"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// FetchConfig controls pagination.
type FetchConfig struct {
	// BatchSize is the page size requested per query
	BatchSize int `mapstructure:"batch_size" validate:"gt=0,lte=1000" yaml:"batch_size"`

	// MaxRecords caps the number of records fetched (0 = no cap)
	MaxRecords int `mapstructure:"max_records" validate:"gte=0" yaml:"max_records"`

	// Workers is the number of concurrent page requests per round
	Workers int `mapstructure:"workers" validate:"gte=1,lte=64" yaml:"workers"`

	// Timeout bounds a single page request
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`

	// RunTimeout bounds the whole run (0 = none)
	RunTimeout time.Duration `mapstructure:"run_timeout" validate:"gte=0" yaml:"run_timeout"`
}

// SinkConfig selects and configures the target database.
type SinkConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=postgres sqlserver mongodb" yaml:"type"`

	// DSN is the database connection string; required unless dry_run
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// Schema holds the tables; the database name for mongodb
	Schema string `mapstructure:"schema" validate:"required" yaml:"schema"`

	// WriteBatchSize is the number of rows per upsert statement
	WriteBatchSize int `mapstructure:"write_batch_size" validate:"gt=0" yaml:"write_batch_size"`

	// Conflict is the upsert target: natural (id) or surrogate (vid)
	Conflict string `mapstructure:"conflict" validate:"required,oneof=natural surrogate" yaml:"conflict"`

	MaxConns int `mapstructure:"max_conns" validate:"gte=1" yaml:"max_conns"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0" yaml:"connect_timeout"`
}

// RedisConfig is shared by the page cache and the run lock. An empty Addr
// disables both.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" validate:"gte=0" yaml:"db"`
}

// CacheConfig controls the page cache. It is off unless TTL is set, since a
// cached page is a snapshot and a re-run within the TTL would load it again.
type CacheConfig struct {
	// TTL of cached pages (0 = off)
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0" yaml:"ttl"`

	// Purge drops the entity's cached pages before fetching
	Purge bool `mapstructure:"purge" yaml:"purge"`
}

// LockConfig controls the run lock.
type LockConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gte=1s" yaml:"ttl"`
}

// MetricsConfig controls the metrics HTTP server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port" yaml:"addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// CacheEnabled reports whether pages are cached in Redis. A Redis address
// alone only enables the run lock.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != "" && c.Cache.TTL > 0
}

// LockEnabled reports whether runs take the Redis run lock.
func (c *Config) LockEnabled() bool {
	return c.Redis.Addr != "" && c.Lock.Enabled && !c.DryRun
}

// Load builds the configuration from defaults, the optional YAML file at
// configPath, SUBGRAPH_SYNC_* environment variables and the flags that were
// set on the command line, then validates it.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// FlagKeys maps CLI flag names to configuration keys.
var FlagKeys = map[string]string{
	"entity":           "entity",
	"endpoint":         "endpoint",
	"user-agent":       "user_agent",
	"mode":             "mode",
	"dry-run":          "dry_run",
	"batch-size":       "fetch.batch_size",
	"max-records":      "fetch.max_records",
	"workers":          "fetch.workers",
	"timeout":          "fetch.timeout",
	"run-timeout":      "fetch.run_timeout",
	"sink":             "sink.type",
	"dsn":              "sink.dsn",
	"schema":           "sink.schema",
	"write-batch-size": "sink.write_batch_size",
	"conflict":         "sink.conflict",
	"redis-addr":       "redis.addr",
	"cache-ttl":        "cache.ttl",
	"cache-purge":      "cache.purge",
	"lock":             "lock.enabled",
	"metrics-addr":     "metrics.addr",
	"log-level":        "logging.level",
	"log-pretty":       "logging.pretty",
}

// bindFlags binds every known flag present in flags. Flags left at their
// default do not override the file or the environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// durationDecodeHook converts strings like "30s" or "5m" and raw integers
// (nanoseconds) to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
