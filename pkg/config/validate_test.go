package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Sink.DSN = testDSN
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "defaults with dsn", mutate: func(*Config) {}},
		{name: "dry run without dsn", mutate: func(c *Config) { c.Sink.DSN = ""; c.DryRun = true }},
		{name: "registration streaming", mutate: func(c *Config) { c.Entity = "registration"; c.Mode = "streaming" }},
		{name: "uppercase log level", mutate: func(c *Config) { c.Logging.Level = "WARN" }},
		{
			name:     "missing dsn",
			mutate:   func(c *Config) { c.Sink.DSN = "" },
			errorMsg: "sink.dsn is required",
		},
		{
			name:     "zero batch size",
			mutate:   func(c *Config) { c.Fetch.BatchSize = 0 },
			errorMsg: "fetch.batch_size must satisfy gt=0",
		},
		{
			name:     "too many workers",
			mutate:   func(c *Config) { c.Fetch.Workers = 65 },
			errorMsg: "fetch.workers must satisfy lte=64",
		},
		{
			name:     "negative cap",
			mutate:   func(c *Config) { c.Fetch.MaxRecords = -1 },
			errorMsg: "fetch.max_records",
		},
		{
			name:     "zero page timeout",
			mutate:   func(c *Config) { c.Fetch.Timeout = 0 },
			errorMsg: "fetch.timeout",
		},
		{
			name:     "unknown sink",
			mutate:   func(c *Config) { c.Sink.Type = "mysql" },
			errorMsg: "sink.type must be one of [postgres sqlserver mongodb]",
		},
		{
			name:     "unknown mode",
			mutate:   func(c *Config) { c.Mode = "eager" },
			errorMsg: "mode must be one of",
		},
		{
			name:     "endpoint not http",
			mutate:   func(c *Config) { c.Endpoint = "ftp://example.com/graphql" },
			errorMsg: "endpoint must be an http(s) URL",
		},
		{
			name:     "redis addr without port",
			mutate:   func(c *Config) { c.Redis.Addr = "localhost" },
			errorMsg: "redis.addr must be host:port",
		},
		{
			name:     "sqlserver surrogate",
			mutate:   func(c *Config) { c.Sink.Type = "sqlserver"; c.Sink.Conflict = "surrogate" },
			errorMsg: "not supported by sqlserver",
		},
		{
			name:     "mongodb surrogate",
			mutate:   func(c *Config) { c.Sink.Type = "mongodb"; c.Sink.Conflict = "surrogate" },
			errorMsg: "not supported by mongodb",
		},
		{
			name:     "zero lock ttl",
			mutate:   func(c *Config) { c.Lock.TTL = 0 },
			errorMsg: "lock.ttl",
		},
		{
			name:     "sub-second lock ttl",
			mutate:   func(c *Config) { c.Lock.TTL = 2 * time.Nanosecond },
			errorMsg: "lock.ttl must satisfy gte=1s",
		},
		{
			name:     "negative run timeout",
			mutate:   func(c *Config) { c.Fetch.RunTimeout = -time.Second },
			errorMsg: "fetch.run_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errorMsg)
			}
		})
	}
}

func TestConfig_Enabled(t *testing.T) {
	cfg := validConfig()
	if cfg.CacheEnabled() || cfg.LockEnabled() {
		t.Error("cache and lock need a redis address")
	}

	cfg.Redis.Addr = "localhost:6379"
	if cfg.CacheEnabled() {
		t.Error("a redis address alone should not enable the page cache")
	}
	if !cfg.LockEnabled() {
		t.Error("lock should be enabled with a redis address")
	}

	cfg.Cache.TTL = time.Minute
	if !cfg.CacheEnabled() {
		t.Error("cache should be enabled with a redis address and a ttl")
	}

	cfg.Cache.TTL = 0
	cfg.Lock.Enabled = false
	if cfg.CacheEnabled() || cfg.LockEnabled() {
		t.Error("zero cache ttl and lock.enabled=false should disable them")
	}
}
