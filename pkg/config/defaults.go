package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Entity:    "domain",
		Endpoint:  "https://subgraph.acedomains.io/subgraphs/name/acedomains/ans",
		UserAgent: "subgraph-sync/1.0",
		Mode:      "buffered",
		Fetch: FetchConfig{
			BatchSize: 100,
			Workers:   5,
			Timeout:   30 * time.Second,
		},
		Sink: SinkConfig{
			Type:           "postgres",
			Schema:         "sgd1",
			WriteBatchSize: 100,
			Conflict:       "natural",
			MaxConns:       4,
			ConnectTimeout: 10 * time.Second,
		},
		Lock: LockConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// setDefaults registers every key with viper so environment variables can
// override keys that appear in no file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("entity", d.Entity)
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("dry_run", d.DryRun)

	v.SetDefault("fetch.batch_size", d.Fetch.BatchSize)
	v.SetDefault("fetch.max_records", d.Fetch.MaxRecords)
	v.SetDefault("fetch.workers", d.Fetch.Workers)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.run_timeout", d.Fetch.RunTimeout)

	v.SetDefault("sink.type", d.Sink.Type)
	v.SetDefault("sink.dsn", d.Sink.DSN)
	v.SetDefault("sink.schema", d.Sink.Schema)
	v.SetDefault("sink.write_batch_size", d.Sink.WriteBatchSize)
	v.SetDefault("sink.conflict", d.Sink.Conflict)
	v.SetDefault("sink.max_conns", d.Sink.MaxConns)
	v.SetDefault("sink.connect_timeout", d.Sink.ConnectTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.purge", d.Cache.Purge)

	v.SetDefault("lock.enabled", d.Lock.Enabled)
	v.SetDefault("lock.ttl", d.Lock.TTL)

	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
}
