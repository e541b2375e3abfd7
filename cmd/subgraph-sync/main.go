// Command subgraph-sync copies an entity collection from a Graph Protocol
// subgraph into a PostgreSQL, SQL Server or MongoDB table.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/subgraph-sync/pkg/cache"
	"github.com/Sternrassler/subgraph-sync/pkg/config"
	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/graphql"
	"github.com/Sternrassler/subgraph-sync/pkg/loader"
	"github.com/Sternrassler/subgraph-sync/pkg/logging"
	"github.com/Sternrassler/subgraph-sync/pkg/metrics"
	"github.com/Sternrassler/subgraph-sync/pkg/pagination"
	"github.com/Sternrassler/subgraph-sync/pkg/pipeline"
	"github.com/Sternrassler/subgraph-sync/pkg/runlock"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	"github.com/Sternrassler/subgraph-sync/pkg/store/mongodb"
	"github.com/Sternrassler/subgraph-sync/pkg/store/postgres"
	"github.com/Sternrassler/subgraph-sync/pkg/store/sqlserver"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		printConfig bool
	)

	cmd := &cobra.Command{
		Use:   "subgraph-sync",
		Short: "Copy a subgraph entity collection into a SQL table",
		Long: `subgraph-sync pages through a GraphQL collection of a subgraph with a
pool of concurrent workers and upserts the records into PostgreSQL,
SQL Server or MongoDB. Re-running a sync updates rows in place.

Settings come from flags, SUBGRAPH_SYNC_* environment variables (a .env file
is loaded if present) and an optional YAML file, in that order.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			if printConfig {
				data, err := cfg.Render()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.Logging.Level),
				Pretty: cfg.Logging.Pretty,
				Output: cmd.ErrOrStderr(),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "YAML config file")
	f.BoolVar(&printConfig, "print-config", false, "print the effective configuration (secrets redacted) and exit")

	f.String("entity", d.Entity, "entity to sync (domain|registration)")
	f.String("endpoint", d.Endpoint, "subgraph GraphQL endpoint")
	f.String("user-agent", d.UserAgent, "User-Agent header")
	f.String("mode", d.Mode, "load mode (buffered|streaming)")
	f.Bool("dry-run", d.DryRun, "fetch without writing")

	f.Int("batch-size", d.Fetch.BatchSize, "records per page request")
	f.Int("max-records", d.Fetch.MaxRecords, "stop after this many records (0 = all)")
	f.Int("workers", d.Fetch.Workers, "concurrent page requests per round")
	f.Duration("timeout", d.Fetch.Timeout, "timeout per page request")
	f.Duration("run-timeout", d.Fetch.RunTimeout, "timeout for the whole run (0 = none)")

	f.String("sink", d.Sink.Type, "target database (postgres|sqlserver|mongodb)")
	f.String("dsn", d.Sink.DSN, "target database connection string")
	f.String("schema", d.Sink.Schema, "target schema (database for mongodb)")
	f.Int("write-batch-size", d.Sink.WriteBatchSize, "rows per upsert statement")
	f.String("conflict", d.Sink.Conflict, "upsert conflict target (natural|surrogate); surrogate re-runs duplicate rows, which then blocks a natural run on postgres")

	f.String("redis-addr", d.Redis.Addr, "Redis host:port for the page cache and run lock (empty = off)")
	f.Duration("cache-ttl", d.Cache.TTL, "cache fetched pages in Redis for this long; re-runs within it reuse them (0 = off)")
	f.Bool("cache-purge", d.Cache.Purge, "drop the entity's cached pages before fetching")
	f.Bool("lock", d.Lock.Enabled, "take a Redis run lock per table")
	f.String("metrics-addr", d.Metrics.Addr, "serve /metrics and /health on this address (empty = off)")
	f.String("log-level", d.Logging.Level, "log level (debug|info|warn|error)")
	f.Bool("log-pretty", d.Logging.Pretty, "human-readable logs")

	return cmd
}

// run wires the components described by cfg and executes one sync.
func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	ent, err := entity.Lookup(cfg.Entity)
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	clientCfg := graphql.DefaultConfig(cfg.Endpoint, ent.Collection, ent.Query)
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.Timeout = cfg.Fetch.Timeout
	if cfg.CacheEnabled() {
		pages := cache.NewManager(redisClient)
		if cfg.Cache.Purge {
			if _, err := pages.Purge(ctx, cfg.Endpoint, ent.Collection); err != nil {
				return fmt.Errorf("purge page cache: %w", err)
			}
		}
		clientCfg.Cache = pages
		clientCfg.CacheTTL = cfg.Cache.TTL
	}
	client, err := graphql.New(clientCfg)
	if err != nil {
		return err
	}

	conflict, err := store.ParseConflictMode(cfg.Sink.Conflict)
	if err != nil {
		return err
	}

	var st store.Store
	if !cfg.DryRun {
		st, err = openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	var locker *runlock.Locker
	if cfg.LockEnabled() {
		locker = runlock.NewLocker(redisClient, cfg.Lock.TTL, logging.NewLogger("runlock"))
	}

	runner, err := pipeline.New(client, st, locker, pipeline.Config{
		Entity: ent,
		Schema: cfg.Sink.Schema,
		Pagination: pagination.Config{
			Workers:    cfg.Fetch.Workers,
			PageSize:   cfg.Fetch.BatchSize,
			MaxRecords: cfg.Fetch.MaxRecords,
			Timeout:    cfg.Fetch.Timeout,
			Name:       ent.Collection,
		},
		Loader: loader.Config{
			BatchSize: cfg.Sink.WriteBatchSize,
			Conflict:  conflict,
		},
		Mode:       pipeline.Mode(cfg.Mode),
		DryRun:     cfg.DryRun,
		RunTimeout: cfg.Fetch.RunTimeout,
	})
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printReport(out, report, cfg)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Sink.Type {
	case "mongodb":
		mc := mongodb.DefaultConfig(cfg.Sink.DSN)
		mc.Database = cfg.Sink.Schema
		mc.ConnectTimeout = cfg.Sink.ConnectTimeout
		return mongodb.New(ctx, mc)
	case "sqlserver":
		sc := sqlserver.DefaultConfig(cfg.Sink.DSN)
		sc.Schema = cfg.Sink.Schema
		sc.MaxOpenConns = cfg.Sink.MaxConns
		sc.ConnectTimeout = cfg.Sink.ConnectTimeout
		return sqlserver.New(ctx, sc)
	default:
		pc := postgres.DefaultConfig(cfg.Sink.DSN)
		pc.Schema = cfg.Sink.Schema
		pc.MaxConns = int32(cfg.Sink.MaxConns)
		pc.ConnectTimeout = cfg.Sink.ConnectTimeout
		return postgres.New(ctx, pc)
	}
}

func printReport(out io.Writer, r pipeline.Report, cfg *config.Config) {
	if r.DryRun {
		fmt.Fprintf(out, "dry run: fetched %d %s records in %d rounds (%s) in %s\n",
			r.Fetch.Records, r.Entity, r.Fetch.Rounds, r.Fetch.Reason, r.Duration.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(out, "synced %d %s records into %s.%s (%d rows, %d batches, %s) in %s\n",
		r.Fetch.Records, r.Entity, cfg.Sink.Schema, r.Table, r.Load.Rows, r.Load.Batches,
		r.Mode, r.Duration.Round(time.Millisecond))
}
