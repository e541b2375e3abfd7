// Package mongodb implements store.Store on MongoDB. Each entity is a
// collection with a unique index on its natural key; upserts are bulk
// UpdateOne models inside a multi-document transaction, which needs a
// replica set or sharded cluster.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Config holds the MongoDB store configuration.
type Config struct {
	// URI is a mongodb:// or mongodb+srv:// connection string (REQUIRED)
	URI string

	// Database collections are created in
	Database string

	// ConnectTimeout bounds connecting and the initial ping
	ConnectTimeout time.Duration
}

// DefaultConfig returns the default configuration for uri.
func DefaultConfig(uri string) Config {
	return Config{
		URI:            uri,
		Database:       "sgd1",
		ConnectTimeout: 10 * time.Second,
	}
}

// Store is a MongoDB backed store.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

var _ store.Store = (*Store)(nil)

// New connects and verifies connectivity against the primary.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "sgd1"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig("").ConnectTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("create mongodb client: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, fmt.Errorf("connect to mongodb (ping failed): %w", err)
	}

	s := NewWithClient(client, cfg.Database)
	s.logger.Info().Msg("Connected to MongoDB")
	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
		logger: log.With().Str("component", "mongodb-store").Str("database", database).Logger(),
	}
}

// Dialect implements store.Store.
func (s *Store) Dialect() string { return "mongodb" }

// EnsureSchema creates the unique index on the natural key. Collections are
// created implicitly on first write. Only natural-key mode is supported.
func (s *Store) EnsureSchema(ctx context.Context, ent *entity.Entity, mode store.ConflictMode) error {
	name := s.name(ent)
	if mode != store.ConflictNatural {
		return unsupported("ensure schema", name, mode)
	}

	_, err := s.db.Collection(ent.Table).Indexes().CreateOne(ctx, keyIndex(ent))
	if err != nil {
		return mapError(err, "ensure schema", name)
	}

	s.logger.Info().Str("collection", name).Msg("Schema ready")
	return nil
}

// Begin starts a session with an open transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, mapError(err, "begin", s.db.Name())
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, mapError(err, "begin", s.db.Name())
	}
	return &Tx{sess: sess, db: s.db, logger: s.logger}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) name(ent *entity.Entity) string {
	return s.db.Name() + "." + ent.Table
}

// Tx is an open MongoDB transaction.
type Tx struct {
	sess   mongo.Session
	db     *mongo.Database
	logger zerolog.Logger
	done   bool
}

// Upsert implements store.Tx with an ordered BulkWrite of upserting UpdateOne models.
func (t *Tx) Upsert(ctx context.Context, ent *entity.Entity, rows []entity.Row, mode store.ConflictMode) (int64, error) {
	name := t.db.Name() + "." + ent.Table
	if mode != store.ConflictNatural {
		return 0, unsupported("upsert", name, mode)
	}
	if err := store.CheckRows(ent, rows); err != nil {
		return 0, &store.WriteError{Op: "upsert", Table: name, Code: store.CodeInvalidValue, Message: err.Error()}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	rows = store.Dedupe(rows, ent.KeyIndex())
	models := writeModels(ent, rows)

	sctx := mongo.NewSessionContext(ctx, t.sess)
	res, err := t.db.Collection(ent.Table).BulkWrite(sctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, mapError(err, "upsert", name)
	}

	affected := res.MatchedCount + res.UpsertedCount
	t.logger.Debug().
		Str("collection", name).
		Int("rows", len(rows)).
		Int64("matched", res.MatchedCount).
		Int64("upserted", res.UpsertedCount).
		Msg("Bulk write executed")

	return affected, nil
}

// Commit implements store.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.sess.EndSession(context.WithoutCancel(ctx))

	if err := t.sess.CommitTransaction(ctx); err != nil {
		return mapError(err, "commit", t.db.Name())
	}
	return nil
}

// Rollback implements store.Tx. It is a no-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.sess.EndSession(context.WithoutCancel(ctx))

	if err := t.sess.AbortTransaction(ctx); err != nil {
		return mapError(err, "rollback", t.db.Name())
	}
	return nil
}

// keyIndex is the unique index on the natural key.
func keyIndex(ent *entity.Entity) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: ent.Key, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(ent.Table + "_" + ent.Key + "_key"),
	}
}

func unsupported(op, name string, mode store.ConflictMode) error {
	return &store.WriteError{
		Op:      op,
		Table:   name,
		Code:    store.CodeUnsupported,
		Message: fmt.Sprintf("conflict mode %q needs a source-side key", mode),
		Err:     store.ErrUnsupportedConflictMode,
	}
}
