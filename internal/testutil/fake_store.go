package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
)

// FakeStore is an in-memory store.Store. Committed rows are keyed by table
// and natural key in natural mode and appended in surrogate mode, mirroring
// the behavior of the real dialects.
type FakeStore struct {
	mu        sync.Mutex
	tables    map[string][]entity.Row
	keys      map[string]map[any]int
	schemas   []string
	upserts   int
	batches   []int
	begins    int
	commits   int
	rollbacks int

	// FailUpsertAt makes the n-th Upsert call (1-based) fail with UpsertErr
	FailUpsertAt int
	UpsertErr    error

	// BeginErr, CommitErr and SchemaErr are returned by the matching calls when set
	BeginErr  error
	CommitErr error
	SchemaErr error
}

var _ store.Store = (*FakeStore)(nil)

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		tables: make(map[string][]entity.Row),
		keys:   make(map[string]map[any]int),
	}
}

// Dialect implements store.Store.
func (f *FakeStore) Dialect() string { return "fake" }

// EnsureSchema implements store.Store.
func (f *FakeStore) EnsureSchema(_ context.Context, ent *entity.Entity, mode store.ConflictMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SchemaErr != nil {
		return f.SchemaErr
	}
	f.schemas = append(f.schemas, fmt.Sprintf("%s/%s", ent.Table, mode))
	return nil
}

// Begin implements store.Store.
func (f *FakeStore) Begin(context.Context) (store.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	f.begins++
	return &fakeTx{store: f}, nil
}

// Close implements store.Store.
func (f *FakeStore) Close() error { return nil }

// Rows returns the committed rows of table.
func (f *FakeStore) Rows(table string) []entity.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.Row(nil), f.tables[table]...)
}

// Schemas returns the EnsureSchema calls as "table/mode".
func (f *FakeStore) Schemas() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.schemas...)
}

// BatchSizes returns the row count of every Upsert call.
func (f *FakeStore) BatchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.batches...)
}

// Counts returns how many transactions were begun, committed and rolled back.
func (f *FakeStore) Counts() (begins, commits, rollbacks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begins, f.commits, f.rollbacks
}

type pendingUpsert struct {
	ent  *entity.Entity
	rows []entity.Row
	mode store.ConflictMode
}

type fakeTx struct {
	store   *FakeStore
	pending []pendingUpsert
	done    bool
}

var errTxDone = errors.New("transaction already closed")

func (t *fakeTx) Upsert(_ context.Context, ent *entity.Entity, rows []entity.Row, mode store.ConflictMode) (int64, error) {
	if t.done {
		return 0, errTxDone
	}

	f := t.store
	f.mu.Lock()
	f.upserts++
	n := f.upserts
	f.batches = append(f.batches, len(rows))
	f.mu.Unlock()

	if f.FailUpsertAt > 0 && n == f.FailUpsertAt {
		return 0, &store.WriteError{Op: "upsert", Table: ent.Table, Code: store.CodeUnknown, Message: "injected", Err: f.UpsertErr}
	}
	if err := store.CheckRows(ent, rows); err != nil {
		return 0, err
	}

	if mode == store.ConflictNatural {
		rows = store.Dedupe(rows, ent.KeyIndex())
	}
	t.pending = append(t.pending, pendingUpsert{ent: ent, rows: append([]entity.Row(nil), rows...), mode: mode})
	return int64(len(rows)), nil
}

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true

	f := t.store
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommitErr != nil {
		f.rollbacks++
		return f.CommitErr
	}

	for _, p := range t.pending {
		table := p.ent.Table
		if f.keys[table] == nil {
			f.keys[table] = make(map[any]int)
		}
		for _, row := range p.rows {
			if p.mode == store.ConflictNatural {
				key := row[p.ent.KeyIndex()]
				if i, ok := f.keys[table][key]; ok {
					f.tables[table][i] = row
					continue
				}
				f.keys[table][key] = len(f.tables[table])
			}
			f.tables[table] = append(f.tables[table], row)
		}
	}
	f.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.pending = nil

	t.store.mu.Lock()
	t.store.rollbacks++
	t.store.mu.Unlock()
	return nil
}
