package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Sternrassler/subgraph-sync/internal/testutil"
	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/pagination"
)

func TestStreamSink_FlushesFullBatches(t *testing.T) {
	fs := testutil.NewFakeStore()
	l := New(fs, entity.Domain, Config{BatchSize: 40})
	ctx := context.Background()

	sink, err := l.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// pages of 25 records: flushes happen as soon as 40 rows are buffered
	for offset := 0; offset < 100; offset += 25 {
		if err := sink.Write(ctx, pagination.Page{Offset: offset, Records: domainRecords(offset, offset+25)}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if got := fmt.Sprint(fs.BatchSizes()); got != "[40 40]" {
		t.Errorf("batch sizes before commit = %s, want [40 40]", got)
	}
	if got := len(fs.Rows("domain")); got != 0 {
		t.Errorf("rows visible before commit = %d, want 0", got)
	}

	res, err := sink.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if got := fmt.Sprint(fs.BatchSizes()); got != "[40 40 20]" {
		t.Errorf("batch sizes = %s, want [40 40 20]", got)
	}
	if res.Records != 100 || res.Rows != 100 || res.Batches != 3 {
		t.Errorf("result = %+v", res)
	}
	if got := len(fs.Rows("domain")); got != 100 {
		t.Errorf("committed rows = %d, want 100", got)
	}
}

func TestStreamSink_WithPaginator(t *testing.T) {
	fs := testutil.NewFakeStore()
	l := New(fs, entity.Domain, Config{BatchSize: 100})
	ctx := context.Background()

	fetcher := pagination.PageFetcherFunc(func(_ context.Context, offset, size int) ([]pagination.Record, error) {
		end := offset + size
		if end > 250 {
			end = 250
		}
		if offset >= end {
			return nil, nil
		}
		return domainRecords(offset, end), nil
	})

	sink, err := l.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	p := pagination.NewPaginator(fetcher, pagination.Config{Workers: 3, PageSize: 100, MaxRecords: 120})
	if _, err := p.Run(ctx, sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := sink.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if got := len(fs.Rows("domain")); got != 120 {
		t.Errorf("committed rows = %d, want 120", got)
	}
}

func TestStreamSink_RollbackDiscardsFlushedBatches(t *testing.T) {
	fs := testutil.NewFakeStore()
	l := New(fs, entity.Domain, Config{BatchSize: 10})
	ctx := context.Background()

	sink, err := l.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := sink.Write(ctx, pagination.Page{Records: domainRecords(0, 35)}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := sink.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if got := len(fs.Rows("domain")); got != 0 {
		t.Errorf("committed rows = %d, want 0", got)
	}
	if err := sink.Write(ctx, pagination.Page{Records: domainRecords(0, 1)}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Write() after Rollback error = %v, want ErrSinkClosed", err)
	}
	if _, err := sink.Commit(ctx); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Commit() after Rollback error = %v, want ErrSinkClosed", err)
	}
}

func TestStreamSink_RollbackAfterCommitIsNoop(t *testing.T) {
	fs := testutil.NewFakeStore()
	l := New(fs, entity.Domain, DefaultConfig())
	ctx := context.Background()

	sink, _ := l.Begin(ctx)
	_ = sink.Write(ctx, pagination.Page{Records: domainRecords(0, 3)})
	if _, err := sink.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := sink.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := len(fs.Rows("domain")); got != 3 {
		t.Errorf("committed rows = %d, want 3", got)
	}
}

func TestStreamSink_MappingErrorStopsWrite(t *testing.T) {
	fs := testutil.NewFakeStore()
	l := New(fs, entity.Domain, DefaultConfig())
	ctx := context.Background()

	sink, _ := l.Begin(ctx)
	defer sink.Rollback(ctx)

	page := pagination.Page{Records: []pagination.Record{json.RawMessage(`{"id":"0x1"}`)}}
	var me *entity.MappingError
	if err := sink.Write(ctx, page); !errors.As(err, &me) {
		t.Errorf("Write() error = %v, want *entity.MappingError", err)
	}
}

func TestStreamSink_WriteErrorSurfaces(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.FailUpsertAt = 1
	fs.UpsertErr = errors.New("lost connection")

	l := New(fs, entity.Domain, Config{BatchSize: 5})
	ctx := context.Background()

	sink, _ := l.Begin(ctx)
	err := sink.Write(ctx, pagination.Page{Records: domainRecords(0, 5)})
	if !errors.Is(err, fs.UpsertErr) {
		t.Fatalf("Write() error = %v, want upsert error", err)
	}
	_ = sink.Rollback(ctx)

	if _, commits, rollbacks := fs.Counts(); commits != 0 || rollbacks != 1 {
		t.Errorf("commits/rollbacks = %d/%d, want 0/1", commits, rollbacks)
	}
}
