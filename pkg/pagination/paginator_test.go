package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeSource serves a collection of total records, min(pageSize, total-offset) per page.
type fakeSource struct {
	total   int
	delays  map[int]time.Duration
	failAt  map[int]error
	blockAt map[int]bool

	mu        sync.Mutex
	requested []int
	cancelled []int
}

func newFakeSource(total int) *fakeSource {
	return &fakeSource{
		total:   total,
		delays:  map[int]time.Duration{},
		failAt:  map[int]error{},
		blockAt: map[int]bool{},
	}
}

func (f *fakeSource) FetchPage(ctx context.Context, offset, pageSize int) ([]Record, error) {
	f.mu.Lock()
	f.requested = append(f.requested, offset)
	f.mu.Unlock()

	if f.blockAt[offset] {
		<-ctx.Done()
		f.mu.Lock()
		f.cancelled = append(f.cancelled, offset)
		f.mu.Unlock()
		return nil, ctx.Err()
	}

	if d := f.delays[offset]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := f.failAt[offset]; err != nil {
		return nil, err
	}

	n := f.total - offset
	if n > pageSize {
		n = pageSize
	}
	if n < 0 {
		n = 0
	}

	records := make([]Record, n)
	for i := range records {
		records[i] = Record(fmt.Sprintf(`{"id":"%d"}`, offset+i))
	}
	return records, nil
}

func (f *fakeSource) offsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.requested...)
	sort.Ints(out)
	return out
}

func recordIDs(t *testing.T, records []Record) []string {
	t.Helper()
	ids := make([]string, 0, len(records))
	for _, r := range records {
		var v struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(r, &v); err != nil {
			t.Fatalf("unmarshal record %s: %v", r, err)
		}
		ids = append(ids, v.ID)
	}
	return ids
}

func TestNewPaginator_Defaults(t *testing.T) {
	p := NewPaginator(newFakeSource(0), Config{MaxRecords: -5})
	cfg := p.Config()

	if cfg.Workers != 10 {
		t.Errorf("Workers = %d, want 10", cfg.Workers)
	}
	if cfg.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", cfg.PageSize)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Timeout)
	}
	if cfg.MaxRecords != 0 {
		t.Errorf("MaxRecords = %d, want 0", cfg.MaxRecords)
	}
	if cfg.Name != "default" {
		t.Errorf("Name = %q, want default", cfg.Name)
	}
}

func TestFetchAll_ReturnsEveryRecordOnce(t *testing.T) {
	tests := []struct {
		pageSize int
		total    int
		workers  int
	}{
		{pageSize: 1, total: 0, workers: 1},
		{pageSize: 1, total: 7, workers: 3},
		{pageSize: 10, total: 100, workers: 2},
		{pageSize: 10, total: 101, workers: 4},
		{pageSize: 7, total: 50, workers: 5},
		{pageSize: 100, total: 250, workers: 3},
		{pageSize: 100, total: 99, workers: 10},
		{pageSize: 3, total: 1000, workers: 8},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("p=%d/n=%d/w=%d", tt.pageSize, tt.total, tt.workers), func(t *testing.T) {
			src := newFakeSource(tt.total)
			p := NewPaginator(src, Config{Workers: tt.workers, PageSize: tt.pageSize})

			records, stats, err := p.FetchAll(context.Background())
			if err != nil {
				t.Fatalf("FetchAll() error = %v", err)
			}

			if len(records) != tt.total {
				t.Fatalf("len(records) = %d, want %d", len(records), tt.total)
			}

			seen := make(map[string]bool, len(records))
			for _, id := range recordIDs(t, records) {
				if seen[id] {
					t.Fatalf("record %s returned twice", id)
				}
				seen[id] = true
			}

			if stats.Records != tt.total {
				t.Errorf("stats.Records = %d, want %d", stats.Records, tt.total)
			}
			if stats.Reason != StopEndOfData {
				t.Errorf("stats.Reason = %q, want %q", stats.Reason, StopEndOfData)
			}
		})
	}
}

func TestFetchAll_Scenario250Records(t *testing.T) {
	src := newFakeSource(250)
	p := NewPaginator(src, Config{Workers: 3, PageSize: 100})

	records, stats, err := p.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	want := []int{0, 100, 200}
	got := src.offsets()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("requested offsets = %v, want %v", got, want)
	}
	if stats.Rounds != 1 {
		t.Errorf("rounds = %d, want 1", stats.Rounds)
	}
	if stats.Pages != 3 {
		t.Errorf("pages = %d, want 3", stats.Pages)
	}
	if len(records) != 250 {
		t.Errorf("len(records) = %d, want 250", len(records))
	}
}

func TestFetchAll_CapTruncatesWithinRound(t *testing.T) {
	src := newFakeSource(250)
	p := NewPaginator(src, Config{Workers: 3, PageSize: 100, MaxRecords: 120})

	records, stats, err := p.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(records) != 120 {
		t.Fatalf("len(records) = %d, want 120", len(records))
	}
	if stats.Reason != StopMaxRecords {
		t.Errorf("reason = %q, want %q", stats.Reason, StopMaxRecords)
	}
	if stats.Rounds != 1 {
		t.Errorf("rounds = %d, want 1 (no second round after the cap)", stats.Rounds)
	}
	for _, off := range src.offsets() {
		if off >= 300 {
			t.Errorf("offset %d requested after the cap was reached", off)
		}
	}
}

func TestFetchAll_CapLengthIndependentOfWorkers(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 7, 16} {
		for _, limit := range []int{1, 10, 99, 100, 101, 499} {
			t.Run(fmt.Sprintf("w=%d/cap=%d", workers, limit), func(t *testing.T) {
				src := newFakeSource(500)
				p := NewPaginator(src, Config{Workers: workers, PageSize: 10, MaxRecords: limit})

				records, _, err := p.FetchAll(context.Background())
				if err != nil {
					t.Fatalf("FetchAll() error = %v", err)
				}
				if len(records) != limit {
					t.Errorf("len(records) = %d, want %d", len(records), limit)
				}
			})
		}
	}
}

func TestFetchAll_CapAboveTotal(t *testing.T) {
	src := newFakeSource(42)
	p := NewPaginator(src, Config{Workers: 2, PageSize: 10, MaxRecords: 1000})

	records, stats, err := p.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 42 {
		t.Errorf("len(records) = %d, want 42", len(records))
	}
	if stats.Reason != StopEndOfData {
		t.Errorf("reason = %q, want %q", stats.Reason, StopEndOfData)
	}
}

func TestRun_ShortPageStopsLaterRounds(t *testing.T) {
	// 2 workers, page 10, 35 records: round 1 = {0,10}, round 2 = {20,30}, 30 is short
	src := newFakeSource(35)
	p := NewPaginator(src, Config{Workers: 2, PageSize: 10})

	if _, _, err := p.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	want := []int{0, 10, 20, 30}
	if got := src.offsets(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("requested offsets = %v, want %v", got, want)
	}
}

func TestRun_ShortPageMidRoundKeepsDrainedPages(t *testing.T) {
	// Offset 0 is full, offset 10 is short, offset 20 is empty; all belong to one round.
	src := newFakeSource(15)
	src.delays[0] = 30 * time.Millisecond
	p := NewPaginator(src, Config{Workers: 3, PageSize: 10})

	records, stats, err := p.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(records) != 15 {
		t.Errorf("len(records) = %d, want 15 (the slow full page must still be kept)", len(records))
	}
	if stats.Rounds != 1 {
		t.Errorf("rounds = %d, want 1", stats.Rounds)
	}
}

func TestRun_ArrivalOrder(t *testing.T) {
	src := newFakeSource(30)
	src.delays[0] = 60 * time.Millisecond
	src.delays[10] = 30 * time.Millisecond

	var offsets []int
	sink := SinkFunc(func(_ context.Context, page Page) error {
		offsets = append(offsets, page.Offset)
		return nil
	})

	p := NewPaginator(src, Config{Workers: 3, PageSize: 10, MaxRecords: 30})
	if _, err := p.Run(context.Background(), sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []int{20, 10, 0}
	if fmt.Sprint(offsets) != fmt.Sprint(want) {
		t.Errorf("sink order = %v, want %v", offsets, want)
	}
}

func TestRun_CapFollowsArrivalOrder(t *testing.T) {
	src := newFakeSource(100)
	src.delays[0] = 50 * time.Millisecond

	p := NewPaginator(src, Config{Workers: 2, PageSize: 10, MaxRecords: 15})
	records, _, err := p.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	ids := recordIDs(t, records)
	if len(ids) != 15 {
		t.Fatalf("len(records) = %d, want 15", len(ids))
	}
	// offset 10 arrives first and is kept whole, then 5 records from offset 0
	if ids[0] != "10" || ids[10] != "0" || ids[14] != "4" {
		t.Errorf("unexpected arrival-order truncation: %v", ids)
	}
}

func TestRun_QueryErrorAbortsRun(t *testing.T) {
	queryErr := errors.New("query failed")
	src := newFakeSource(1000)
	src.failAt[20] = queryErr

	var written int
	sink := SinkFunc(func(_ context.Context, page Page) error {
		written += len(page.Records)
		return nil
	})

	p := NewPaginator(src, Config{Workers: 2, PageSize: 10})
	stats, err := p.Run(context.Background(), sink)
	if !errors.Is(err, queryErr) {
		t.Fatalf("Run() error = %v, want %v", err, queryErr)
	}
	if stats.Rounds != 2 {
		t.Errorf("rounds = %d, want 2", stats.Rounds)
	}
	for _, off := range src.offsets() {
		if off >= 40 {
			t.Errorf("offset %d scheduled after failure", off)
		}
	}
}

func TestFetchAll_ErrorReturnsNoRecords(t *testing.T) {
	src := newFakeSource(1000)
	src.failAt[30] = errors.New("boom")

	p := NewPaginator(src, Config{Workers: 4, PageSize: 10})
	records, _, err := p.FetchAll(context.Background())
	if err == nil {
		t.Fatal("FetchAll() expected error")
	}
	if records != nil {
		t.Errorf("records = %d, want nil on error", len(records))
	}
}

func TestRun_FailureCancelsPendingJobs(t *testing.T) {
	src := newFakeSource(1000)
	src.blockAt[0] = true
	src.failAt[10] = errors.New("boom")

	p := NewPaginator(src, Config{Workers: 2, PageSize: 10, Timeout: time.Minute})

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), NewMemorySink())
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run() expected error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not cancel the blocked job")
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.cancelled) != 1 || src.cancelled[0] != 0 {
		t.Errorf("cancelled = %v, want [0]", src.cancelled)
	}
}

func TestRun_CapCancelsPendingJobs(t *testing.T) {
	src := newFakeSource(1000)
	src.blockAt[10] = true

	p := NewPaginator(src, Config{Workers: 2, PageSize: 10, MaxRecords: 5, Timeout: time.Minute})

	done := make(chan error, 1)
	var records []Record
	go func() {
		var err error
		records, _, err = p.FetchAll(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("FetchAll() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("FetchAll() did not cancel the pending job after the cap")
	}

	if len(records) != 5 {
		t.Errorf("len(records) = %d, want 5", len(records))
	}
}

func TestRun_SinkErrorAbortsRun(t *testing.T) {
	sinkErr := errors.New("sink full")
	sink := SinkFunc(func(context.Context, Page) error { return sinkErr })

	p := NewPaginator(newFakeSource(100), Config{Workers: 2, PageSize: 10})
	if _, err := p.Run(context.Background(), sink); !errors.Is(err, sinkErr) {
		t.Fatalf("Run() error = %v, want %v", err, sinkErr)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPaginator(newFakeSource(100), Config{Workers: 2, PageSize: 10})
	if _, err := p.Run(ctx, NewMemorySink()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_PageTimeout(t *testing.T) {
	src := newFakeSource(100)
	src.blockAt[0] = true

	p := NewPaginator(src, Config{Workers: 1, PageSize: 10, Timeout: 20 * time.Millisecond})
	_, err := p.Run(context.Background(), NewMemorySink())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	_ = sink.Write(ctx, Page{Offset: 10, Records: []Record{Record(`{"id":"b"}`)}})
	_ = sink.Write(ctx, Page{Offset: 0, Records: []Record{Record(`{"id":"a"}`), Record(`{"id":"c"}`)}})

	if sink.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", sink.Len())
	}
	ids := recordIDs(t, sink.Records())
	if fmt.Sprint(ids) != "[b a c]" {
		t.Errorf("Records() = %v, want arrival order [b a c]", ids)
	}
}
