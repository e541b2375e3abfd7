package pagination

import "context"

// Sink receives pages in arrival order.
// Write is only ever called from the goroutine running Paginator.Run.
type Sink interface {
	Write(ctx context.Context, page Page) error
}

// SinkFunc adapts a plain function to Sink
type SinkFunc func(ctx context.Context, page Page) error

// Write calls f(ctx, page)
func (f SinkFunc) Write(ctx context.Context, page Page) error {
	return f(ctx, page)
}

// MemorySink accumulates every record in a single slice.
// It is not safe for concurrent use.
type MemorySink struct {
	records []Record
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends the page's records
func (s *MemorySink) Write(_ context.Context, page Page) error {
	s.records = append(s.records, page.Records...)
	return nil
}

// Records returns the collected records in arrival order
func (s *MemorySink) Records() []Record {
	return s.records
}

// Len returns the number of collected records
func (s *MemorySink) Len() int {
	return len(s.records)
}
