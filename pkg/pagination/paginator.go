// Package pagination provides concurrent fetching of offset-paginated collections
package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Record is a single opaque record as returned by the source API.
type Record = json.RawMessage

// Config holds paginator configuration
type Config struct {
	// Workers is the number of concurrent page requests per round
	Workers int
	// PageSize is the number of records requested per page
	PageSize int
	// MaxRecords caps the number of records collected (0 = no cap)
	MaxRecords int
	// Timeout per page fetch
	Timeout time.Duration
	// Name labels logs and metrics, usually the collection name
	Name string
}

// DefaultConfig returns the default paginator configuration
func DefaultConfig() Config {
	return Config{
		Workers:  10,
		PageSize: 100,
		Timeout:  15 * time.Second,
		Name:     "default",
	}
}

// PageFetcher fetches a single page of at most pageSize records starting at offset
type PageFetcher interface {
	FetchPage(ctx context.Context, offset, pageSize int) ([]Record, error)
}

// PageFetcherFunc adapts a plain function to PageFetcher
type PageFetcherFunc func(ctx context.Context, offset, pageSize int) ([]Record, error)

// FetchPage calls f(ctx, offset, pageSize)
func (f PageFetcherFunc) FetchPage(ctx context.Context, offset, pageSize int) ([]Record, error) {
	return f(ctx, offset, pageSize)
}

// Job is one page request handed to a worker
type Job struct {
	Offset int
	Size   int
}

// Page is the ordered result of a Job
type Page struct {
	Offset  int
	Records []Record
}

// StopReason tells why a run finished
type StopReason string

const (
	// StopEndOfData means a page shorter than the page size was observed
	StopEndOfData StopReason = "end_of_data"

	// StopMaxRecords means the record cap was reached
	StopMaxRecords StopReason = "max_records"
)

// Stats summarizes a finished (or aborted) run
type Stats struct {
	Rounds   int
	Pages    int
	Records  int
	Reason   StopReason
	Duration time.Duration
}

// Paginator fetches a collection of unknown length in rounds of concurrent page requests
type Paginator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewPaginator creates a new paginator
func NewPaginator(fetcher PageFetcher, config Config) *Paginator {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRecords < 0 {
		config.MaxRecords = 0
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}

	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger: log.With().
			Str("component", "paginator").
			Str("collection", config.Name).
			Logger(),
	}
}

// Config returns the effective configuration
func (p *Paginator) Config() Config {
	return p.config
}

// task carries a job together with the context of the round it belongs to
type task struct {
	ctx context.Context
	job Job
}

// jobResult is what a worker hands back to the coordinator
type jobResult struct {
	job     Job
	records []Record
	err     error
}

// state is owned by the goroutine running Run and never shared with workers
type state struct {
	nextOffset int
	total      int
	stop       bool
	reason     StopReason
}

// schedule returns the jobs of the next round and advances the cursor past all of them
func (s *state) schedule(workers, pageSize int) []Job {
	jobs := make([]Job, workers)
	for i := range jobs {
		jobs[i] = Job{Offset: s.nextOffset + i*pageSize, Size: pageSize}
	}
	s.nextOffset += workers * pageSize
	return jobs
}

func (s *state) capped() bool {
	return s.reason == StopMaxRecords
}

// FetchAll runs the paginator into a MemorySink and returns the collected records.
// On error no records are returned.
func (p *Paginator) FetchAll(ctx context.Context) ([]Record, Stats, error) {
	sink := NewMemorySink()
	stats, err := p.Run(ctx, sink)
	if err != nil {
		return nil, stats, err
	}
	return sink.Records(), stats, nil
}

// Run fetches rounds of Workers pages until a short page or the record cap is seen.
//
// Pages are written to sink in arrival order from the calling goroutine only.
// Within a round, completion order is unspecified, so with a cap the records
// kept are the first MaxRecords in arrival order, not necessarily the lowest
// offsets. The cursor advances by Workers*PageSize every round regardless of
// how many pages in that round were short.
func (p *Paginator) Run(ctx context.Context, sink Sink) (Stats, error) {
	start := time.Now()
	workers := p.config.Workers

	p.logger.Info().
		Int("workers", workers).
		Int("page_size", p.config.PageSize).
		Int("max_records", p.config.MaxRecords).
		Msg("Starting paginated fetch")

	tasks := make(chan task, workers)
	results := make(chan jobResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(tasks, results, &wg, i)
	}
	defer func() {
		close(tasks)
		wg.Wait()
	}()

	var st state
	var stats Stats
	for !st.stop {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		stats.Rounds++
		jobs := st.schedule(workers, p.config.PageSize)
		if err := p.runRound(ctx, stats.Rounds, jobs, tasks, results, sink, &st, &stats); err != nil {
			stats.Duration = time.Since(start)
			p.logger.Warn().
				Err(err).
				Int("round", stats.Rounds).
				Int("records", st.total).
				Msg("Paginated fetch aborted")
			return stats, err
		}
	}

	stats.Reason = st.reason
	stats.Duration = time.Since(start)

	p.logger.Info().
		Int("rounds", stats.Rounds).
		Int("pages", stats.Pages).
		Int("records", stats.Records).
		Str("reason", string(stats.Reason)).
		Dur("duration", stats.Duration).
		Msg("Fetch complete")

	return stats, nil
}

// runRound submits one round of jobs and waits for every one of them.
// After a failure or once the cap is reached the rest of the round is cancelled,
// and the results still arriving are drained and discarded.
func (p *Paginator) runRound(ctx context.Context, round int, jobs []Job, tasks chan<- task, results <-chan jobResult, sink Sink, st *state, stats *Stats) error {
	roundStart := time.Now()
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.logger.Debug().
		Int("round", round).
		Int("first_offset", jobs[0].Offset).
		Int("last_offset", jobs[len(jobs)-1].Offset).
		Msg("Scheduling round")

	for _, job := range jobs {
		tasks <- task{ctx: roundCtx, job: job}
	}

	var roundErr error
	for i := 0; i < len(jobs); i++ {
		res := <-results

		if roundErr != nil || st.capped() {
			continue
		}

		if res.err != nil {
			roundErr = fmt.Errorf("fetch page at offset %d: %w", res.job.Offset, res.err)
			cancel()
			continue
		}

		if err := p.accept(ctx, res, st, sink, stats); err != nil {
			roundErr = err
			cancel()
			continue
		}

		if st.capped() {
			cancel()
		}
	}

	roundsTotal.WithLabelValues(p.config.Name).Inc()
	roundDuration.WithLabelValues(p.config.Name).Observe(time.Since(roundStart).Seconds())

	if roundErr != nil {
		return roundErr
	}

	p.logger.Info().
		Int("round", round).
		Int("records", st.total).
		Bool("stop", st.stop).
		Dur("duration", time.Since(roundStart)).
		Msg("Round complete")

	return nil
}

// accept applies the stop and cap rules to one arrived page and writes it to the sink
func (p *Paginator) accept(ctx context.Context, res jobResult, st *state, sink Sink, stats *Stats) error {
	records := res.records

	if len(records) > res.job.Size {
		p.logger.Warn().
			Int("offset", res.job.Offset).
			Int("page_size", res.job.Size).
			Int("received", len(records)).
			Msg("Page larger than requested")
	}

	if len(records) < res.job.Size {
		st.stop = true
		if st.reason == "" {
			st.reason = StopEndOfData
		}
	}

	if limit := p.config.MaxRecords; limit > 0 && st.total+len(records) >= limit {
		records = records[:limit-st.total]
		st.stop = true
		st.reason = StopMaxRecords
	}

	stats.Pages++
	pagesFetched.WithLabelValues(p.config.Name).Inc()

	if len(records) > 0 {
		if err := sink.Write(ctx, Page{Offset: res.job.Offset, Records: records}); err != nil {
			return fmt.Errorf("write page at offset %d: %w", res.job.Offset, err)
		}
	}

	st.total += len(records)
	stats.Records = st.total
	recordsFetched.WithLabelValues(p.config.Name).Add(float64(len(records)))

	p.logger.Debug().
		Int("offset", res.job.Offset).
		Int("received", len(res.records)).
		Int("kept", len(records)).
		Int("total", st.total).
		Msg("Page processed")

	return nil
}

// worker fetches the jobs it receives and returns exactly one result per job
func (p *Paginator) worker(tasks <-chan task, results chan<- jobResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for t := range tasks {
		// Skip jobs of a round that was already cancelled
		if err := t.ctx.Err(); err != nil {
			results <- jobResult{job: t.job, err: err}
			continue
		}

		pageCtx, cancel := context.WithTimeout(t.ctx, p.config.Timeout)
		records, err := p.fetcher.FetchPage(pageCtx, t.job.Offset, t.job.Size)
		cancel()

		if err != nil && t.ctx.Err() == nil {
			p.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("offset", t.job.Offset).
				Msg("Page fetch failed")
		}

		results <- jobResult{job: t.job, records: records, err: err}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		p.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}
