// Package pagination provides concurrent fetching for offset-paginated endpoints.
//
// Offset-paginated APIs (GraphQL "first"/"skip", SQL OFFSET/LIMIT) do not
// announce their total size, so the end of a collection is only known once a
// page comes back shorter than requested. The Paginator issues rounds of
// Workers overlapping page requests, waits for the whole round, and stops
// after the first round that contained a short page or reached MaxRecords.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	cfg.Workers = 5
//	cfg.MaxRecords = 1000
//	p := pagination.NewPaginator(graphqlClient, cfg)
//	records, stats, err := p.FetchAll(ctx)
//
// The paginator:
//   - Keeps the offset cursor and running total in the calling goroutine
//   - Runs a fixed pool of Workers goroutines that only see immutable jobs
//   - Processes pages in arrival order and drains every round completely
//   - Cancels the rest of a round after a failure or once the cap is reached
//   - Aborts on the first page error (no partial results)
//
// Known limitations:
//   - With a cap, the kept records are the first MaxRecords in arrival order,
//     which is not necessarily the first MaxRecords offsets.
//   - The cursor advances by Workers*PageSize per round even when a page in
//     the middle of the round was short, so pages between a short page and
//     the end of its round are fetched but later offsets never are.
package pagination
