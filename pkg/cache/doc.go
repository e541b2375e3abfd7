// Package cache provides a Redis-backed page cache for subgraph queries.
//
// A page is identified by the endpoint, the collection, a fingerprint of the
// query document and the page variables (first, skip). Entries carry the raw
// records of the page and expire after a fixed TTL chosen by the caller.
//
// The cache only makes sense for data that does not move under the reader,
// e.g. repeated runs against a pinned block or local development against a
// rate-limited endpoint. Offsets shift when the upstream collection changes,
// so keep the TTL short for live subgraphs, and Purge a collection's pages
// when a fresh snapshot is needed.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.PageKey(endpoint, "domains", query, 200, 100)
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch the page from the subgraph, then
//		_ = manager.Set(ctx, key, cache.NewEntry(records, 10*time.Minute))
//	}
//
// # Metrics
//
//   - subgraph_cache_hits_total{collection} - Cache hits
//   - subgraph_cache_misses_total{collection} - Cache misses
//   - subgraph_cache_records_served_total{collection} - Records served from cache
//   - subgraph_cache_records_written_total{collection} - Records stored
//   - subgraph_cache_written_bytes_total{collection} - Bytes stored
//   - subgraph_cache_purged_pages_total{collection} - Pages removed by Purge
//   - subgraph_cache_errors_total{operation} - Cache operation errors
package cache
