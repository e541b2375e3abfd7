package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// CacheKey identifies one cached page of a subgraph collection.
type CacheKey struct {
	// Endpoint is the GraphQL endpoint URL
	Endpoint string

	// Collection is the top-level field the page was read from (e.g. "domains")
	Collection string

	// Query is the GraphQL document; only its fingerprint ends up in the key
	Query string

	// Variables are the page variables (e.g. {"first": 100, "skip": 200})
	Variables map[string]int
}

// PageKey builds the key for a (skip, first) page.
func PageKey(endpoint, collection, query string, skip, first int) CacheKey {
	return CacheKey{
		Endpoint:   endpoint,
		Collection: collection,
		Query:      query,
		Variables:  map[string]int{"first": first, "skip": skip},
	}
}

// String generates a deterministic cache key string.
// Format: subgraph:endpoint:collection:q=fingerprint:var1=val1:var2=val2
//
// Example:
//
//	subgraph:subgraph.acedomains.io/subgraphs/name/acedomains/ans:domains:q=3f1c9a0b7d2e:first=100:skip=0
func (k CacheKey) String() string {
	parts := []string{CollectionPrefix(k.Endpoint, k.Collection)}

	if k.Query != "" {
		parts = append(parts, "q="+fingerprint(k.Query))
	}

	if len(k.Variables) > 0 {
		names := make([]string, 0, len(k.Variables))
		for name := range k.Variables {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%d", name, k.Variables[name]))
		}
	}

	return strings.Join(parts, ":")
}

// CollectionPrefix is the key prefix shared by every page of collection at endpoint.
func CollectionPrefix(endpoint, collection string) string {
	parts := []string{"subgraph"}

	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.Trim(endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}
	if collection != "" {
		parts = append(parts, collection)
	}
	return strings.Join(parts, ":")
}

// globEscape escapes the Redis MATCH metacharacters in s.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// fingerprint shortens a query document to 12 hex characters, ignoring whitespace layout
func fingerprint(query string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(query), " ")))
	return hex.EncodeToString(sum[:])[:12]
}
