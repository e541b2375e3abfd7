// Package testutil provides testing utilities for subgraph-sync.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"
)

// PageRequest is one request received by the mock subgraph.
type PageRequest struct {
	Query string
	First int
	Skip  int
}

// MockSubgraph is a configurable GraphQL endpoint serving a single collection
// of Total records, min(first, Total-skip) per page.
type MockSubgraph struct {
	server     *httptest.Server
	mu         sync.RWMutex
	collection string
	total      int
	record     func(i int) string
	queryErrs  map[int]string
	statuses   map[int]int
	delays     map[int]time.Duration
	block      map[int]bool

	// Tracking
	requests          []PageRequest
	LastRequestHeader http.Header
}

// NewMockSubgraph creates a mock serving total records of collection.
// Records default to {"id":"<index>"}.
func NewMockSubgraph(collection string, total int) *MockSubgraph {
	mock := &MockSubgraph{
		collection: collection,
		total:      total,
		record:     func(i int) string { return fmt.Sprintf(`{"id":"%d"}`, i) },
		queryErrs:  make(map[int]string),
		statuses:   make(map[int]int),
		delays:     make(map[int]time.Duration),
		block:      make(map[int]bool),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockSubgraph) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSubgraph) Close() {
	m.server.Close()
}

// SetRecordFunc changes how the record at a given index is rendered.
func (m *MockSubgraph) SetRecordFunc(fn func(i int) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = fn
}

// SetTotal changes the collection size.
func (m *MockSubgraph) SetTotal(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// FailWithQueryError answers the page at skip with a GraphQL errors payload.
func (m *MockSubgraph) FailWithQueryError(skip int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErrs[skip] = message
}

// FailWithStatus answers the page at skip with an HTTP error status.
func (m *MockSubgraph) FailWithStatus(skip, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[skip] = status
}

// SetDelay delays the page at skip.
func (m *MockSubgraph) SetDelay(skip int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[skip] = d
}

// Block holds the page at skip until the client gives up.
func (m *MockSubgraph) Block(skip int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block[skip] = true
}

// Reset clears all tracking.
func (m *MockSubgraph) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.LastRequestHeader = nil
}

// Requests returns the received requests in arrival order.
func (m *MockSubgraph) Requests() []PageRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PageRequest(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSubgraph) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Offsets returns the requested skip values, sorted.
func (m *MockSubgraph) Offsets() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offsets := make([]int, len(m.requests))
	for i, r := range m.requests {
		offsets[i] = r.Skip
	}
	sort.Ints(offsets)
	return offsets
}

// Header returns the headers of the most recent request.
func (m *MockSubgraph) Header() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (m *MockSubgraph) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query     string `json:"query"`
		Variables struct {
			First int `json:"first"`
			Skip  int `json:"skip"`
		} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	first, skip := req.Variables.First, req.Variables.Skip

	m.mu.Lock()
	m.requests = append(m.requests, PageRequest{Query: req.Query, First: first, Skip: skip})
	m.LastRequestHeader = r.Header.Clone()
	delay := m.delays[skip]
	blocked := m.block[skip]
	status := m.statuses[skip]
	queryErr, hasQueryErr := m.queryErrs[skip]
	total := m.total
	record := m.record
	m.mu.Unlock()

	if blocked {
		<-r.Context().Done()
		return
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error": "upstream failure"}`))
		return
	}

	if hasQueryErr {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   nil,
			"errors": []map[string]string{{"message": queryErr}},
		})
		return
	}

	n := total - skip
	if n > first {
		n = first
	}
	if n < 0 {
		n = 0
	}

	records := make([]json.RawMessage, n)
	for i := range records {
		records[i] = json.RawMessage(record(skip + i))
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{m.collection: records},
	})
}

// DomainRecord renders a realistic domains record for index i.
func DomainRecord(i int) string {
	return fmt.Sprintf(`{"id":"0x%064x","name":"name%d.ace","labelName":"name%d","labelhash":"0x%064x",`+
		`"parent":{"id":"0x%064x"},"subdomains":[],"resolvedAddress":null,"resolver":null,"ttl":null,`+
		`"isMigrated":true,"createdAt":"%d","owner":{"id":"0x%040x"}}`,
		i, i, i, i+1_000_000, 0, 1_690_000_000+i, i%7)
}

// RegistrationRecord renders a realistic registrations record for index i.
func RegistrationRecord(i int) string {
	return fmt.Sprintf(`{"id":"0x%064x","domain":{"id":"0x%064x"},"registrationDate":"%d",`+
		`"expiryDate":"%d","cost":"%d","registrant":{"id":"0x%040x"},"labelName":"name%d"}`,
		i, i, 1_690_000_000+i, 1_721_536_000+i, 5_000_000_000_000_000+i, i%7, i)
}
