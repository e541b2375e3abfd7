package graphql

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransportError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TransportError
		expected string
	}{
		{
			name: "status error",
			err: &TransportError{
				StatusCode: 502,
				Class:      ErrorClassStatus,
				Message:    "502 Bad Gateway",
			},
			expected: "subgraph status error (status 502): 502 Bad Gateway",
		},
		{
			name: "network error with wrapped error",
			err: &TransportError{
				Class:   ErrorClassNetwork,
				Message: "request failed",
				Err:     errors.New("connection refused"),
			},
			expected: "subgraph network error: request failed: connection refused",
		},
		{
			name: "decode error without wrapped error",
			err: &TransportError{
				Class:   ErrorClassDecode,
				Message: "decode response",
			},
			expected: "subgraph decode error: decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("fetch page at offset 100: %w", &TransportError{Class: ErrorClassNetwork, Err: base})

	if !errors.Is(err, base) {
		t.Error("errors.Is should find the wrapped network error")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatal("errors.As should find *TransportError")
	}
	if te.Class != ErrorClassNetwork {
		t.Errorf("Class = %s, want %s", te.Class, ErrorClassNetwork)
	}
}

func TestQueryError(t *testing.T) {
	err := &QueryError{
		Collection: "domains",
		Errors: []ErrorMessage{
			{Message: "indexing error"},
			{Message: "store error: timeout"},
		},
	}

	want := "subgraph query error on domains: indexing error; store error: timeout"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	msgs := err.Messages()
	if len(msgs) != 2 || msgs[1] != "store error: timeout" {
		t.Errorf("Messages() = %v", msgs)
	}

	missing := &QueryError{Collection: "domains", Err: ErrMissingCollection}
	if !errors.Is(missing, ErrMissingCollection) {
		t.Error("errors.Is should find ErrMissingCollection")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "query", err: &QueryError{}, want: ErrorClassQuery},
		{name: "status", err: &TransportError{Class: ErrorClassStatus}, want: ErrorClassStatus},
		{name: "wrapped decode", err: fmt.Errorf("x: %w", &TransportError{Class: ErrorClassDecode}), want: ErrorClassDecode},
		{name: "plain", err: errors.New("other"), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
