package graphql

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassStatus represents a non-2xx HTTP response.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response body that is not valid GraphQL JSON.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassQuery represents a GraphQL "errors" payload.
	ErrorClassQuery ErrorClass = "query"
)

// ErrMissingCollection is wrapped by a QueryError when the response has no
// data for the requested collection.
var ErrMissingCollection = errors.New("collection missing from response")

// TransportError is a failure to obtain a decodable GraphQL response.
type TransportError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("subgraph %s error (status %d): %s", e.Class, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("subgraph %s error: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("subgraph %s error: %s", e.Class, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorMessage is one entry of a GraphQL "errors" array.
type ErrorMessage struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// QueryError is a well-formed response that reports errors instead of data.
type QueryError struct {
	Collection string
	Errors     []ErrorMessage
	Err        error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors)+1)
	for _, m := range e.Errors {
		msgs = append(msgs, m.Message)
	}
	if e.Err != nil {
		msgs = append(msgs, e.Err.Error())
	}
	return fmt.Sprintf("subgraph query error on %s: %s", e.Collection, strings.Join(msgs, "; "))
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Messages returns the error messages reported by the server.
func (e *QueryError) Messages() []string {
	msgs := make([]string, len(e.Errors))
	for i, m := range e.Errors {
		msgs[i] = m.Message
	}
	return msgs
}
