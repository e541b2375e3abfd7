// Package entity describes the subgraph collections that can be synced:
// the query that pages through them, the table they land in, and how a raw
// record becomes a row.
package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ColumnType is the logical type of a column; each store maps it to a SQL type.
type ColumnType string

const (
	// Text is a nullable free-form string
	Text ColumnType = "text"

	// KeyText is the natural key; stores give it an indexable type
	KeyText ColumnType = "key_text"

	// Numeric is an arbitrary precision decimal carried as a string
	Numeric ColumnType = "numeric"

	// Bool is a boolean
	Bool ColumnType = "bool"

	// Int is a 32-bit integer
	Int ColumnType = "int"

	// Bytes is binary data, decoded from 0x-prefixed hex
	Bytes ColumnType = "bytes"

	// BlockRange is the graph-node block range, carried as its text form
	BlockRange ColumnType = "block_range"
)

// OpenBlockRange is the block range of a record valid from genesis onwards.
const OpenBlockRange = "[0,)"

// Column is one column of an entity table.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// Row holds the values of one record in Entity.Columns order.
// NULL is a nil interface value.
type Row = []any

// Entity binds a subgraph collection to a table.
type Entity struct {
	// Name selects the entity on the command line
	Name string

	// Collection is the top-level query field, e.g. "domains"
	Collection string

	// Table is the unqualified table name
	Table string

	// Key is the natural key column
	Key string

	// Columns in insert order, excluding the surrogate vid
	Columns []Column

	// Query pages through Collection with $first and $skip
	Query string

	mapFn func(json.RawMessage) (Row, error)
}

var (
	// ErrUnknownEntity is returned by Lookup for names that are not registered
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrMissingField is wrapped by MappingError when a required field is absent
	ErrMissingField = errors.New("missing required field")
)

// MappingError reports a record that cannot be turned into a row.
type MappingError struct {
	Entity string
	ID     string
	Err    error
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("map %s record %s: %v", e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("map %s record: %v", e.Entity, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *MappingError) Unwrap() error {
	return e.Err
}

// Map converts one raw record into a row.
func (e *Entity) Map(record json.RawMessage) (Row, error) {
	row, err := e.mapFn(record)
	if err != nil {
		var probe struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(record, &probe)
		return nil, &MappingError{Entity: e.Name, ID: probe.ID, Err: err}
	}
	return row, nil
}

// ColumnNames returns the column names in insert order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// KeyIndex returns the position of the natural key column, or -1.
func (e *Entity) KeyIndex() int {
	for i, c := range e.Columns {
		if c.Name == e.Key {
			return i
		}
	}
	return -1
}

var registry = map[string]*Entity{}

func register(e *Entity) {
	if _, dup := registry[e.Name]; dup {
		panic("entity registered twice: " + e.Name)
	}
	registry[e.Name] = e
}

// Lookup returns the entity registered under name.
func Lookup(name string) (*Entity, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownEntity, name, Names())
	}
	return e, nil
}

// Names returns the registered entity names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
