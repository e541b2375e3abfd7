package store

import (
	"fmt"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
)

// Dedupe collapses rows sharing the value at keyIdx. The surviving row takes
// the values of the last occurrence and the position of the first, so the
// result is stable for a given input. A single multi-row upsert statement may
// not touch the same target row twice, hence this pass before every statement.
func Dedupe(rows []entity.Row, keyIdx int) []entity.Row {
	if len(rows) < 2 || keyIdx < 0 {
		return rows
	}

	pos := make(map[any]int, len(rows))
	out := make([]entity.Row, 0, len(rows))
	for _, row := range rows {
		key := row[keyIdx]
		if i, seen := pos[key]; seen {
			out[i] = row
			continue
		}
		pos[key] = len(out)
		out = append(out, row)
	}
	return out
}

// RowsPerStatement returns how many rows of columns values fit under a bind parameter limit.
func RowsPerStatement(columns, paramLimit int) int {
	if columns <= 0 {
		return paramLimit
	}
	n := paramLimit / columns
	if n < 1 {
		n = 1
	}
	return n
}

// Chunks splits rows into consecutive slices of at most size rows.
func Chunks(rows []entity.Row, size int) [][]entity.Row {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]entity.Row
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// CheckRows verifies every row has one value per column.
func CheckRows(ent *entity.Entity, rows []entity.Row) error {
	for i, row := range rows {
		if len(row) != len(ent.Columns) {
			return fmt.Errorf("row %d has %d values, %s has %d columns", i, len(row), ent.Table, len(ent.Columns))
		}
	}
	return nil
}
