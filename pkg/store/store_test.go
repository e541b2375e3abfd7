package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
)

func TestParseConflictMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ConflictMode
		wantErr bool
	}{
		{in: "natural", want: ConflictNatural},
		{in: "surrogate", want: ConflictSurrogate},
		{in: "", want: ConflictNatural},
		{in: "vid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseConflictMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConflictMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseConflictMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	rows := []entity.Row{
		{"a", 1},
		{"b", 1},
		{"a", 2},
		{"c", 1},
		{"b", 2},
		{"a", 3},
	}

	got := Dedupe(rows, 0)
	want := "[[a 3] [b 2] [c 1]]"
	if fmt.Sprint(got) != want {
		t.Errorf("Dedupe() = %v, want %s", got, want)
	}
}

func TestDedupe_NoKey(t *testing.T) {
	rows := []entity.Row{{"a"}, {"a"}}
	if got := Dedupe(rows, -1); len(got) != 2 {
		t.Errorf("Dedupe(-1) dropped rows: %v", got)
	}
}

func TestChunks(t *testing.T) {
	rows := make([]entity.Row, 7)
	for i := range rows {
		rows[i] = entity.Row{i}
	}

	tests := []struct {
		size int
		want []int
	}{
		{size: 3, want: []int{3, 3, 1}},
		{size: 7, want: []int{7}},
		{size: 100, want: []int{7}},
		{size: 0, want: []int{7}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.size), func(t *testing.T) {
			chunks := Chunks(rows, tt.size)
			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			if fmt.Sprint(sizes) != fmt.Sprint(tt.want) {
				t.Errorf("chunk sizes = %v, want %v", sizes, tt.want)
			}
		})
	}

	if got := Chunks(nil, 10); len(got) != 0 {
		t.Errorf("Chunks(nil) = %v, want none", got)
	}
}

func TestRowsPerStatement(t *testing.T) {
	tests := []struct {
		columns, limit, want int
	}{
		{columns: 16, limit: 65535, want: 4095},
		{columns: 8, limit: 2000, want: 250},
		{columns: 3000, limit: 2000, want: 1},
	}

	for _, tt := range tests {
		if got := RowsPerStatement(tt.columns, tt.limit); got != tt.want {
			t.Errorf("RowsPerStatement(%d, %d) = %d, want %d", tt.columns, tt.limit, got, tt.want)
		}
	}
}

func TestCheckRows(t *testing.T) {
	ent := &entity.Entity{Table: "t", Columns: []entity.Column{{Name: "a"}, {Name: "b"}}}

	if err := CheckRows(ent, []entity.Row{{1, 2}}); err != nil {
		t.Errorf("CheckRows() error = %v", err)
	}
	if err := CheckRows(ent, []entity.Row{{1, 2}, {1}}); err == nil {
		t.Error("CheckRows() should reject a short row")
	}
}

func TestWriteError(t *testing.T) {
	base := errors.New("duplicate key")
	err := fmt.Errorf("load: %w", &WriteError{
		Op:      "upsert",
		Table:   "sgd1.domain",
		Code:    CodeUniqueViolation,
		Message: "23505 duplicate key value",
		Err:     base,
	})

	if !errors.Is(err, base) {
		t.Error("errors.Is should reach the driver error")
	}
	if !IsCode(err, CodeUniqueViolation) {
		t.Error("IsCode should match")
	}
	if IsCode(err, CodeNotNullViolation) {
		t.Error("IsCode should not match another code")
	}

	want := "upsert sgd1.domain: unique_violation: 23505 duplicate key value: duplicate key"
	var we *WriteError
	errors.As(err, &we)
	if we.Error() != want {
		t.Errorf("Error() = %q, want %q", we.Error(), want)
	}
}
