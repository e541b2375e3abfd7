package postgres

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	"github.com/jackc/pgx/v5"
)

// columnType maps a logical column type to its DDL type.
func columnType(t entity.ColumnType) string {
	switch t {
	case entity.Numeric:
		return "NUMERIC"
	case entity.Bool:
		return "BOOLEAN"
	case entity.Int:
		return "INTEGER"
	case entity.Bytes:
		return "BYTEA"
	case entity.BlockRange:
		return "INT4RANGE"
	default:
		return "TEXT"
	}
}

// placeholder returns the bind placeholder for parameter n, cast where the
// Go value does not map onto the column type directly.
func placeholder(n int, t entity.ColumnType) string {
	switch t {
	case entity.Numeric:
		return fmt.Sprintf("$%d::text::numeric", n)
	case entity.BlockRange:
		return fmt.Sprintf("$%d::text::int4range", n)
	default:
		return fmt.Sprintf("$%d", n)
	}
}

func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

func indexName(ent *entity.Entity) string {
	return ent.Table + "_" + ent.Key + "_key"
}

func schemaStatements(schema string, ent *entity.Entity, mode store.ConflictMode) []string {
	var cols []string
	cols = append(cols, ident(store.SurrogateKey)+" BIGSERIAL PRIMARY KEY")
	for _, c := range ent.Columns {
		def := ident(c.Name) + " " + columnType(c.Type)
		if c.NotNull {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}

	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + ident(schema),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", ident(schema, ent.Table), strings.Join(cols, ",\n\t")),
	}

	if mode == store.ConflictNatural {
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			ident(indexName(ent)), ident(schema, ent.Table), ident(ent.Key)))
	}

	return stmts
}

// upsertStatement builds a multi-row INSERT ... ON CONFLICT for rows rows.
func upsertStatement(schema string, ent *entity.Entity, rows int, mode store.ConflictMode) string {
	var b strings.Builder

	names := make([]string, len(ent.Columns))
	for i, c := range ent.Columns {
		names[i] = ident(c.Name)
	}

	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", ident(schema, ent.Table), strings.Join(names, ", "))

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i, c := range ent.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholder(n, c.Type))
			n++
		}
		b.WriteByte(')')
	}

	target := ent.Key
	if mode == store.ConflictSurrogate {
		target = store.SurrogateKey
	}

	var sets []string
	for _, c := range ent.Columns {
		if mode == store.ConflictNatural && c.Name == ent.Key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(c.Name), ident(c.Name)))
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", ident(target), strings.Join(sets, ", "))
	return b.String()
}
