package sqlserver

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
)

// columnType maps a logical column type to its DDL type.
// Numeric values are integral on-chain amounts and timestamps.
func columnType(t entity.ColumnType) string {
	switch t {
	case entity.KeyText:
		return "NVARCHAR(450)"
	case entity.Numeric:
		return "DECIMAL(38, 0)"
	case entity.Bool:
		return "BIT"
	case entity.Int:
		return "INT"
	case entity.Bytes:
		return "VARBINARY(MAX)"
	case entity.BlockRange:
		return "NVARCHAR(64)"
	default:
		return "NVARCHAR(MAX)"
	}
}

// checkIntegral rejects numeric values with a non-zero fractional part,
// which DECIMAL(38, 0) would round on insert.
func checkIntegral(ent *entity.Entity, rows []entity.Row) error {
	for i, c := range ent.Columns {
		if c.Type != entity.Numeric {
			continue
		}
		for r, row := range rows {
			s, ok := row[i].(string)
			if !ok {
				continue
			}
			if dot := strings.IndexByte(s, '.'); dot >= 0 && strings.Trim(s[dot+1:], "0") != "" {
				return fmt.Errorf("row %d: %s = %s has a fractional part, DECIMAL(38, 0) holds integers only", r, c.Name, s)
			}
		}
	}
	return nil
}

func quote(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func literal(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func qualified(schema, table string) string {
	return quote(schema) + "." + quote(table)
}

func schemaStatements(schema string, ent *entity.Entity) []string {
	table := qualified(schema, ent.Table)

	cols := []string{quote(store.SurrogateKey) + " BIGINT IDENTITY(1,1) PRIMARY KEY"}
	for _, c := range ent.Columns {
		def := quote(c.Name) + " " + columnType(c.Type)
		if c.NotNull {
			def += " NOT NULL"
		} else {
			def += " NULL"
		}
		cols = append(cols, def)
	}

	index := ent.Table + "_" + ent.Key + "_key"

	return []string{
		fmt.Sprintf("IF SCHEMA_ID(%s) IS NULL EXEC(%s)",
			literal(schema), literal("CREATE SCHEMA "+quote(schema))),
		fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NULL CREATE TABLE %s (\n\t%s\n)",
			literal(table), table, strings.Join(cols, ",\n\t")),
		fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = %s AND object_id = OBJECT_ID(%s)) CREATE UNIQUE INDEX %s ON %s (%s)",
			literal(index), literal(table), quote(index), table, quote(ent.Key)),
	}
}

// mergeStatement builds a MERGE upserting rows rows keyed on the natural key.
// Every placeholder is CAST so that NULLs in the VALUES list get the column type.
func mergeStatement(schema string, ent *entity.Entity, rows int) string {
	var b strings.Builder

	names := make([]string, len(ent.Columns))
	for i, c := range ent.Columns {
		names[i] = quote(c.Name)
	}

	fmt.Fprintf(&b, "MERGE INTO %s WITH (HOLDLOCK) AS t USING (VALUES ", qualified(schema, ent.Table))

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
			fmt.Fprintf(&b, "CAST(@p%d AS %s)", n, columnType(c.Type))
			n++
		}
		b.WriteByte(')')
	}

	key := quote(ent.Key)
	fmt.Fprintf(&b, ") AS s (%s) ON t.%s = s.%s", strings.Join(names, ", "), key, key)

	var sets, values []string
	for _, c := range ent.Columns {
		values = append(values, "s."+quote(c.Name))
		if c.Name == ent.Key {
			continue
		}
		sets = append(sets, fmt.Sprintf("t.%s = s.%s", quote(c.Name), quote(c.Name)))
	}

	fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);", strings.Join(names, ", "), strings.Join(values, ", "))
	return b.String()
}
