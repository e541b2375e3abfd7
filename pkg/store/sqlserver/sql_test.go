package sqlserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	mssql "github.com/microsoft/go-mssqldb"
)

var testEntity = &entity.Entity{
	Name:  "widget",
	Table: "widget",
	Key:   "id",
	Columns: []entity.Column{
		{Name: "id", Type: entity.KeyText, NotNull: true},
		{Name: "amount", Type: entity.Numeric},
	},
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("sgd1", testEntity)
	if len(stmts) != 3 {
		t.Fatalf("len(stmts) = %d, want 3", len(stmts))
	}

	tests := []struct {
		stmt int
		want string
	}{
		{0, "IF SCHEMA_ID(N'sgd1') IS NULL EXEC(N'CREATE SCHEMA [sgd1]')"},
		{1, "IF OBJECT_ID(N'[sgd1].[widget]', N'U') IS NULL CREATE TABLE [sgd1].[widget]"},
		{1, "[vid] BIGINT IDENTITY(1,1) PRIMARY KEY"},
		{1, "[id] NVARCHAR(450) NOT NULL"},
		{1, "[amount] DECIMAL(38, 0) NULL"},
		{2, "CREATE UNIQUE INDEX [widget_id_key] ON [sgd1].[widget] ([id])"},
	}

	for _, tt := range tests {
		if !strings.Contains(stmts[tt.stmt], tt.want) {
			t.Errorf("statement %d missing %q:\n%s", tt.stmt, tt.want, stmts[tt.stmt])
		}
	}
}

func TestMergeStatement(t *testing.T) {
	got := mergeStatement("sgd1", testEntity, 2)
	want := "MERGE INTO [sgd1].[widget] WITH (HOLDLOCK) AS t USING (VALUES " +
		"(CAST(@p1 AS NVARCHAR(450)), CAST(@p2 AS DECIMAL(38, 0))), " +
		"(CAST(@p3 AS NVARCHAR(450)), CAST(@p4 AS DECIMAL(38, 0)))" +
		") AS s ([id], [amount]) ON t.[id] = s.[id]" +
		" WHEN MATCHED THEN UPDATE SET t.[amount] = s.[amount]" +
		" WHEN NOT MATCHED THEN INSERT ([id], [amount]) VALUES (s.[id], s.[amount]);"

	if got != want {
		t.Errorf("mergeStatement() =\n%s\nwant\n%s", got, want)
	}
}

func TestQuote(t *testing.T) {
	if got := quote("we]ird"); got != "[we]]ird]" {
		t.Errorf("quote() = %s", got)
	}
	if got := literal("o'brien"); got != "N'o''brien'" {
		t.Errorf("literal() = %s", got)
	}
}

func TestRowsPerStatement_UnderLimit(t *testing.T) {
	for _, name := range entity.Names() {
		ent, _ := entity.Lookup(name)
		rows := store.RowsPerStatement(len(ent.Columns), maxParams)
		if rows*len(ent.Columns) > 2100 {
			t.Errorf("%s: %d rows x %d columns exceeds 2100 parameters", name, rows, len(ent.Columns))
		}
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want store.ErrorCode
	}{
		{name: "primary key", err: mssql.Error{Number: 2627}, want: store.CodeUniqueViolation},
		{name: "unique index", err: mssql.Error{Number: 2601}, want: store.CodeUniqueViolation},
		{name: "null", err: mssql.Error{Number: 515}, want: store.CodeNotNullViolation},
		{name: "overflow", err: mssql.Error{Number: 8115}, want: store.CodeInvalidValue},
		{name: "merge twice", err: mssql.Error{Number: 8672}, want: store.CodeUniqueViolation},
		{name: "deadline", err: context.DeadlineExceeded, want: store.CodeConnection},
		{name: "other", err: errors.New("boom"), want: store.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "upsert", "sgd1.widget")
			if !store.IsCode(err, tt.want) {
				t.Errorf("mapError() = %v, want code %s", err, tt.want)
			}
		})
	}
}

func TestSurrogateModeRejected(t *testing.T) {
	s := NewWithDB(nil, "sgd1")

	err := s.EnsureSchema(context.Background(), testEntity, store.ConflictSurrogate)
	if !errors.Is(err, store.ErrUnsupportedConflictMode) {
		t.Errorf("EnsureSchema() error = %v, want ErrUnsupportedConflictMode", err)
	}

	tx := &Tx{schema: "sgd1", logger: s.logger}
	_, err = tx.Upsert(context.Background(), testEntity, nil, store.ConflictSurrogate)
	if !store.IsCode(err, store.CodeUnsupported) {
		t.Errorf("Upsert() error = %v, want code %s", err, store.CodeUnsupported)
	}
}

func TestCheckIntegral(t *testing.T) {
	tests := []struct {
		name    string
		amount  any
		wantErr bool
	}{
		{"integer", "1000000000000000000", false},
		{"negative", "-42", false},
		{"zero fraction", "15.000", false},
		{"null", nil, false},
		{"fraction", "1.5", true},
		{"small fraction", "-0.001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []entity.Row{{"0x01", "7"}, {"0x02", tt.amount}}
			err := checkIntegral(testEntity, rows)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkIntegral() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "row 1: amount") {
				t.Errorf("error = %v, want it to name row 1 and the amount column", err)
			}
		})
	}
}

func TestUpsert_FractionalNumericRejected(t *testing.T) {
	tx := &Tx{schema: "sgd1", logger: NewWithDB(nil, "sgd1").logger}

	_, err := tx.Upsert(context.Background(), testEntity, []entity.Row{{"0x01", "1.5"}}, store.ConflictNatural)
	if !store.IsCode(err, store.CodeInvalidValue) {
		t.Errorf("Upsert() error = %v, want code %s", err, store.CodeInvalidValue)
	}
}
