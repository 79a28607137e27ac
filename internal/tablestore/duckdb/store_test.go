package duckdb

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/storage"
	"github.com/duckmesh/tabletalk/internal/storage/memory"
	"github.com/duckmesh/tabletalk/internal/tablestore"
)

type deal struct {
	ID     int64   `parquet:"id"`
	Stage  string  `parquet:"stage"`
	Amount float64 `parquet:"amount"`
}

const dealsPath = "user-1/deals_a1/data.parquet"

func TestExecuteReadsDatasetThroughView(t *testing.T) {
	store := newDealsStore(t, []deal{
		{ID: 1, Stage: "Won", Amount: 10},
		{ID: 2, Stage: "Lost", Amount: 20.5},
		{ID: 3, Stage: "Won", Amount: 7},
	})

	result, err := store.Execute(context.Background(), tablestore.Request{
		TargetID:   "deals_a1",
		ObjectPath: dealsPath,
		Statement:  `SELECT "stage", COUNT(*) AS n FROM "deals_a1" GROUP BY "stage" ORDER BY "stage";`,
		RowCap:     100,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount() != 2 {
		t.Fatalf("rows = %d", result.RowCount())
	}
	if result.Truncated {
		t.Fatal("did not expect truncation")
	}
	if result.Columns[0].Type != catalog.TypeString || result.Columns[1].Type != catalog.TypeInteger {
		t.Fatalf("columns = %+v", result.Columns)
	}
	if result.Rows[1][0] != "Won" || result.Rows[1][1] != int64(2) {
		t.Fatalf("row = %#v", result.Rows[1])
	}
}

func TestExecuteFlagsTruncation(t *testing.T) {
	store := newDealsStore(t, []deal{{ID: 1, Stage: "a"}, {ID: 2, Stage: "b"}, {ID: 3, Stage: "c"}})

	result, err := store.Execute(context.Background(), tablestore.Request{
		TargetID:   "deals_a1",
		ObjectPath: dealsPath,
		Statement:  `SELECT * FROM "deals_a1"`,
		RowCap:     2,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Truncated {
		t.Fatal("expected truncation flag")
	}
	if result.RowCount() != 2 {
		t.Fatalf("rows = %d", result.RowCount())
	}
}

func TestExecuteExactRowCapIsNotTruncated(t *testing.T) {
	store := newDealsStore(t, []deal{{ID: 1}, {ID: 2}})

	result, err := store.Execute(context.Background(), tablestore.Request{
		TargetID:   "deals_a1",
		ObjectPath: dealsPath,
		Statement:  `SELECT "id" FROM "deals_a1"`,
		RowCap:     2,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Truncated || result.RowCount() != 2 {
		t.Fatalf("truncated=%v rows=%d", result.Truncated, result.RowCount())
	}
}

func TestExecuteMissingObject(t *testing.T) {
	store := NewStore(memory.NewStore())

	_, err := store.Execute(context.Background(), tablestore.Request{
		TargetID:   "gone",
		ObjectPath: "user-1/gone/data.parquet",
		Statement:  `SELECT 1`,
	})
	if !errors.Is(err, tablestore.ErrTargetMissing) {
		t.Fatalf("Execute() error = %v, want ErrTargetMissing", err)
	}
}

func TestExecuteRuntimeError(t *testing.T) {
	store := newDealsStore(t, []deal{{ID: 1}})

	_, err := store.Execute(context.Background(), tablestore.Request{
		TargetID:   "deals_a1",
		ObjectPath: dealsPath,
		Statement:  `SELECT "no_such_column" FROM "deals_a1"`,
	})
	var runtimeErr *tablestore.RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("Execute() error = %v, want RuntimeError", err)
	}
}

func TestExecuteStatementEndingInLineComment(t *testing.T) {
	store := newDealsStore(t, []deal{{ID: 1}, {ID: 2}, {ID: 3}})

	result, err := store.Execute(context.Background(), tablestore.Request{
		TargetID:   "deals_a1",
		ObjectPath: dealsPath,
		Statement:  `SELECT COUNT(*) FROM "deals_a1" -- count rows`,
		RowCap:     10,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount() != 1 || result.Rows[0][0] != int64(3) {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

func TestExecuteAllowsCTEOverTarget(t *testing.T) {
	store := newDealsStore(t, []deal{{ID: 1, Stage: "Won"}, {ID: 2, Stage: "Lost"}})

	result, err := store.Execute(context.Background(), tablestore.Request{
		TargetID:   "deals_a1",
		ObjectPath: dealsPath,
		Statement:  `WITH won AS (SELECT * FROM "deals_a1" WHERE "stage" = 'Won') SELECT COUNT(*) FROM won`,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != int64(1) {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

func TestExecuteRejectsWhatTheParserDoesNotAccept(t *testing.T) {
	store := newDealsStore(t, []deal{{ID: 1}})

	cases := map[string]string{
		"mutation":          `DELETE FROM "deals_a1"`,
		"second statement":  `SELECT 1 FROM "deals_a1"; SELECT 2`,
		"other relation":    `SELECT * FROM "staff_b2"`,
		"file table func":   `SELECT * FROM read_csv('/etc/passwd')`,
		"catalog relation":  `SELECT * FROM information_schema.tables`,
		"nested other read": `SELECT * FROM "deals_a1" WHERE "id" IN (SELECT 1 FROM "staff_b2")`,
	}
	for name, statement := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := store.Execute(context.Background(), tablestore.Request{
				TargetID:   "deals_a1",
				ObjectPath: dealsPath,
				Statement:  statement,
			})
			if !errors.Is(err, tablestore.ErrRejected) {
				t.Fatalf("Execute(%q) error = %v, want ErrRejected", statement, err)
			}
		})
	}
}

func TestExecuteSyntaxErrorIsRuntimeError(t *testing.T) {
	store := newDealsStore(t, []deal{{ID: 1}})

	_, err := store.Execute(context.Background(), tablestore.Request{
		TargetID:   "deals_a1",
		ObjectPath: dealsPath,
		Statement:  `SELECT (1`,
	})
	var runtimeErr *tablestore.RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("Execute() error = %v, want RuntimeError", err)
	}
}

func TestScalarTypeOf(t *testing.T) {
	cases := map[string]catalog.ScalarType{
		"BIGINT":                   catalog.TypeInteger,
		"HUGEINT":                  catalog.TypeInteger,
		"UINTEGER":                 catalog.TypeInteger,
		"DECIMAL(18,3)":            catalog.TypeFloat,
		"DOUBLE":                   catalog.TypeFloat,
		"DATE":                     catalog.TypeDate,
		"TIMESTAMP WITH TIME ZONE": catalog.TypeDatetime,
		"BOOLEAN":                  catalog.TypeBoolean,
		"VARCHAR":                  catalog.TypeString,
		"INTERVAL":                 catalog.TypeString,
	}
	for input, want := range cases {
		if got := scalarTypeOf(input); got != want {
			t.Fatalf("scalarTypeOf(%q) = %q, want %q", input, got, want)
		}
	}
}

func newDealsStore(t *testing.T, rows []deal) *Store {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[deal](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	objects := memory.NewStore()
	if _, err := objects.Put(context.Background(), dealsPath, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return NewStore(objects)
}
