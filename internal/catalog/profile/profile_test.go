package profile

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/tabletalk/internal/catalog"
	catalogmemory "github.com/duckmesh/tabletalk/internal/catalog/memory"
	"github.com/duckmesh/tabletalk/internal/storage"
	"github.com/duckmesh/tabletalk/internal/storage/memory"
	"github.com/duckmesh/tabletalk/internal/tablestore/duckdb"
)

type upload struct {
	ID     int64   `parquet:"id"`
	Stage  string  `parquet:"stage"`
	Amount float64 `parquet:"amount"`
	Note   *string `parquet:"note,optional"`
}

const objectPath = "user-1/uploads/pipeline.parquet"

func TestProfileDescribesColumns(t *testing.T) {
	a, b := "call back", "priority"
	objects := putUploads(t, []upload{
		{ID: 1, Stage: "Won", Amount: 10},
		{ID: 2, Stage: "Lost", Amount: 10, Note: &a},
		{ID: 3, Stage: "Won", Amount: 20, Note: &b},
		{ID: 4, Stage: "Won", Amount: 30},
	})
	profiler := New(objects, duckdb.NewStore(objects), Config{SampleRows: 3, LowCardinalityLimit: 2})

	entry, err := profiler.Profile(context.Background(), Request{
		TargetID:    "deals_a1",
		UserID:      "user-1",
		DisplayName: "pipeline.csv",
		ObjectPath:  objectPath,
	})
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if entry.TargetID != "deals_a1" || entry.UserID != "user-1" || entry.RowCount != 4 {
		t.Fatalf("entry = %+v", entry)
	}
	if len(entry.SampleRows) != 3 {
		t.Fatalf("sample rows = %d", len(entry.SampleRows))
	}
	if len(entry.Columns) != 4 {
		t.Fatalf("columns = %+v", entry.Columns)
	}

	want := []struct {
		name        string
		typ         catalog.ScalarType
		nullable    bool
		cardinality catalog.Cardinality
		values      []string
	}{
		{name: "id", typ: catalog.TypeInteger, cardinality: catalog.CardinalityUnique},
		{name: "stage", typ: catalog.TypeString, cardinality: catalog.CardinalityLow, values: []string{"Lost", "Won"}},
		{name: "amount", typ: catalog.TypeFloat, cardinality: catalog.CardinalityHigh},
		{name: "note", typ: catalog.TypeString, nullable: true, cardinality: catalog.CardinalityLow, values: []string{"call back", "priority"}},
	}
	for i, w := range want {
		got := entry.Columns[i]
		if got.Name != w.name || got.Type != w.typ || got.Nullable != w.nullable || got.Cardinality != w.cardinality {
			t.Fatalf("column %d = %+v, want %+v", i, got, w)
		}
		if len(got.DistinctValues) != len(w.values) {
			t.Fatalf("column %s distinct values = %v, want %v", w.name, got.DistinctValues, w.values)
		}
		for j := range w.values {
			if got.DistinctValues[j] != w.values[j] {
				t.Fatalf("column %s distinct values = %v, want %v", w.name, got.DistinctValues, w.values)
			}
		}
	}
}

func TestProfileDerivesTargetAndDisplayName(t *testing.T) {
	objects := putUploads(t, []upload{{ID: 1, Stage: "Won", Amount: 1}})
	profiler := New(objects, duckdb.NewStore(objects), Config{})

	entry, err := profiler.Profile(context.Background(), Request{UserID: "user-1", ObjectPath: objectPath})
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if entry.DisplayName != "pipeline.parquet" {
		t.Fatalf("DisplayName = %q", entry.DisplayName)
	}
	if !regexp.MustCompile(`^pipeline_[0-9a-f]{8}$`).MatchString(entry.TargetID) {
		t.Fatalf("TargetID = %q", entry.TargetID)
	}
}

func TestProfileMissingObject(t *testing.T) {
	objects := memory.NewStore()
	profiler := New(objects, duckdb.NewStore(objects), Config{})
	_, err := profiler.Profile(context.Background(), Request{UserID: "user-1", ObjectPath: "nope.parquet"})
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Profile() error = %v, want ErrObjectNotFound", err)
	}
}

func TestProfileRejectsUnsafeTargetID(t *testing.T) {
	objects := putUploads(t, []upload{{ID: 1, Stage: "Won", Amount: 1}})
	profiler := New(objects, duckdb.NewStore(objects), Config{})
	_, err := profiler.Profile(context.Background(), Request{TargetID: `x" ; DROP`, UserID: "user-1", ObjectPath: objectPath})
	if err == nil {
		t.Fatal("expected invalid target id error")
	}
}

func TestProfileRequiresUser(t *testing.T) {
	profiler := New(memory.NewStore(), nil, Config{})
	if _, err := profiler.Profile(context.Background(), Request{ObjectPath: objectPath}); err == nil {
		t.Fatal("expected error without user id")
	}
}

func TestNewTargetID(t *testing.T) {
	cases := map[string]*regexp.Regexp{
		"Q3 Pipeline.csv":   regexp.MustCompile(`^q3_pipeline_[0-9a-f]{8}$`),
		"2024 revenue.xlsx": regexp.MustCompile(`^dataset_2024_revenue_[0-9a-f]{8}$`),
		"!!!.csv":           regexp.MustCompile(`^dataset_[0-9a-f]{8}$`),
	}
	for name, pattern := range cases {
		if got := NewTargetID(name); !pattern.MatchString(got) {
			t.Fatalf("NewTargetID(%q) = %q", name, got)
		}
	}
	if NewTargetID("a.csv") == NewTargetID("a.csv") {
		t.Fatal("expected distinct target ids")
	}
}

func putUploads(t *testing.T, rows []upload) *memory.Store {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[upload](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	objects := memory.NewStore()
	if _, err := objects.Put(context.Background(), objectPath, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return objects
}

func TestRegistrarStoresProfiledEntry(t *testing.T) {
	objects := putUploads(t, []upload{{ID: 1, Stage: "Won", Amount: 1}, {ID: 2, Stage: "Lost", Amount: 2}})
	index := catalogmemory.NewIndex(catalog.Entry{TargetID: "older", UserID: "user-1", Ordinal: 1})
	registrar := Registrar{Profiler: New(objects, duckdb.NewStore(objects), Config{}), Catalog: index}

	entry, err := registrar.Register(context.Background(), Request{
		TargetID:    "deals_a1",
		UserID:      "user-1",
		DisplayName: "pipeline.csv",
		ObjectPath:  objectPath,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if entry.Ordinal != 2 || entry.RowCount != 2 {
		t.Fatalf("entry = %+v", entry)
	}
	stored, err := index.GetEntry(context.Background(), "deals_a1")
	if err != nil || len(stored.Columns) != 4 {
		t.Fatalf("stored = %+v, err = %v", stored, err)
	}
}
