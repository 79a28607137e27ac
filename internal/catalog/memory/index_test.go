package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/duckmesh/tabletalk/internal/catalog"
)

func TestGetEntriesScopesByUserInOrdinalOrder(t *testing.T) {
	idx := NewIndex(
		catalog.Entry{TargetID: "b", UserID: "u1", Ordinal: 2},
		catalog.Entry{TargetID: "a", UserID: "u1", Ordinal: 1},
		catalog.Entry{TargetID: "c", UserID: "u2", Ordinal: 1},
	)
	entries, err := idx.GetEntries(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetEntries() error = %v", err)
	}
	if len(entries) != 2 || entries[0].TargetID != "a" || entries[1].TargetID != "b" {
		t.Fatalf("GetEntries() = %+v", entries)
	}
	if _, err := idx.GetEntry(context.Background(), "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetEntry() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertEntryAssignsAndKeepsOrdinals(t *testing.T) {
	idx := NewIndex(catalog.Entry{TargetID: "a", UserID: "u1", Ordinal: 1})

	created, err := idx.UpsertEntry(context.Background(), catalog.Entry{TargetID: "b", UserID: "u1", RowCount: 3})
	if err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}
	if created.Ordinal != 2 || created.CreatedAt.IsZero() {
		t.Fatalf("created = %+v", created)
	}

	other, _ := idx.UpsertEntry(context.Background(), catalog.Entry{TargetID: "c", UserID: "u2"})
	if other.Ordinal != 1 {
		t.Fatalf("other user ordinal = %d", other.Ordinal)
	}

	updated, _ := idx.UpsertEntry(context.Background(), catalog.Entry{TargetID: "b", UserID: "u1", RowCount: 9})
	if updated.Ordinal != 2 || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("updated = %+v", updated)
	}
	stored, _ := idx.GetEntry(context.Background(), "b")
	if stored.RowCount != 9 {
		t.Fatalf("stored = %+v", stored)
	}
}
