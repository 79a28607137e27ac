package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/duckmesh/tabletalk/internal/config"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), config.CatalogConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestApplyPool(t *testing.T) {
	db, _ := newSQLMock(t)
	applyPool(db, config.CatalogConfig{MaxOpenConns: 7, ConnMaxLifetime: time.Minute})
	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("MaxOpenConnections = %d, want 7", got)
	}
}
