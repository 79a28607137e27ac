package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	catalogpostgres "github.com/duckmesh/tabletalk/internal/catalog/postgres"
	"github.com/duckmesh/tabletalk/internal/catalog/profile"
	"github.com/duckmesh/tabletalk/internal/config"
	"github.com/duckmesh/tabletalk/internal/observability"
	s3store "github.com/duckmesh/tabletalk/internal/storage/s3"
	duckdbstore "github.com/duckmesh/tabletalk/internal/tablestore/duckdb"
)

func main() {
	userID := flag.String("user", "", "owner of the dataset")
	objectPath := flag.String("object", "", "object store key of the uploaded parquet file")
	displayName := flag.String("name", "", "display name; defaults to the object's base name")
	targetID := flag.String("target", "", "target id to (re)profile; a new one is derived when empty")
	flag.Parse()

	cfg, err := config.LoadFromEnv("tabletalk-catalog")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalogDB, err := catalogpostgres.Open(ctx, cfg.Catalog)
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	objectStore, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	registrar := &profile.Registrar{
		Profiler: profile.New(objectStore, duckdbstore.NewStore(objectStore), profile.Config{
			SampleRows:          cfg.Profiling.SampleRows,
			LowCardinalityLimit: cfg.Profiling.LowCardinalityLimit,
		}),
		Catalog: catalogpostgres.NewRepository(catalogDB),
	}

	entry, err := registrar.Register(ctx, profile.Request{
		TargetID:    *targetID,
		UserID:      *userID,
		DisplayName: *displayName,
		ObjectPath:  *objectPath,
	})
	if err != nil {
		logger.Error("dataset registration failed",
			slog.Any("error", err),
			slog.String("object_path", *objectPath),
		)
		os.Exit(1)
	}
	logger.Info("dataset registered",
		slog.String("target_id", entry.TargetID),
		slog.Int64("row_count", entry.RowCount),
		slog.Int("ordinal", entry.Ordinal),
	)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(entry)
}
