package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckmesh/tabletalk/internal/config"
	"github.com/duckmesh/tabletalk/internal/demo/seed"
	"github.com/duckmesh/tabletalk/internal/observability"
	s3store "github.com/duckmesh/tabletalk/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-demo-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	seedCfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo seed config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	service, err := seed.NewService(seedCfg, objectStore, logger, nil)
	if err != nil {
		logger.Error("failed to initialize demo seed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("seeding demo datasets",
		slog.String("api_url", seedCfg.APIBaseURL),
		slog.String("user_id", seedCfg.UserID),
		slog.Int("deal_rows", seedCfg.DealRows),
		slog.Int("staff_rows", seedCfg.StaffRows),
	)
	registered, err := service.Run(ctx)
	if err != nil {
		logger.Error("demo seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo seed finished", slog.Int("registered", len(registered)))
}
