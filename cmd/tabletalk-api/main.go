package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckmesh/tabletalk/internal/api"
	"github.com/duckmesh/tabletalk/internal/auth"
	catalogpostgres "github.com/duckmesh/tabletalk/internal/catalog/postgres"
	"github.com/duckmesh/tabletalk/internal/catalog/profile"
	"github.com/duckmesh/tabletalk/internal/chat"
	"github.com/duckmesh/tabletalk/internal/config"
	"github.com/duckmesh/tabletalk/internal/conversation"
	conversationpostgres "github.com/duckmesh/tabletalk/internal/conversation/postgres"
	"github.com/duckmesh/tabletalk/internal/executor"
	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/oracle"
	"github.com/duckmesh/tabletalk/internal/resolve"
	"github.com/duckmesh/tabletalk/internal/shape"
	"github.com/duckmesh/tabletalk/internal/synth"
	s3store "github.com/duckmesh/tabletalk/internal/storage/s3"
	duckdbstore "github.com/duckmesh/tabletalk/internal/tablestore/duckdb"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), cfg.Catalog)
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	catalogRepo := catalogpostgres.NewRepository(catalogDB)
	objectStore, err := s3store.New(context.Background(), s3store.Config{
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
	tableStore := duckdbstore.NewStore(objectStore)
	tableStore.Threads = cfg.Pipeline.ExecutorThreads

	completion, err := oracle.FromConfig(context.Background(), cfg.AI)
	if err != nil {
		logger.Error("failed to initialize completion oracle", slog.Any("error", err))
		os.Exit(1)
	}

	var conversations conversation.Store = conversation.NewMemoryStore()
	if cfg.History.Backend == config.HistoryPostgres {
		conversations = conversationpostgres.NewStore(catalogDB)
	}

	pipeline := chat.New(chat.Dependencies{
		Catalog:  catalogRepo,
		Resolver: resolve.New(cfg.Pipeline.ResolverMargin, cfg.Pipeline.ResolverMinScore),
		Synthesizer: synth.New(completion, synth.Config{
			Attempts:      cfg.Pipeline.SynthAttempts,
			Backoff:       cfg.Pipeline.SynthBackoff,
			Timeout:       cfg.AI.Timeout,
			HistoryWindow: cfg.Pipeline.HistoryWindow,
			SampleRows:    cfg.Pipeline.PromptSampleRows,
		}, logger),
		Executor: executor.New(tableStore, executor.Config{
			RowCap:        cfg.Pipeline.RowCap,
			TimeBudget:    cfg.Pipeline.TimeBudget,
			MaxConcurrent: cfg.Pipeline.MaxConcurrent,
			QueueWait:     cfg.Pipeline.QueueWait,
		}, logger),
		Shape: shape.Config{
			MaxCategoryRows: cfg.Pipeline.MaxCategoryRows,
			MaxSeriesRows:   cfg.Pipeline.MaxSeriesRows,
		},
		HistoryWindow:  cfg.Pipeline.HistoryWindow,
		InsightsBudget: cfg.TurnBudget(),
		Logger:         logger,
	})

	registrar := &profile.Registrar{
		Profiler: profile.New(objectStore, tableStore, profile.Config{
			SampleRows:          cfg.Profiling.SampleRows,
			LowCardinalityLimit: cfg.Profiling.LowCardinalityLimit,
		}),
		Catalog: catalogRepo,
	}

	deps := api.Dependencies{
		Logger:        logger,
		Catalog:       catalogRepo,
		Registrar:     registrar,
		Pipeline:      pipeline,
		Conversations: conversations,
		Gate:          conversation.NewGate(),
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
			api.CheckOracleConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("oracle", cfg.AI.Provider),
			slog.String("history", cfg.History.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
