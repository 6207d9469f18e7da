// Package app wires configuration into a running engine. Both the HTTP
// server and the operator CLI boot through it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"alcyxob/coaching-platform/internal/config"
	"alcyxob/coaching-platform/internal/observability"
	"alcyxob/coaching-platform/internal/policy"
	"alcyxob/coaching-platform/internal/repository"
	"alcyxob/coaching-platform/internal/repository/mongo"
	"alcyxob/coaching-platform/internal/repository/sqlite"
	"alcyxob/coaching-platform/internal/service"
	"alcyxob/coaching-platform/internal/storage"
	"alcyxob/coaching-platform/internal/suggest"
	"alcyxob/coaching-platform/pkg/clock"
)

// Presigned snapshot links stay valid this long.
const snapshotURLExpiry = 15 * time.Minute

// App holds the wired services.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Store       *repository.Store
	Policies    *policy.Registry
	Registry    *prometheus.Registry
	Metrics     *observability.Metrics
	Proposals   service.ProposalService
	Triggers    service.TriggerService
	Performance service.PerformanceService
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// OpenStore connects the configured backend. Mongo indexes are ensured before
// returning.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*repository.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		logger.Info("opening sqlite store", "path", cfg.SQLitePath)
		return sqlite.NewStore(cfg.SQLitePath)
	case "mongo", "":
		// --- Database Connection ---
		client, err := mongo.ConnectDB(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("could not connect to MongoDB: %w", err)
		}
		db := client.Database(cfg.Name)

		// --- Ensure Indexes ---
		indexCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(indexCtx, db); err != nil {
			_ = mongo.DisconnectDB(client)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("mongo store ready", "database", cfg.Name)
		return mongo.NewStore(client, db), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// NewProvider returns the deterministic provider, fronted by the AI provider
// when an API key is configured.
func NewProvider(cfg config.OpenAIConfig, logger *slog.Logger) suggest.Provider {
	deterministic := suggest.NewDeterministic()
	if cfg.APIKey == "" {
		return deterministic
	}
	ai := suggest.NewOpenAIProvider(suggest.NewOpenAIClient(cfg.APIKey), suggest.OpenAIConfig{
		Model:             cfg.Model,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           cfg.Timeout,
	}, logger)
	return suggest.NewFallback(ai, deterministic, logger)
}

// New wires every service from cfg. Close releases the store.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	// --- Store ---
	store, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	// --- Policy profiles ---
	policies, err := policy.NewRegistry(ctx, cfg.Policy.Profile, policy.StaticOverrides(cfg.Policy.Overrides))
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("load policy profiles: %w", err)
	}

	// --- Snapshot archive (optional) ---
	var archive *storage.SnapshotArchive
	if cfg.S3.BucketName != "" {
		files, err := storage.NewS3Storage(ctx, cfg.S3, logger)
		if err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		archive = storage.NewSnapshotArchive(files, snapshotURLExpiry)
	} else {
		logger.Info("snapshot archive disabled, no bucket configured")
	}

	// --- Metrics ---
	// A private registry keeps /metrics free of anything registered globally.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// --- Services ---
	deps := service.Deps{Store: store, Clock: clock.RealClock{}, Logger: logger, Metrics: metrics}
	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Policies: policies,
		Registry: reg,
		Metrics:  metrics,
		Proposals: service.NewProposalService(deps, service.ProposalConfig{
			Policies:   policies,
			PolicyName: cfg.Policy.Profile,
			Provider:   NewProvider(cfg.OpenAI, logger),
			Archive:    archive,
			RetryDelay: cfg.Approval.RetryDelay,
		}),
		Triggers:    service.NewTriggerService(deps, cfg.Detection.LookbackDays),
		Performance: service.NewPerformanceService(deps),
	}, nil
}

func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}
