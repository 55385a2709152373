package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photolink/internal/config"
	"github.com/kozaktomas/photolink/internal/constants"
	"github.com/kozaktomas/photolink/internal/database/postgres"
	"github.com/kozaktomas/photolink/internal/database/sqlite"
	"github.com/kozaktomas/photolink/internal/features"
	"github.com/kozaktomas/photolink/internal/inference"
	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/logging"
	"github.com/kozaktomas/photolink/internal/matching"
	"github.com/kozaktomas/photolink/internal/scan"
	"github.com/kozaktomas/photolink/internal/source"
)

// app holds the components shared by serve and scan.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	cache    *features.Cache
	service  *scan.Service
	textName string
	close    func() error
}

// newLogger builds the process logger. --log-level wins over LOG_LEVEL.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Log.Level
	if flag, err := cmd.Flags().GetString("log-level"); err == nil && flag != "" {
		level = flag
	}
	return logging.New(logging.Options{Level: level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
}

// openStore opens the feature store selected by CACHE_BACKEND.
func openStore(ctx context.Context, cfg *config.Config) (features.Store, func() error, error) {
	switch cfg.Cache.Backend {
	case constants.CacheMemory, "":
		return features.NewMemoryStore(), func() error { return nil }, nil
	case constants.CachePostgres:
		store, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case constants.CacheSQLite:
		store, err := sqlite.Open(ctx, cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// newApp wires configuration, cache, extractors and the scan service.
func newApp(ctx context.Context, cmd *cobra.Command, allowLocal bool) (*app, error) {
	cfg := config.Load()
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.Cache.Backend, err)
	}

	text, err := inference.NewTextExtractor(ctx, cfg, logger)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("text extractor: %w", err)
	}

	policy, err := matching.NewPolicy(cfg.Matching.Distance, cfg.Matching.Tolerance())
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("matching policy: %w", err)
	}

	cache := features.NewCache(store, inference.NewFaceExtractor(cfg), text,
		features.WithLogger(logger),
		features.WithMinConfidence(cfg.Matching.MinTextConfidence),
	)

	service := scan.NewService(
		jobs.NewRegistry(cfg.Jobs.Retention, logger),
		cache,
		policy,
		source.NewAdapters(cfg, source.Options{AllowLocal: allowLocal, Logger: logger}),
		source.NewConfigCredentials(cfg),
		scan.WithLogger(logger),
		scan.WithDetector(source.Detector{PhotoPrismURL: cfg.PhotoPrism.URL}),
		scan.WithStatusWindows(cfg.Status.MatchWindow, cfg.Status.ErrorWindow),
	)

	logger.Debug("application ready",
		"cache_backend", store.Name(),
		"text_extractor", text.Name(),
		"distance", cfg.Matching.Distance,
		"tolerance", policy.Tolerance,
		"providers", service.Providers(),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		service:  service,
		textName: text.Name(),
		close:    closeStore,
	}, nil
}
