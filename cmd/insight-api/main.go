package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/insightchart/insightchart/internal/api"
	"github.com/insightchart/insightchart/internal/auth"
	"github.com/insightchart/insightchart/internal/completion"
	"github.com/insightchart/insightchart/internal/config"
	"github.com/insightchart/insightchart/internal/interpret"
	"github.com/insightchart/insightchart/internal/observability"
	"github.com/insightchart/insightchart/internal/pipeline"
	"github.com/insightchart/insightchart/internal/planner"
	"github.com/insightchart/insightchart/internal/schema"
	"github.com/insightchart/insightchart/internal/source"
	s3store "github.com/insightchart/insightchart/internal/storage/s3"
	"github.com/insightchart/insightchart/internal/suggest"
)

func main() {
	cfg, err := config.LoadFromEnv("insight-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger, closeLogger := observability.NewLogger(cfg, os.Stdout)
	defer closeLogger()

	db, err := openSource(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open data source", slog.String("driver", cfg.Source.Driver), slog.Any("error", err))
		closeLogger()
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var (
		datasets *source.Datasets
		store    *s3store.Store
	)
	if cfg.Source.Driver == config.SourceDuckDB {
		datasets, store = openDatasets(context.Background(), cfg, db, logger)
	}
	readiness := []api.ReadinessCheck{api.CheckSource(db)}
	if store != nil {
		readiness = append(readiness, api.CheckObjectStore(store))
	}

	cache := schema.NewCache(schema.NewIntrospector(db, cfg.Source.Schema, cfg.Source.QueryTimeout), cfg.Schema.CacheTTL)

	completer, err := completion.New(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize completion provider", slog.String("provider", cfg.AI.Provider), slog.Any("error", err))
		closeLogger()
		os.Exit(1)
	}

	deps := pipeline.Dependencies{
		Schema:      cache,
		Interpreter: interpret.New(completer, logger),
		Fetcher:     planner.New(db, cfg.Source.Schema, cfg.Source.QueryTimeout, logger),
		Logger:      logger,
	}
	if cfg.Suggestions.Max > 0 && cfg.AI.Enabled {
		deps.Suggester = suggest.New(completer, cfg.Suggestions.Max, logger)
	}

	apiDeps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: 2 * time.Second,
		Pipeline:          pipeline.New(deps),
		RefreshSchema:     schemaRefresher(datasets, cache),
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			closeLogger()
			os.Exit(1)
		}
		apiDeps.AuthMiddleware = auth.Middleware(logger, validator)
		logger.Info("api key auth enabled", slog.Int("keys", validator.Len()))
	}

	handler := api.NewHandler(cfg, apiDeps)
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
			slog.String("source", cfg.Source.Driver),
			slog.String("provider", cfg.AI.Provider),
			slog.Bool("ai_enabled", cfg.AI.Enabled),
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
		closeLogger()
		os.Exit(1)
	}
}

func openSource(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dbCfg := source.DBConfig{
		DSN:             cfg.Source.DSN,
		MaxOpenConns:    cfg.Source.MaxOpenConns,
		MaxIdleConns:    cfg.Source.MaxIdleConns,
		ConnMaxIdleTime: cfg.Source.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Source.ConnMaxLifetime,
	}
	if cfg.Source.Driver == config.SourceDuckDB {
		return source.OpenDuckDB(ctx, dbCfg)
	}
	return source.OpenPostgres(ctx, dbCfg)
}

// openDatasets loads published parquet datasets into DuckDB. A missing
// object store is not fatal: the source may already hold tables.
func openDatasets(ctx context.Context, cfg config.Config, db *sql.DB, logger *slog.Logger) (*source.Datasets, *s3store.Store) {
	if cfg.ObjectStore.Endpoint == "" || cfg.ObjectStore.Bucket == "" {
		return nil, nil
	}
	store, err := s3store.New(ctx, s3store.Config{
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
		logger.Warn("object store unavailable; datasets not loaded", slog.Any("error", err))
		return nil, nil
	}
	datasets := source.NewDatasets(db, store, cfg.Datasets.Prefix, logger)
	if _, err := datasets.Refresh(ctx); err != nil {
		logger.Warn("initial dataset load failed", slog.Any("error", err))
	}
	return datasets, store
}

func schemaRefresher(datasets *source.Datasets, cache *schema.Cache) api.SchemaRefresher {
	return func(ctx context.Context) ([]string, error) {
		var tables []string
		if datasets != nil {
			loaded, err := datasets.Refresh(ctx)
			if err != nil {
				return nil, err
			}
			tables = loaded
		}
		cache.Invalidate()
		return tables, nil
	}
}
