package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/insightchart/insightchart/internal/config"
	"github.com/insightchart/insightchart/internal/demo"
	"github.com/insightchart/insightchart/internal/observability"
	s3store "github.com/insightchart/insightchart/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("insight-demo")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	demoCfg, err := demo.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}

	logger, closeLogger := observability.NewLogger(cfg, os.Stdout)
	defer closeLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		logger.Error("failed to initialize object store", slog.Any("error", err))
		closeLogger()
		os.Exit(1)
	}

	publisher, err := demo.NewPublisher(store, cfg.Datasets.Prefix, logger)
	if err != nil {
		logger.Error("failed to initialize demo publisher", slog.Any("error", err))
		closeLogger()
		os.Exit(1)
	}

	logger.Info("generating demo dataset",
		slog.String("table", demoCfg.Table),
		slog.Int("rows", demoCfg.Rows),
		slog.Int("days", demoCfg.Days),
		slog.Int64("seed", demoCfg.Seed),
	)
	rows := demo.NewGenerator(demoCfg.Seed, demoCfg.StartDate, demoCfg.Days).Rows(demoCfg.Rows)
	info, err := publisher.Publish(ctx, demoCfg.Table, rows)
	if err != nil {
		logger.Error("demo dataset publish failed", slog.Any("error", err))
		closeLogger()
		os.Exit(1)
	}
	logger.Info("demo dataset published", slog.String("key", info.Key), slog.Int64("bytes", info.Size))
}
