package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/feed"
	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/lake-forcing-etl/internal/adapter/kafka"
	"github.com/couchcryptid/lake-forcing-etl/internal/adapter/store"
	"github.com/couchcryptid/lake-forcing-etl/internal/config"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
	"github.com/couchcryptid/lake-forcing-etl/internal/pipeline"
	"github.com/couchcryptid/lake-forcing-etl/internal/scheduler"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	once := flag.Bool("once", false, "run a single forcing cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	metrics := observability.NewMetrics()

	client := feed.NewClient(cfg.FeedBaseURL, cfg.FeedTimeout, metrics, logger)
	fetcher, err := feed.NewCachedFetcher(client, cfg.FeedCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create feed cache", "error", err)
		os.Exit(1)
	}
	forecast := feed.NewForecastClient(feed.ForecastConfig{
		BaseURL:    cfg.ForecastBaseURL,
		Office:     cfg.ForecastOffice,
		GridX:      cfg.ForecastGridX,
		GridY:      cfg.ForecastGridY,
		UserAgent:  cfg.ForecastUserAgent,
		Timeout:    cfg.FeedTimeout,
		RetryDelay: cfg.ForecastRetryDelay,
	}, metrics, logger)
	archive := store.NewArchive(cfg.ForecastArchive)

	// A nil *Writer must not reach the pipeline as a non-nil interface.
	var publisher pipeline.RowPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka row publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka row publishing disabled")
	}

	stations := pipeline.Stations{
		Buoy:      cfg.BuoyID,
		USCG:      cfg.USCGID,
		Nearshore: cfg.NearshoreID,
		TChain:    cfg.TChainID,
	}
	boundary := pipeline.NewBoundaryPipeline(fetcher, forecast, archive, publisher,
		cfg.Site, stations, cfg.ModelDir, logger, metrics)
	profile := pipeline.NewProfilePipeline(fetcher, cfg.Site, stations, cfg.ModelDir, cfg.TFNodeFile, logger, metrics)
	p := pipeline.New(boundary, profile, cfg.Lookback, pipeline.DefaultRetryPolicy, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		err := p.RunOnce(ctx)
		closeWriter(writer, logger)
		if err != nil {
			logger.Error("forcing cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(p, cfg.RunInterval, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	fetcher.Purge()
	closeWriter(writer, logger)

	logger.Info("shutdown complete")
}

// newLogger builds the service logger and installs it as the slog default.
func newLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

func closeWriter(w *kafkaadapter.Writer, logger *slog.Logger) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}
