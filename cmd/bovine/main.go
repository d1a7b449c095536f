package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0verdr1v3/bovine/internal/adapter/acled"
	"github.com/0verdr1v3/bovine/internal/adapter/firms"
	"github.com/0verdr1v3/bovine/internal/adapter/gnews"
	"github.com/0verdr1v3/bovine/internal/adapter/httpadapter"
	"github.com/0verdr1v3/bovine/internal/adapter/httputil"
	kafkaadapter "github.com/0verdr1v3/bovine/internal/adapter/kafka"
	"github.com/0verdr1v3/bovine/internal/adapter/logsink"
	natsadapter "github.com/0verdr1v3/bovine/internal/adapter/nats"
	"github.com/0verdr1v3/bovine/internal/adapter/openmeteo"
	"github.com/0verdr1v3/bovine/internal/adapter/overpass"
	"github.com/0verdr1v3/bovine/internal/adapter/postgis"
	"github.com/0verdr1v3/bovine/internal/adapter/satellite"
	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/change"
	"github.com/0verdr1v3/bovine/internal/config"
	"github.com/0verdr1v3/bovine/internal/fusion"
	"github.com/0verdr1v3/bovine/internal/observability"
	"github.com/0verdr1v3/bovine/internal/pipeline"
	"github.com/0verdr1v3/bovine/internal/reference"
	"github.com/0verdr1v3/bovine/internal/risk"
	"github.com/0verdr1v3/bovine/internal/scheduler"
	"github.com/0verdr1v3/bovine/internal/source"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataset, err := loadReference(cfg)
	if err != nil {
		logger.Error("failed to load reference dataset", "error", err)
		os.Exit(1)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open cache store", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	logger.Info("cache store ready", "backend", cfg.CacheBackend)

	sink, closeSink, err := openSink(cfg, logger)
	if err != nil {
		logger.Error("failed to open alert sink", "sink", cfg.AlertSink, "error", err)
		os.Exit(1)
	}
	logger.Info("alert sink ready", "sink", cfg.AlertSink)

	collaborators, closers := buildCollaborators(ctx, cfg, dataset, clock, logger, metrics)
	exec := source.NewExecutor(collaborators, source.ExecutorConfig{
		Timeout:     cfg.FetchTimeout,
		MaxParallel: cfg.MaxParallelFetches,
	}, clock, logger, metrics)

	p := pipeline.New(exec, store, sink, paramsFrom(cfg), clock, logger, metrics)
	sched := scheduler.New(func(ctx context.Context) error {
		_, err := p.RunCycle(ctx)
		return err
	}, cfg.BatchInterval, clock, logger, metrics)

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:        cfg.HTTPAddr,
		CORSOrigins: cfg.CORSOrigins,
		Ready:       p,
		Store:       store,
		Refresher:   sched,
		Clock:       clock,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.RunForever(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("cycle still running at shutdown deadline")
	}
	if err := closeSink(); err != nil {
		logger.Error("alert sink close error", "error", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("collaborator close error", "error", err)
		}
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("cache store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func loadReference(cfg *config.Config) (*reference.Dataset, error) {
	if cfg.ReferenceFile != "" {
		return reference.LoadFile(cfg.ReferenceFile)
	}
	return reference.Default()
}

func openStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.CacheBackend {
	case config.CacheMongo:
		return cache.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDB)
	case config.CacheRedis:
		return cache.NewRedisStore(connectCtx, cfg.RedisAddr)
	default:
		return cache.NewMemoryStore(), nil
	}
}

func openSink(cfg *config.Config, logger *slog.Logger) (pipeline.ChangeSink, func() error, error) {
	switch cfg.AlertSink {
	case config.SinkKafka:
		w := kafkaadapter.NewWriter(cfg, logger)
		return w, w.Close, nil
	case config.SinkNATS:
		pub, err := natsadapter.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return nil, nil, err
		}
		return pub, pub.Close, nil
	default:
		return logsink.New(logger), func() error { return nil }, nil
	}
}

// buildCollaborators registers the reference sources and every external feed
// whose credentials are configured. Reference data changes slowly and is
// memoized for ReferenceTTL.
func buildCollaborators(ctx context.Context, cfg *config.Config, dataset *reference.Dataset, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) ([]source.Collaborator, []io.Closer) {
	httpClient := httputil.NewClient(cfg.FetchTimeout)
	lat, lng := cfg.RegionBBox.Center()

	// The curated incidents are registered ahead of live conflict feeds so
	// their baseline copy wins deduplication.
	collaborators := []source.Collaborator{
		source.Memoize(reference.NewCensusSource(dataset), cfg.ReferenceTTL, clock, metrics),
		source.Memoize(reference.NewHistoricalConflictSource(dataset), cfg.ReferenceTTL, clock, metrics),
		openmeteo.NewClient(cfg.OpenMeteoURL, lat, lng, httpClient),
	}
	var closers []io.Closer

	if cfg.PostgresURL != "" {
		archive, err := postgis.Open(ctx, cfg.PostgresURL, cfg.RegionBBox, cfg.ConflictWindowDays, clock, logger)
		if err != nil {
			logger.Warn("conflict archive unavailable", "error", err)
		} else {
			collaborators = append(collaborators, archive)
			closers = append(closers, archive)
		}
	}

	if cfg.ACLEDEnabled() {
		collaborators = append(collaborators, acled.NewClient(acled.Options{
			BaseURL:    cfg.ACLEDURL,
			APIKey:     cfg.ACLEDAPIKey,
			Email:      cfg.ACLEDEmail,
			WindowDays: cfg.ConflictWindowDays,
			HTTPClient: httpClient,
			Clock:      clock,
			Logger:     logger,
		}))
	}
	if cfg.FIRMSMapKey != "" {
		collaborators = append(collaborators, firms.NewClient(cfg.FIRMSURL, cfg.FIRMSMapKey, cfg.RegionBBox, httpClient))
	}
	if cfg.SatelliteURL != "" {
		collaborators = append(collaborators, satellite.NewClient(cfg.SatelliteURL, cfg.SatelliteToken, cfg.RegionBBox, httpClient))
	}
	if cfg.GNewsAPIKey != "" {
		collaborators = append(collaborators, gnews.NewClient(cfg.GNewsURL, cfg.GNewsAPIKey, httpClient, logger))
	}
	if cfg.OverpassEnabled {
		collaborators = append(collaborators,
			source.Memoize(overpass.NewClient(cfg.OverpassURL, cfg.RegionBBox, cfg.FetchTimeout), cfg.ReferenceTTL, clock, metrics))
	}

	ids := make([]string, len(collaborators))
	for i, c := range collaborators {
		ids[i] = c.ID()
	}
	logger.Info("collaborators registered", "sources", ids)
	return collaborators, closers
}

func paramsFrom(cfg *config.Config) pipeline.Params {
	return pipeline.Params{
		Risk: risk.Params{
			WindowDays:      cfg.ConflictWindowDays,
			GridCellDegrees: cfg.GridCellDegrees,
			Base:            cfg.RiskBase,
			EventWeight:     cfg.RiskEventWeight,
			FatalityWeight:  cfg.RiskFatalityWeight,
			EscalationDelta: cfg.EscalationDelta,
		},
		Fusion: fusion.Params{
			ConflictAvoidanceKm:  cfg.ConflictAvoidanceKm,
			ConflictStressFactor: cfg.ConflictStressFactor,
		},
		Change: change.Params{
			RapidMovementKmPerDay: cfg.RapidMovementKmPerDay,
			EscalationDelta:       cfg.EscalationDelta,
		},
	}
}
