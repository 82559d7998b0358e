package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/breaker"
	"mediagen/internal/cache"
	"mediagen/internal/config"
	"mediagen/internal/db"
	"mediagen/internal/domain"
	"mediagen/internal/engine"
	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
	"mediagen/internal/metrics"
	"mediagen/internal/providers"
	"mediagen/internal/providers/remote"
	"mediagen/internal/providers/synth"
	"mediagen/internal/storage"
	"mediagen/internal/worker"
)

// gaugeSampleInterval controls how often the population and cache gauges are
// refreshed. Queue depth and breaker states are updated by the dispatcher on
// every cycle and need no sampler.
const gaugeSampleInterval = 30 * time.Second

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger("worker", cfg.AppEnv)

	engineCfg, err := config.Load(cfg.EngineConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid engine config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema bootstrap failed")
	}

	runner := infra.NewSQLRunner(pool, logger)
	store := repo.NewRecordStore(runner)
	rc := cache.New(engineCfg.Cache.TTL())
	eng := engine.New(store, rc, engineCfg, logger)
	collector := metrics.New()

	files, err := storage.NewFileStore(cfg.StorageDir, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	registry, err := buildProviders(cfg, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure providers")
	}

	breakers := breaker.NewRegistry(breaker.Options{
		Window:           engineCfg.Breaker.Window(),
		FailureThreshold: engineCfg.Breaker.FailureThreshold,
		MinSamples:       engineCfg.Breaker.MinSamples,
		Cooldown:         engineCfg.Breaker.Cooldown(),
		HalfOpenTrials:   engineCfg.Breaker.HalfOpenTrials,
	})

	dispatcher := worker.NewDispatcher(eng, store, files, registry, breakers, engineCfg, collector, logger)
	reaper := worker.NewReaper(eng, store, engineCfg.Worker, collector, logger)
	metricsServer := infra.NewMetricsServer(cfg.MetricsPort, collector.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error {
		logger.Info().Msgf("worker: metrics listening on :%s", cfg.MetricsPort)
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sampleGauges(gctx, collector, store, rc, logger)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// buildProviders wires the generator registry for the configured mode. Synth
// renders every content type locally; remote proxies generation to the
// external service and resolves its API token through the credentials store,
// so rotations take effect without a restart.
func buildProviders(cfg *infra.Config, runner *infra.SQLRunner, logger infra.Logger) (*providers.Registry, error) {
	if cfg.ProviderMode == infra.ProviderModeRemote {
		client, err := remote.New(remote.Options{
			BaseURL: cfg.ProviderBaseURL,
			Tokens:  credentials.NewStore(runner),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return providers.NewRegistry(client), nil
	}
	return providers.NewRegistry(synth.New(synth.Options{})), nil
}

func sampleGauges(ctx context.Context, collector *metrics.Collector, store domain.RecordStore, rc *cache.RecordCache, logger infra.Logger) {
	ticker := time.NewTicker(gaugeSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := collector.ObservePopulation(ctx, store); err != nil {
				logger.Warn().Err(err).Msg("worker: population sample failed")
			}
			collector.SetCacheStats(rc.Stats())
		}
	}
}
