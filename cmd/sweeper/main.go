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
	"mediagen/internal/cache"
	"mediagen/internal/config"
	"mediagen/internal/db"
	"mediagen/internal/infra"
	"mediagen/internal/metrics"
	"mediagen/internal/sweeper"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger("sweeper", cfg.AppEnv)

	engineCfg, err := config.Load(cfg.EngineConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: invalid engine config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("sweeper: schema bootstrap failed")
	}

	runner := infra.NewSQLRunner(pool, logger)
	store := repo.NewRecordStore(runner)
	rc := cache.New(engineCfg.Cache.TTL())
	collector := metrics.New()

	sw := sweeper.New(store, rc, engineCfg, collector, logger)
	metricsServer := infra.NewMetricsServer(cfg.MetricsPort, collector.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sw.Run(gctx) })
	g.Go(func() error {
		logger.Info().Msgf("sweeper: metrics listening on :%s", cfg.MetricsPort)
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

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("sweeper: stopped with error")
	}
	logger.Info().Msg("sweeper: stopped")
}
