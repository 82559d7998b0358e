package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/cache"
	"mediagen/internal/config"
	"mediagen/internal/db"
	"mediagen/internal/domain/genparams"
	"mediagen/internal/engine"
	"mediagen/internal/http/handlers"
	httpapi "mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/infra/geoip"
	"mediagen/internal/metrics"
	"mediagen/internal/middleware"
	"mediagen/internal/storage"
)

// populationSampleInterval controls how often the status-population and cache
// gauges are refreshed from the store.
const populationSampleInterval = 30 * time.Second

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger("api", cfg.AppEnv)

	engineCfg, err := config.Load(cfg.EngineConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid engine config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("api: schema bootstrap failed")
	}

	runner := infra.NewSQLRunner(pool, logger)
	store := repo.NewRecordStore(runner)
	rc := cache.New(engineCfg.Cache.TTL())
	eng := engine.New(store, rc, engineCfg, logger)
	collector := metrics.New()

	files, err := storage.NewFileStore(cfg.StorageDir, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	var country middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open geoip database")
	}
	if resolver != nil {
		defer resolver.Close()
		country = resolver.CountryCode
	}

	app := handlers.NewApp(eng, store, files, collector, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   genparams.DefaultLocale,
		Country:         country,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	go samplePopulation(ctx, collector, store, rc, logger)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}

// samplePopulation keeps the prometheus population and cache gauges current
// while the server runs.
func samplePopulation(ctx context.Context, collector *metrics.Collector, store *repo.RecordStorePG, rc *cache.RecordCache, logger infra.Logger) {
	ticker := time.NewTicker(populationSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := collector.ObservePopulation(ctx, store); err != nil {
				logger.Warn().Err(err).Msg("api: population sample failed")
			}
			collector.SetCacheStats(rc.Stats())
		}
	}
}
