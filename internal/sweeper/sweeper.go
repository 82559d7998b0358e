// Package sweeper retires old generation records: non-permanent records past
// their expiry move to EXPIRED in bounded batches, and FAILED records past the
// retention window whose retry budget is spent are deleted outright. Every
// touched id is dropped from the record cache synchronously.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/cache"
	"mediagen/internal/config"
	"mediagen/internal/domain"
	"mediagen/internal/metrics"
)

// Report counts one sweep cycle's effects.
type Report struct {
	Expired int
	Purged  int
}

// Sweeper is the only component that writes EXPIRED.
type Sweeper struct {
	store    domain.RecordStore
	cache    *cache.RecordCache
	attempts map[domain.ContentType]int
	cfg      config.SweeperConfig
	metrics  *metrics.Collector
	logger   zerolog.Logger
	now      func() time.Time
}

func New(store domain.RecordStore, rc *cache.RecordCache, cfg config.Config, mc *metrics.Collector, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		cache:    rc,
		attempts: cfg.RetryAttempts(),
		cfg:      cfg.Sweeper,
		metrics:  mc,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps immediately and then on a fixed interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.Interval()).Msg("sweeper: started")
	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()
	for {
		if rep, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("sweeper: cycle failed")
		} else if rep.Expired > 0 || rep.Purged > 0 {
			s.logger.Info().
				Int("expired", rep.Expired).
				Int("purged", rep.Purged).
				Msg("sweeper: cycle done")
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce runs one full cycle: drain the expiration backlog batch by batch,
// then purge one batch of stale FAILED records.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	var rep Report

	// Expired records keep matching until the backlog is drained; each batch
	// bounds the size of one store transaction.
	for {
		ids, err := s.store.ExpireBatch(ctx, s.now(), s.cfg.BatchSize)
		if err != nil {
			return rep, fmt.Errorf("expire batch: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		s.cache.InvalidateMany(ids)
		rep.Expired += len(ids)
		if len(ids) < s.cfg.BatchSize {
			break
		}
	}

	purged, err := s.purgeStaleFailed(ctx)
	rep.Purged = purged
	s.metrics.RecordSweep(rep.Expired, rep.Purged)
	if err != nil {
		return rep, err
	}
	return rep, nil
}

// purgeStaleFailed deletes one batch of FAILED records older than the
// retention window. Records still inside their retry budget are left alone; a
// caller may yet revive them manually.
func (s *Sweeper) purgeStaleFailed(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.FailedRetention())
	stale, err := s.store.ListFailedBefore(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale failed: %w", err)
	}

	var ids []string
	for _, rec := range stale {
		if rec.RetryEligible(s.attempts[rec.ContentType]) {
			continue
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := s.store.DeleteMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("purge stale failed: %w", err)
	}
	s.cache.InvalidateMany(ids)
	return n, nil
}
