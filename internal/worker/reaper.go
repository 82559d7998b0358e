package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/config"
	"mediagen/internal/domain"
	"mediagen/internal/engine"
	"mediagen/internal/errclass"
	"mediagen/internal/metrics"
)

// Reaper recovers records stuck in GENERATING. A worker that crashes or
// stalls never reports an outcome, so each sweep fails every record whose
// watchdog deadline has passed; the normal retry path takes it from there.
type Reaper struct {
	engine   *engine.Engine
	store    domain.RecordStore
	metrics  *metrics.Collector
	logger   zerolog.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewReaper(eng *engine.Engine, store domain.RecordStore, cfg config.WorkerConfig, mc *metrics.Collector, logger zerolog.Logger) *Reaper {
	return &Reaper{
		engine:   eng,
		store:    store,
		metrics:  mc,
		logger:   logger,
		interval: cfg.ReaperInterval(),
		batch:    cfg.RefreshBatch,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("reaper: started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if n, err := r.Sweep(ctx); err != nil {
			r.logger.Error().Err(err).Msg("reaper: sweep failed")
		} else if n > 0 {
			r.logger.Info().Int("reaped", n).Msg("reaper: recovered overdue records")
		}
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reaper: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep fails every GENERATING record whose deadline passed and reports how
// many it moved. The record's own version is the claim version here: if the
// worker reports its real outcome mid-sweep, one of the two writes loses the
// version race and is discarded.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	overdue, err := r.store.ListOverdueGenerating(ctx, r.now(), r.batch)
	if err != nil {
		return 0, fmt.Errorf("list overdue: %w", err)
	}

	reaped := 0
	for _, rec := range overdue {
		failure := errclass.ProviderFailure{Message: "generation timed out; watchdog deadline passed"}
		_, applied, err := r.engine.Fail(ctx, rec.ID, rec.Version, failure, 0)
		if err != nil {
			r.logger.Error().Err(err).Str("record_id", rec.ID).Msg("reaper: fail record")
			continue
		}
		if applied {
			reaped++
		}
	}
	r.metrics.RecordReaped(reaped)
	return reaped, nil
}
