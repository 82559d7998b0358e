package engine

import (
	"context"
	"fmt"

	"mediagen/internal/config"
	"mediagen/internal/domain"
)

// Admission gates how much work the system takes on: a cap on queued PENDING
// records, a per-user cap on active (PENDING+GENERATING) records, and a global
// cap on concurrently GENERATING records that the dispatcher spends as a
// budget. Rejections surface immediately as domain.ErrBackpressure so callers
// shed load instead of queueing indefinitely.
type Admission struct {
	store domain.RecordStore
	cfg   config.AdmissionConfig
}

func NewAdmission(store domain.RecordStore, cfg config.AdmissionConfig) *Admission {
	return &Admission{store: store, cfg: cfg}
}

// AdmitCreate decides whether a new record for userID may enter the queue.
// The counts are read without a lock, so brief overshoot under concurrent
// creation is possible; the caps are load-shedding thresholds, not exact
// quotas.
func (a *Admission) AdmitCreate(ctx context.Context, userID string) error {
	counts, err := a.store.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("count active records: %w", err)
	}
	if a.cfg.MaxQueueDepth > 0 && counts.Pending >= a.cfg.MaxQueueDepth {
		return fmt.Errorf("%w: queue depth %d at limit %d", domain.ErrBackpressure, counts.Pending, a.cfg.MaxQueueDepth)
	}

	if a.cfg.MaxPerUser > 0 {
		n, err := a.store.CountActiveByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("count active records for user: %w", err)
		}
		if n >= a.cfg.MaxPerUser {
			return fmt.Errorf("%w: user has %d active generations, limit %d", domain.ErrBackpressure, n, a.cfg.MaxPerUser)
		}
	}
	return nil
}

// DispatchBudget reports how many more records may move to GENERATING right
// now: the global concurrency cap minus the records already in flight.
func (a *Admission) DispatchBudget(ctx context.Context) (int, error) {
	counts, err := a.store.CountActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("count active records: %w", err)
	}
	if a.cfg.MaxGenerating <= 0 {
		return 0, nil
	}
	budget := a.cfg.MaxGenerating - counts.Generating
	if budget < 0 {
		budget = 0
	}
	return budget, nil
}

// Admission returns the engine's admission controller for the dispatcher to
// share.
func (e *Engine) Admission() *Admission {
	return e.admission
}
