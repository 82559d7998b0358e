package engine

import (
	"context"
	"errors"

	"mediagen/internal/domain"
	"mediagen/internal/errclass"
)

// casAttempts bounds how often a caller-side mutation re-reads and retries
// after losing an optimistic-concurrency race.
const casAttempts = 3

// mutate runs a read-decide-write loop: decide inspects the current record and
// returns the partial update to apply, or an empty update to leave it alone.
// Lost races re-enter decide against the fresh record.
func (e *Engine) mutate(ctx context.Context, id string, decide func(rec *domain.GenerationRecord) (domain.Update, domain.FieldSet, error)) (*domain.GenerationRecord, error) {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		upd, preserve, err := decide(current)
		if err != nil {
			return nil, err
		}
		if upd.Empty() {
			return current, nil
		}
		updated, err := e.store.Update(ctx, id, current.Version, upd, preserve)
		if err == nil {
			e.cache.Put(updated)
			return updated, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Cancel moves a PENDING or GENERATING record to CANCELLED. Cancelling an
// already-CANCELLED record is a no-op; any other terminal state rejects with
// IllegalTransitionError. For a GENERATING record the in-flight provider call
// is not stopped; its eventual outcome loses the version race and is
// discarded.
func (e *Engine) Cancel(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	rec, err := e.mutate(ctx, id, func(rec *domain.GenerationRecord) (domain.Update, domain.FieldSet, error) {
		if rec.Status == domain.StatusCancelled {
			return domain.Update{}, nil, nil
		}
		if err := domain.CheckTransition(rec.Status, domain.StatusCancelled); err != nil {
			return domain.Update{}, nil, err
		}
		return domain.Update{Status: domain.Some(domain.StatusCancelled)}, domain.DefaultPreserve(), nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("record_id", id).Msg("generation record cancelled")
	return rec, nil
}

// Retry re-queues a FAILED record on explicit caller request. The same
// eligibility gate as automatic re-queue applies: the failure must have been
// classified retryable and budget must remain. The record re-enters the queue
// immediately, without the backoff hold of an automatic retry.
func (e *Engine) Retry(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	rec, err := e.mutate(ctx, id, func(rec *domain.GenerationRecord) (domain.Update, domain.FieldSet, error) {
		if rec.Status != domain.StatusFailed || !e.retry.Allow(rec) {
			return domain.Update{}, nil, &domain.IllegalTransitionError{From: rec.Status, To: domain.StatusPending}
		}
		upd := domain.Update{
			Status:     domain.Some(domain.StatusPending),
			RetryCount: domain.Some(rec.RetryCount + 1),
		}
		return upd, domain.DefaultPreserve(), nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("record_id", id).
		Int("retry_count", rec.RetryCount).
		Msg("generation record re-queued by caller")
	return rec, nil
}

// Completion carries the provider payload for a successful generation.
type Completion struct {
	FileURL          string
	FileSize         int64
	MimeType         string
	Duration         float64
	QualityScore     float64
	ProcessingTimeMs int64
}

// Complete applies a successful provider outcome to the record the worker
// claimed. claimVersion is the version returned by the claim; if the record
// has moved since (cancelled, reaped, re-queued), the outcome is discarded and
// the second result is false. A terminal status is never overwritten.
func (e *Engine) Complete(ctx context.Context, id string, claimVersion int64, c Completion) (*domain.GenerationRecord, bool, error) {
	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Version != claimVersion {
		e.logger.Info().Str("record_id", id).Msg("late completion discarded")
		return current, false, nil
	}

	upd := domain.Update{
		Status:   domain.Some(domain.StatusCompleted),
		FileURL:  domain.Some(c.FileURL),
		FileSize: domain.Some(c.FileSize),
	}
	if c.MimeType != "" {
		upd.MimeType = domain.Some(c.MimeType)
	}
	if c.Duration > 0 {
		upd.Duration = domain.Some(c.Duration)
	}
	if c.QualityScore > 0 {
		upd.QualityScore = domain.Some(c.QualityScore)
	}
	if c.ProcessingTimeMs > 0 {
		upd.ProcessingTimeMs = domain.Some(c.ProcessingTimeMs)
	}

	updated, err := e.store.Update(ctx, id, claimVersion, upd, nil)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			e.logger.Info().Str("record_id", id).Msg("late completion discarded")
			rec, getErr := e.store.Get(ctx, id)
			if getErr != nil {
				return nil, false, getErr
			}
			return rec, false, nil
		}
		return nil, false, err
	}
	e.cache.Put(updated)

	e.logger.Info().
		Str("record_id", id).
		Str("content_type", string(updated.ContentType)).
		Int64("file_size", c.FileSize).
		Int64("processing_ms", c.ProcessingTimeMs).
		Msg("generation completed")
	return updated, true, nil
}

// Fail applies a failed provider outcome to the record the worker claimed,
// then re-queues it when the classification is retryable and budget remains.
// Like Complete, a stale claimVersion means the outcome is discarded. The
// returned record reflects the final state: FAILED, or PENDING after an
// automatic re-queue.
func (e *Engine) Fail(ctx context.Context, id string, claimVersion int64, f errclass.ProviderFailure, processingMs int64) (*domain.GenerationRecord, bool, error) {
	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Version != claimVersion {
		e.logger.Info().Str("record_id", id).Msg("late failure discarded")
		return current, false, nil
	}

	details := errclass.Details(f, current.RetryCount)
	upd := domain.Update{
		Status:       domain.Some(domain.StatusFailed),
		ErrorMessage: domain.Some(failureMessage(f)),
		ErrorDetails: domain.Some(details),
	}
	if processingMs > 0 {
		upd.ProcessingTimeMs = domain.Some(processingMs)
	}

	failed, err := e.store.Update(ctx, id, claimVersion, upd, domain.DefaultPreserve())
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			e.logger.Info().Str("record_id", id).Msg("late failure discarded")
			rec, getErr := e.store.Get(ctx, id)
			if getErr != nil {
				return nil, false, getErr
			}
			return rec, false, nil
		}
		return nil, false, err
	}
	e.cache.Put(failed)

	e.logger.Warn().
		Str("record_id", id).
		Str("category", string(details.Category)).
		Bool("retryable", details.IsRetryable).
		Int("retry_count", failed.RetryCount).
		Msg("generation failed")

	if !e.retry.Allow(failed) {
		return failed, true, nil
	}
	requeued, err := e.requeue(ctx, id)
	if err != nil {
		// The FAILED write stands; the re-queue can be retried by the caller
		// or manually.
		e.logger.Error().Err(err).Str("record_id", id).Msg("automatic re-queue failed")
		return failed, true, nil
	}
	return requeued, true, nil
}

// requeue moves a FAILED record back to PENDING with an incremented retry
// counter and a backoff hold before the next dispatch.
func (e *Engine) requeue(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	rec, err := e.mutate(ctx, id, func(rec *domain.GenerationRecord) (domain.Update, domain.FieldSet, error) {
		if rec.Status != domain.StatusFailed || !e.retry.Allow(rec) {
			return domain.Update{}, nil, nil
		}
		upd := domain.Update{
			Status:      domain.Some(domain.StatusPending),
			RetryCount:  domain.Some(rec.RetryCount + 1),
			NextRetryAt: domain.Some(e.retry.NextRetryAt(e.now(), rec.RetryCount)),
		}
		return upd, domain.DefaultPreserve(), nil
	})
	if err != nil {
		return nil, err
	}
	if rec.Status == domain.StatusPending {
		if at, ok := rec.NextRetryAt.Get(); ok {
			e.logger.Info().
				Str("record_id", id).
				Int("retry_count", rec.RetryCount).
				Time("next_retry_at", at).
				Msg("generation re-queued")
		}
	}
	return rec, nil
}

func failureMessage(f errclass.ProviderFailure) string {
	if f.Message != "" {
		return f.Message
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return "generation failed"
}
