// Package engine drives the generation record lifecycle: admission-gated
// creation, cached point reads, caller-side cancellation and retry, and the
// worker-facing completion and failure transitions with automatic re-queue of
// retryable failures.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediagen/internal/cache"
	"mediagen/internal/config"
	"mediagen/internal/domain"
	"mediagen/internal/domain/genparams"
	"mediagen/internal/retrypolicy"
)

// DefaultRetention is how long a non-permanent record stays available before
// the sweeper may expire it.
const DefaultRetention = 30 * 24 * time.Hour

// Engine is safe for concurrent use. Every write goes through the store's
// validate-and-check-transition gate and synchronously refreshes or drops the
// cache entry for the touched id.
type Engine struct {
	store     domain.RecordStore
	cache     *cache.RecordCache
	admission *Admission
	retry     *retrypolicy.Policy
	logger    zerolog.Logger

	now   func() time.Time
	newID func() string
}

func New(store domain.RecordStore, rc *cache.RecordCache, cfg config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		cache:     rc,
		admission: NewAdmission(store, cfg.Admission),
		retry: retrypolicy.New(retrypolicy.Options{
			BaseDelay:   cfg.Retry.BaseDelay(),
			MaxDelay:    cfg.Retry.MaxDelay(),
			Multiplier:  cfg.Retry.Multiplier,
			Jitter:      cfg.Retry.Jitter,
			MaxAttempts: cfg.RetryAttempts(),
		}),
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RetryPolicy exposes the engine's retry policy so the dispatcher can size
// watchdog deadlines and report budgets consistently.
func (e *Engine) RetryPolicy() *retrypolicy.Policy {
	return e.retry
}

// CreateRequest is a caller's ask for one piece of generated media.
type CreateRequest struct {
	JobID       string
	UserID      string
	ContentType domain.ContentType
	Priority    domain.Priority
	Params      genparams.Params
	Locale      string
	IsPermanent bool
}

// Create admits and persists a new PENDING record. Params are normalized with
// server defaults before validation, so the stored record is the full contract
// the worker will execute. Returns domain.ErrBackpressure when admission
// limits reject the request.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*domain.GenerationRecord, error) {
	if req.JobID == "" {
		return nil, &domain.ValidationError{Field: "jobId", Reason: "required"}
	}
	if req.UserID == "" {
		return nil, &domain.ValidationError{Field: "userId", Reason: "required"}
	}
	if !req.ContentType.Valid() {
		return nil, &domain.ValidationError{Field: "contentType", Reason: "unknown content type"}
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, &domain.ValidationError{Field: "priority", Reason: "unknown priority"}
	}

	params := req.Params
	params.Normalize(string(req.ContentType), req.Locale)
	if err := params.Validate(string(req.ContentType)); err != nil {
		return nil, &domain.ValidationError{Field: "params", Reason: err.Error()}
	}

	if err := e.admission.AdmitCreate(ctx, req.UserID); err != nil {
		return nil, err
	}

	now := e.now()
	rec := &domain.GenerationRecord{
		ID:          e.newID(),
		JobID:       req.JobID,
		UserID:      req.UserID,
		ContentType: req.ContentType,
		Status:      domain.StatusPending,
		Priority:    priority,
		Params:      params,
		IsPermanent: req.IsPermanent,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !req.IsPermanent {
		rec.ExpiresAt = domain.Some(now.Add(DefaultRetention))
	}

	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	e.cache.Put(rec)

	e.logger.Info().
		Str("record_id", rec.ID).
		Str("job_id", rec.JobID).
		Str("content_type", string(rec.ContentType)).
		Str("priority", string(rec.Priority)).
		Msg("generation record created")
	return rec, nil
}

// Get returns the record, serving point lookups from the cache when fresh.
func (e *Engine) Get(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	if rec := e.cache.Get(id); rec != nil {
		return rec, nil
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.cache.Put(rec)
	return rec, nil
}

// Query lists records matching q. Listings always read through to the store;
// only point lookups are cached.
func (e *Engine) Query(ctx context.Context, q domain.Query) (*domain.Page, error) {
	return e.store.Query(ctx, q)
}

// Delete removes the record and drops its cache entry.
func (e *Engine) Delete(ctx context.Context, id string) error {
	err := e.store.Delete(ctx, id)
	e.cache.Invalidate(id)
	if err != nil {
		return err
	}
	e.logger.Info().Str("record_id", id).Msg("generation record deleted")
	return nil
}
