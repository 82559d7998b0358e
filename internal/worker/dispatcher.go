// Package worker runs the dispatch side of the generation lifecycle. A
// refresh loop keeps the in-memory priority queue in sync with PENDING
// records, a bounded pool of goroutines executes claimed work through the
// provider registry, and a reaper fails GENERATING records whose watchdog
// deadline has passed.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mediagen/internal/breaker"
	"mediagen/internal/config"
	"mediagen/internal/domain"
	"mediagen/internal/engine"
	"mediagen/internal/errclass"
	"mediagen/internal/metrics"
	"mediagen/internal/providers"
	"mediagen/internal/queue"
	"mediagen/internal/storage"
)

// Dispatcher claims ready candidates and drives them through generation.
type Dispatcher struct {
	engine   *engine.Engine
	store    domain.RecordStore
	files    *storage.FileStore
	registry *providers.Registry
	breakers *breaker.Registry
	queue    *queue.PriorityQueue
	cfg      config.WorkerConfig
	metrics  *metrics.Collector
	logger   zerolog.Logger
	now      func() time.Time
}

func NewDispatcher(
	eng *engine.Engine,
	store domain.RecordStore,
	files *storage.FileStore,
	registry *providers.Registry,
	breakers *breaker.Registry,
	cfg config.Config,
	mc *metrics.Collector,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		engine:   eng,
		store:    store,
		files:    files,
		registry: registry,
		breakers: breakers,
		queue: queue.New(queue.Options{
			AgeBoostPerMinute: cfg.Queue.AgeBoostPerMinute,
			MaxAgeBoost:       cfg.Queue.MaxAgeBoost,
			MaxTypeBoost:      cfg.Queue.MaxTypeBoost,
		}),
		cfg:     cfg.Worker,
		metrics: mc,
		logger:  logger,
		now:     time.Now,
	}
}

// QueueLen reports how many candidates the dispatcher currently holds.
func (d *Dispatcher) QueueLen() int {
	return d.queue.Len()
}

// Run drives dispatch cycles until ctx is canceled. Claimed records are
// handed to a pool of cfg.Worker.Count goroutines; Run returns after
// in-flight work has drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().
		Int("workers", d.cfg.Count).
		Dur("poll_interval", d.cfg.PollInterval()).
		Msg("dispatcher: started")

	work := make(chan *domain.GenerationRecord)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Count; i++ {
		g.Go(func() error {
			for rec := range work {
				d.execute(gctx, rec)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(work)
		ticker := time.NewTicker(d.cfg.PollInterval())
		defer ticker.Stop()
		for {
			claimed, err := d.dispatchOnce(gctx)
			if err != nil {
				d.logger.Error().Err(err).Msg("dispatcher: cycle failed")
			}
			for _, rec := range claimed {
				select {
				case work <- rec:
				case <-gctx.Done():
					return nil
				}
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	err := g.Wait()
	d.logger.Info().Msg("dispatcher: stopped")
	return err
}

// dispatchOnce refreshes the queue from the store and claims as many ready
// candidates as the global generating cap allows. Candidates whose provider
// breaker is open are skipped without a claim, so an outage never burns
// their retry budget.
func (d *Dispatcher) dispatchOnce(ctx context.Context) ([]*domain.GenerationRecord, error) {
	cands, err := d.store.ListClaimCandidates(ctx, d.cfg.RefreshBatch)
	if err != nil {
		return nil, fmt.Errorf("refresh candidates: %w", err)
	}
	d.queue.Rebuild(cands)

	budget, err := d.engine.Admission().DispatchBudget(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch budget: %w", err)
	}

	var claimed []*domain.GenerationRecord
	for budget > 0 {
		cand, ok := d.queue.PopReady()
		if !ok {
			break
		}
		gen := d.registry.For(cand.ContentType)
		// Readiness only; the trial budget of a half-open breaker is drawn
		// by invoke, once per actual provider call.
		if !d.breakers.For(gen.Name()).Ready() {
			continue
		}
		now := d.now()
		rec, won, err := d.store.Claim(ctx, cand.ID, gen.Name(), now.Add(d.claimTTL(cand.ContentType)), now)
		if err != nil {
			d.logger.Error().Err(err).Str("record_id", cand.ID).Msg("dispatcher: claim failed")
			continue
		}
		if !won {
			// Another process got there first.
			continue
		}
		d.logger.Debug().
			Str("record_id", rec.ID).
			Str("content_type", string(rec.ContentType)).
			Str("provider", gen.Name()).
			Msg("dispatcher: claimed")
		d.metrics.RecordClaim()
		claimed = append(claimed, rec)
		budget--
	}
	d.metrics.SetQueueDepth(d.queue.Len())
	d.metrics.SetBreakerStates(d.breakers.States())
	return claimed, nil
}

// claimTTL is the watchdog window granted to one generation attempt.
func (d *Dispatcher) claimTTL(ct domain.ContentType) time.Duration {
	ttl := time.Duration(float64(domain.EstimatedDuration(ct)) * d.cfg.DeadlineFactor)
	if floor := d.cfg.MinDeadline(); ttl < floor {
		ttl = floor
	}
	return ttl
}

// execute runs one claimed record through its provider and drives it to
// COMPLETED or FAILED. The claim version turns late outcomes into no-ops
// when anything else touched the record in the meantime.
func (d *Dispatcher) execute(ctx context.Context, rec *domain.GenerationRecord) {
	gen := d.registry.For(rec.ContentType)

	started := d.now()
	res, err := d.invoke(ctx, gen, rec)
	elapsed := d.now().Sub(started).Milliseconds()

	if err != nil {
		d.fail(ctx, rec, providers.Failure(err), elapsed)
		return
	}

	key, err := d.files.Write(ctx, storage.AssetKey(rec.JobID, string(rec.ContentType), rec.ID, res.MimeType), res.Data)
	if err != nil {
		// Storage trouble is on our side, not the provider's; it classifies as
		// a retryable internal error.
		d.fail(ctx, rec, errclass.ProviderFailure{Message: "persist asset: " + err.Error(), Err: err}, elapsed)
		return
	}

	completion := engine.Completion{
		FileURL:          d.files.URL(key),
		FileSize:         int64(len(res.Data)),
		MimeType:         res.MimeType,
		Duration:         res.Duration,
		QualityScore:     res.QualityScore,
		ProcessingTimeMs: elapsed,
	}
	_, applied, err := d.engine.Complete(ctx, rec.ID, rec.Version, completion)
	if err != nil {
		d.logger.Error().Err(err).Str("record_id", rec.ID).Msg("dispatcher: record completion")
		return
	}
	if applied {
		d.metrics.RecordCompletion(rec.ContentType, float64(elapsed)/1000)
	}
}

// fail records the outcome of a lost attempt and counts it, including the
// requeue when the retry budget sends the record back to PENDING.
func (d *Dispatcher) fail(ctx context.Context, rec *domain.GenerationRecord, failure errclass.ProviderFailure, elapsed int64) {
	final, applied, err := d.engine.Fail(ctx, rec.ID, rec.Version, failure, elapsed)
	if err != nil {
		d.logger.Error().Err(err).Str("record_id", rec.ID).Msg("dispatcher: record failure")
		return
	}
	if !applied {
		return
	}
	d.metrics.RecordFailure(rec.ContentType, errclass.Classify(failure).Category)
	if final.Status == domain.StatusPending {
		d.metrics.RecordRequeue()
	}
}

// invoke calls the provider under the breaker and a per-request timeout. The
// breaker can open between claim and invoke; that window fails fast with the
// same classification a refused remote call would get.
func (d *Dispatcher) invoke(ctx context.Context, gen providers.Generator, rec *domain.GenerationRecord) (*providers.Result, error) {
	br := d.breakers.For(gen.Name())
	if !br.Allow() {
		return nil, &providers.CallError{
			Provider: gen.Name(),
			Code:     "unavailable",
			Message:  "provider circuit open",
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.claimTTL(rec.ContentType))
	defer cancel()

	res, err := gen.Generate(callCtx, providers.Request{
		RecordID:    rec.ID,
		JobID:       rec.JobID,
		UserID:      rec.UserID,
		ContentType: rec.ContentType,
		Params:      rec.Params,
	})
	if err != nil {
		br.Failure()
		return nil, err
	}
	br.Success()
	return res, nil
}
