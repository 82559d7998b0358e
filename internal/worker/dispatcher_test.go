package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/breaker"
	"mediagen/internal/cache"
	"mediagen/internal/config"
	"mediagen/internal/domain"
	"mediagen/internal/engine"
	"mediagen/internal/providers"
	"mediagen/internal/providers/synth"
	"mediagen/internal/storage"
)

// stubGenerator lets a test script the provider outcome.
type stubGenerator struct {
	name  string
	res   *providers.Result
	err   error
	calls int
}

func (g *stubGenerator) Name() string { return g.name }

func (g *stubGenerator) Generate(_ context.Context, _ providers.Request) (*providers.Result, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.res, nil
}

type workerHarness struct {
	dispatcher *Dispatcher
	engine     *engine.Engine
	store      *repo.RecordStoreMem
	files      *storage.FileStore
	breakers   *breaker.Registry
}

func newHarness(t *testing.T, cfg config.Config, def providers.Generator) *workerHarness {
	t.Helper()
	store := repo.NewRecordStoreMem()
	eng := engine.New(store, cache.New(time.Minute), cfg, zerolog.Nop())
	files, err := storage.NewFileStore(t.TempDir(), "http://localhost:8080/assets")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	breakers := breaker.NewRegistry(breaker.Options{
		Window:           cfg.Breaker.Window(),
		FailureThreshold: cfg.Breaker.FailureThreshold,
		MinSamples:       cfg.Breaker.MinSamples,
		Cooldown:         cfg.Breaker.Cooldown(),
		HalfOpenTrials:   cfg.Breaker.HalfOpenTrials,
	})
	d := NewDispatcher(eng, store, files, providers.NewRegistry(def), breakers, cfg, nil, zerolog.Nop())
	return &workerHarness{dispatcher: d, engine: eng, store: store, files: files, breakers: breakers}
}

func createRecord(t *testing.T, h *workerHarness, ct domain.ContentType, userID string) *domain.GenerationRecord {
	t.Helper()
	req := engine.CreateRequest{JobID: "job-1", UserID: userID, ContentType: ct}
	switch ct {
	case domain.ContentTypeQRCode:
		req.Params.TargetURL = "https://cv.example.com/u/1"
	case domain.ContentTypeHeadshotImage:
		req.Params.SourceKey = "uploads/user-1/source.jpg"
	}
	rec, err := h.engine.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create(%s) returned error: %v", ct, err)
	}
	return rec
}

func TestDispatchOnceClaimsReadyWork(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.Default(), synth.New(synth.Options{}))
	rec := createRecord(t, h, domain.ContentTypePodcastAudio, "user-1")

	before := time.Now()
	claimed, err := h.dispatcher.dispatchOnce(ctx)
	after := time.Now()
	if err != nil {
		t.Fatalf("dispatchOnce returned error: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != rec.ID {
		t.Fatalf("claimed = %v, want the one pending record", claimed)
	}
	got := claimed[0]
	if got.Status != domain.StatusGenerating || got.Version != 2 {
		t.Fatalf("claimed record = %s v%d, want GENERATING v2", got.Status, got.Version)
	}
	if got.GeneratedWith != "synth" {
		t.Fatalf("GeneratedWith = %q, want synth", got.GeneratedWith)
	}

	// The watchdog deadline is the estimated duration scaled by the factor.
	ttl := h.dispatcher.claimTTL(domain.ContentTypePodcastAudio)
	deadline, ok := got.Deadline.Get()
	if !ok {
		t.Fatal("claim set no deadline")
	}
	if deadline.Before(before.Add(ttl)) || deadline.After(after.Add(ttl)) {
		t.Fatalf("Deadline = %v, want claim time + %v", deadline, ttl)
	}

	// Nothing pending anymore, so the next cycle claims nothing.
	again, err := h.dispatcher.dispatchOnce(ctx)
	if err != nil {
		t.Fatalf("dispatchOnce returned error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second cycle claimed %d records, want 0", len(again))
	}
}

func TestDispatchOnceHonorsGeneratingCap(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Admission.MaxGenerating = 1
	h := newHarness(t, cfg, synth.New(synth.Options{}))
	createRecord(t, h, domain.ContentTypePodcastAudio, "user-1")
	createRecord(t, h, domain.ContentTypePodcastAudio, "user-2")

	claimed, err := h.dispatcher.dispatchOnce(ctx)
	if err != nil {
		t.Fatalf("dispatchOnce returned error: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d records, want 1 with the cap at 1", len(claimed))
	}

	// The slot is taken; the second record has to wait.
	more, err := h.dispatcher.dispatchOnce(ctx)
	if err != nil {
		t.Fatalf("dispatchOnce returned error: %v", err)
	}
	if len(more) != 0 {
		t.Fatalf("claimed %d more records, want 0", len(more))
	}
}

func TestDispatchSkipsOpenBreakerWithoutClaiming(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Breaker.MinSamples = 1
	h := newHarness(t, cfg, synth.New(synth.Options{}))
	rec := createRecord(t, h, domain.ContentTypePodcastAudio, "user-1")

	// One failure is enough to open the breaker at MinSamples 1.
	h.breakers.For("synth").Failure()

	claimed, err := h.dispatcher.dispatchOnce(ctx)
	if err != nil {
		t.Fatalf("dispatchOnce returned error: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed %d records past an open breaker, want 0", len(claimed))
	}

	// The skip must not touch the record: no claim, no burned attempt.
	got, err := h.store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != domain.StatusPending || got.Version != 1 || got.RetryCount != 0 {
		t.Fatalf("skipped record = %s v%d retries %d, want untouched PENDING v1", got.Status, got.Version, got.RetryCount)
	}
}

func TestExecuteFailsFastWhenBreakerOpensAfterClaim(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Breaker.MinSamples = 1
	gen := &stubGenerator{name: "stub", res: &providers.Result{Data: []byte("x"), MimeType: "image/png"}}
	h := newHarness(t, cfg, gen)
	rec := createRecord(t, h, domain.ContentTypePodcastAudio, "user-1")

	claimed, err := h.dispatcher.dispatchOnce(ctx)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("dispatchOnce = (%d, %v), want 1 claim", len(claimed), err)
	}

	// The breaker opens between claim and invoke; the worker must not call
	// the provider and the record takes the unavailable path.
	h.breakers.For("stub").Failure()
	h.dispatcher.execute(ctx, claimed[0])

	if gen.calls != 0 {
		t.Fatalf("provider called %d times past an open breaker, want 0", gen.calls)
	}
	got, err := h.store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != domain.StatusPending || got.RetryCount != 1 {
		t.Fatalf("record = %s retries %d, want re-queued PENDING with 1 retry", got.Status, got.RetryCount)
	}
	if at, ok := got.NextRetryAt.Get(); !ok || !at.After(time.Now()) {
		t.Fatalf("NextRetryAt = %v, want a future backoff hold", got.NextRetryAt)
	}
}

func TestExecuteCompletesRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.Default(), synth.New(synth.Options{}))
	rec := createRecord(t, h, domain.ContentTypeQRCode, "user-1")

	claimed, err := h.dispatcher.dispatchOnce(ctx)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("dispatchOnce = (%d, %v), want 1 claim", len(claimed), err)
	}
	h.dispatcher.execute(ctx, claimed[0])

	got, err := h.store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", got.Status)
	}
	fileURL, ok := got.FileURL.Get()
	if !ok || !strings.HasPrefix(fileURL, "http://localhost:8080/assets/job-1/qr-code/") {
		t.Fatalf("FileURL = %v", got.FileURL)
	}
	if mime, _ := got.MimeType.Get(); mime != "image/png" {
		t.Fatalf("MimeType = %v, want image/png", got.MimeType)
	}
	if score, ok := got.QualityScore.Get(); !ok || score < 0.70 || score > 0.98 {
		t.Fatalf("QualityScore = %v", got.QualityScore)
	}

	// The asset is on disk under the key the URL maps back to.
	key, ok := h.files.KeyFromURL(fileURL)
	if !ok {
		t.Fatalf("KeyFromURL(%q) did not resolve", fileURL)
	}
	data, err := h.files.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read(%q) returned error: %v", key, err)
	}
	if size, _ := got.FileSize.Get(); size != int64(len(data)) {
		t.Fatalf("FileSize = %v, want %d", got.FileSize, len(data))
	}
}

func TestExecuteFailsRecordOnProviderError(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{name: "stub", err: &providers.CallError{
		Provider: "stub",
		Code:     "401",
		Message:  "bad api key",
	}}
	h := newHarness(t, config.Default(), gen)
	rec := createRecord(t, h, domain.ContentTypePodcastAudio, "user-1")

	claimed, err := h.dispatcher.dispatchOnce(ctx)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("dispatchOnce = (%d, %v), want 1 claim", len(claimed), err)
	}
	h.dispatcher.execute(ctx, claimed[0])

	// Authentication failures are permanent: FAILED, no re-queue.
	got, err := h.store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != domain.StatusFailed || got.RetryCount != 0 {
		t.Fatalf("record = %s retries %d, want FAILED with 0 retries", got.Status, got.RetryCount)
	}
	details, ok := got.ErrorDetails.Get()
	if !ok || details.Category != domain.ErrorCategoryAuthentication || details.IsRetryable {
		t.Fatalf("ErrorDetails = %+v", got.ErrorDetails)
	}
	if msg, _ := got.ErrorMessage.Get(); msg != "bad api key" {
		t.Fatalf("ErrorMessage = %v", got.ErrorMessage)
	}
}

func TestClaimTTLScalesWithContentType(t *testing.T) {
	h := newHarness(t, config.Default(), synth.New(synth.Options{}))

	// Podcast: 90s estimated, factor 3.
	if ttl := h.dispatcher.claimTTL(domain.ContentTypePodcastAudio); ttl != 270*time.Second {
		t.Fatalf("claimTTL(podcast-audio) = %v, want 270s", ttl)
	}
	// QR: 5s estimated scales to 15s, floored at the 60s minimum.
	if ttl := h.dispatcher.claimTTL(domain.ContentTypeQRCode); ttl != 60*time.Second {
		t.Fatalf("claimTTL(qr-code) = %v, want the 60s floor", ttl)
	}
}
