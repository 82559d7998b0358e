package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/breaker"
	"mediagen/internal/domain"
)

func seedRecord(id string, status domain.Status) *domain.GenerationRecord {
	created := time.Now().Add(-time.Hour)
	return &domain.GenerationRecord{
		ID:          id,
		JobID:       "job-1",
		UserID:      "user-1",
		ContentType: domain.ContentTypePodcastAudio,
		Status:      status,
		Priority:    domain.PriorityNormal,
		ExpiresAt:   domain.Some(time.Now().Add(24 * time.Hour)),
		Version:     1,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestCollectorsAreIsolated(t *testing.T) {
	// Each collector registers on its own registry, so two instances in one
	// process never trip duplicate registration and never share counts.
	a := New()
	b := New()

	a.RecordClaim()
	a.RecordClaim()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.claims))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.claims))
}

func TestLifecycleCounters(t *testing.T) {
	c := New()

	c.RecordCreated(domain.ContentTypePodcastAudio)
	c.RecordCreated(domain.ContentTypePodcastAudio)
	c.RecordCreated(domain.ContentTypeQRCode)
	c.RecordClaim()
	c.RecordCompletion(domain.ContentTypePodcastAudio, 42.5)
	c.RecordFailure(domain.ContentTypeQRCode, domain.ErrorCategoryTimeout)
	c.RecordFailure(domain.ContentTypeQRCode, domain.ErrorCategoryTimeout)
	c.RecordRequeue()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.created.WithLabelValues("podcast-audio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.created.WithLabelValues("qr-code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.claims))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completions.WithLabelValues("podcast-audio")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.failures.WithLabelValues("qr-code", "TIMEOUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requeues))
	assert.Equal(t, 1, testutil.CollectAndCount(c.genSeconds, "mediagen_generation_seconds"))
}

func TestSweepAndReapCounters(t *testing.T) {
	c := New()

	c.RecordReaped(3)
	c.RecordReaped(0)
	c.RecordSweep(5, 2)
	c.RecordSweep(0, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.reaped))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.expired))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.purged))
}

func TestGauges(t *testing.T) {
	c := New()

	c.SetQueueDepth(17)
	c.SetBreakerStates(map[string]breaker.State{
		"synth":  breaker.StateClosed,
		"remote": breaker.StateOpen,
		"flaky":  breaker.StateHalfOpen,
	})
	c.SetCacheStats(120, 30)

	assert.Equal(t, 17.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.breakerState.WithLabelValues("synth")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.breakerState.WithLabelValues("remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerState.WithLabelValues("flaky")))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.cacheHits))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.cacheMisses))
}

func TestObservePopulationTracksStore(t *testing.T) {
	ctx := context.Background()
	c := New()
	store := repo.NewRecordStoreMem()

	require.NoError(t, store.Create(ctx, seedRecord("66666666-0000-4000-8000-000000000001", domain.StatusPending)))
	require.NoError(t, store.Create(ctx, seedRecord("66666666-0000-4000-8000-000000000002", domain.StatusPending)))
	require.NoError(t, store.Create(ctx, seedRecord("66666666-0000-4000-8000-000000000003", domain.StatusCancelled)))

	require.NoError(t, c.ObservePopulation(ctx, store))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.records.WithLabelValues("PENDING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.records.WithLabelValues("CANCELLED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.records.WithLabelValues("GENERATING")))

	// A drained status must fall back to zero on the next observation, not
	// hold its last sampled value.
	require.NoError(t, store.Delete(ctx, "66666666-0000-4000-8000-000000000003"))
	require.NoError(t, c.ObservePopulation(ctx, store))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.records.WithLabelValues("CANCELLED")))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	c := New()
	c.RecordClaim()
	c.RecordCreated(domain.ContentTypeVideoIntro)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "mediagen_claims_total 1"), "claims counter missing from exposition:\n%s", body)
	assert.True(t, strings.Contains(body, `mediagen_records_created_total{content_type="video-intro"} 1`), "created counter missing from exposition:\n%s", body)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordCreated(domain.ContentTypePodcastAudio)
		c.RecordClaim()
		c.RecordCompletion(domain.ContentTypePodcastAudio, 1.0)
		c.RecordFailure(domain.ContentTypePodcastAudio, domain.ErrorCategoryTimeout)
		c.RecordRequeue()
		c.RecordReaped(1)
		c.RecordSweep(1, 1)
		c.SetQueueDepth(1)
		c.SetBreakerStates(map[string]breaker.State{"synth": breaker.StateOpen})
		c.SetCacheStats(1, 1)
	})

	// ObservePopulation must bail out before touching the store.
	assert.NoError(t, c.ObservePopulation(context.Background(), nil))
	assert.NotNil(t, c.Handler())
}
