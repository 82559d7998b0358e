package cache

import (
	"testing"
	"time"

	"mediagen/internal/domain"
)

func rec(id string) *domain.GenerationRecord {
	return &domain.GenerationRecord{
		ID:          id,
		JobID:       "job-1",
		UserID:      "user-1",
		ContentType: domain.ContentTypeQRCode,
		Status:      domain.StatusPending,
		Priority:    domain.PriorityNormal,
		Version:     1,
	}
}

func TestGetMissThenHit(t *testing.T) {
	c := New(time.Minute)
	if got := c.Get("a"); got != nil {
		t.Fatalf("Get on empty cache = %+v, want nil", got)
	}

	c.Put(rec("a"))
	got := c.Get("a")
	if got == nil || got.ID != "a" {
		t.Fatalf("Get after Put = %+v, want record a", got)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("Stats = (%d, %d), want (1, 1)", hits, misses)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	c := New(time.Minute)
	c.Put(rec("a"))

	first := c.Get("a")
	first.Status = domain.StatusFailed

	second := c.Get("a")
	if second.Status != domain.StatusPending {
		t.Fatalf("cached record mutated through a returned copy: status = %s", second.Status)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	c.Put(rec("a"))
	now = base.Add(59 * time.Second)
	if c.Get("a") == nil {
		t.Fatal("Get within TTL = nil, want hit")
	}

	now = base.Add(61 * time.Second)
	if got := c.Get("a"); got != nil {
		t.Fatalf("Get past TTL = %+v, want nil", got)
	}
	if c.Len() != 0 {
		t.Fatalf("Len after expired read = %d, want 0", c.Len())
	}
}

func TestTTLRestartsOnPut(t *testing.T) {
	c := New(time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	c.Put(rec("a"))
	now = base.Add(45 * time.Second)
	c.Put(rec("a"))
	now = base.Add(90 * time.Second)
	if c.Get("a") == nil {
		t.Fatal("Get = nil after refresh Put, want hit")
	}
}

func TestInvalidate(t *testing.T) {
	c := New(time.Minute)
	c.Put(rec("a"))
	c.Put(rec("b"))
	c.Put(rec("c"))

	c.Invalidate("a")
	if c.Get("a") != nil {
		t.Fatal("Get after Invalidate, want nil")
	}

	c.InvalidateMany([]string{"b", "c", "missing"})
	if c.Get("b") != nil || c.Get("c") != nil {
		t.Fatal("Get after InvalidateMany, want nil")
	}
}

func TestPutIgnoresNilAndEmptyID(t *testing.T) {
	c := New(time.Minute)
	c.Put(nil)
	c.Put(&domain.GenerationRecord{})
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}
