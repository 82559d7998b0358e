package stats

import (
	"math"
	"testing"
	"time"

	"mediagen/internal/domain"
)

var statsNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func completedRecord(ct domain.ContentType, age time.Duration) domain.GenerationRecord {
	r := domain.GenerationRecord{
		ID:          "rec-" + string(ct),
		JobID:       "job-1",
		UserID:      "user-1",
		ContentType: ct,
		Status:      domain.StatusCompleted,
		CreatedAt:   statsNow.Add(-age - time.Minute),
		UpdatedAt:   statsNow.Add(-age),
		Version:     2,
	}
	r.FileURL = domain.Some("https://cdn.example.com/out.bin")
	r.FileSize = domain.Some(int64(1024))
	r.ProcessingTimeMs = domain.Some(int64(4000))
	r.QualityScore = domain.Some(0.8)
	return r
}

func recordWithStatus(id string, st domain.Status) domain.GenerationRecord {
	return domain.GenerationRecord{
		ID:          id,
		JobID:       "job-1",
		UserID:      "user-1",
		ContentType: domain.ContentTypePodcastAudio,
		Status:      st,
		CreatedAt:   statsNow.Add(-time.Hour),
		UpdatedAt:   statsNow.Add(-time.Minute),
		Version:     1,
	}
}

func TestReduceEmpty(t *testing.T) {
	s := Reduce(nil, statsNow, Options{})
	if s.Total != 0 {
		t.Fatalf("Total = %d, want 0", s.Total)
	}
	if s.SuccessRate != 0 || s.AvgQualityScore != 0 || s.AvgProcessingTimeMs != 0 {
		t.Fatalf("averages over empty input = %+v, want zeros", s)
	}
}

func TestReduceCountsAndCost(t *testing.T) {
	records := []domain.GenerationRecord{
		completedRecord(domain.ContentTypeVideoIntro, time.Minute),   // 10 credits
		completedRecord(domain.ContentTypePodcastAudio, time.Minute), // 5 credits
		recordWithStatus("p1", domain.StatusPending),             // 5 pending
		recordWithStatus("g1", domain.StatusGenerating),          // 5 pending
		recordWithStatus("f1", domain.StatusFailed),
	}

	s := Reduce(records, statsNow, Options{})

	if s.Total != 5 {
		t.Fatalf("Total = %d, want 5", s.Total)
	}
	if got := s.ByStatus[domain.StatusCompleted]; got != 2 {
		t.Fatalf("ByStatus[completed] = %d, want 2", got)
	}
	if got := s.ByContentType[domain.ContentTypePodcastAudio]; got != 4 {
		t.Fatalf("ByContentType[podcast] = %d, want 4", got)
	}
	if s.CompletedCost != 15 {
		t.Fatalf("CompletedCost = %v, want 15", s.CompletedCost)
	}
	if s.PendingCost != 10 {
		t.Fatalf("PendingCost = %v, want 10", s.PendingCost)
	}
	if s.TotalBytes != 2048 {
		t.Fatalf("TotalBytes = %d, want 2048", s.TotalBytes)
	}
}

func TestReduceAverages(t *testing.T) {
	fast := completedRecord(domain.ContentTypeQRCode, time.Minute)
	fast.ProcessingTimeMs = domain.Some(int64(2000))
	fast.QualityScore = domain.Some(1.0)
	slow := completedRecord(domain.ContentTypeVideoIntro, time.Minute)
	slow.ProcessingTimeMs = domain.Some(int64(6000))
	slow.QualityScore = domain.Some(0.5)
	// A failed attempt carries processing time too, but only completed work
	// counts toward the average.
	lost := recordWithStatus("f1", domain.StatusFailed)
	lost.ProcessingTimeMs = domain.Some(int64(60000))

	s := Reduce([]domain.GenerationRecord{fast, slow, lost}, statsNow, Options{})

	if s.AvgProcessingTimeMs != 4000 {
		t.Fatalf("AvgProcessingTimeMs = %v, want 4000 over completed records only", s.AvgProcessingTimeMs)
	}
	if s.AvgQualityScore != 0.75 {
		t.Fatalf("AvgQualityScore = %v, want 0.75", s.AvgQualityScore)
	}
}

func TestReduceSuccessRate(t *testing.T) {
	records := []domain.GenerationRecord{
		completedRecord(domain.ContentTypeQRCode, time.Minute),
		completedRecord(domain.ContentTypeHeadshotImage, time.Minute),
		completedRecord(domain.ContentTypePortfolioPDF, time.Minute),
		recordWithStatus("f1", domain.StatusFailed),
		recordWithStatus("p1", domain.StatusPending),   // open, not counted
		recordWithStatus("c1", domain.StatusCancelled), // no outcome, not counted
		recordWithStatus("e1", domain.StatusExpired),   // no outcome, not counted
	}

	s := Reduce(records, statsNow, Options{})

	if s.SuccessRate != 0.75 {
		t.Fatalf("SuccessRate = %v, want 3 completed over 4 attempts", s.SuccessRate)
	}
}

func TestReduceThroughputWindow(t *testing.T) {
	records := []domain.GenerationRecord{
		completedRecord(domain.ContentTypeQRCode, time.Minute),
		completedRecord(domain.ContentTypePodcastAudio, 5*time.Minute),
		completedRecord(domain.ContentTypeVideoIntro, 2*time.Hour), // outside window
	}

	s := Reduce(records, statsNow, Options{ThroughputWindow: time.Hour})

	if s.CompletedInWindow != 2 {
		t.Fatalf("CompletedInWindow = %d, want 2", s.CompletedInWindow)
	}
	want := 2.0 / 60.0
	if math.Abs(s.CompletionsPerMinute-want) > 1e-9 {
		t.Fatalf("CompletionsPerMinute = %v, want %v", s.CompletionsPerMinute, want)
	}
}

func TestProgress(t *testing.T) {
	records := []domain.GenerationRecord{
		completedRecord(domain.ContentTypeQRCode, time.Minute),
		recordWithStatus("f1", domain.StatusFailed),
		recordWithStatus("c1", domain.StatusCancelled),
		recordWithStatus("p1", domain.StatusPending),
	}

	p := Progress(records)

	if p.Done != 3 || p.Total != 4 {
		t.Fatalf("Progress = %+v, want Done 3 Total 4", p)
	}
	if p.Percent != 75 {
		t.Fatalf("Percent = %v, want 75", p.Percent)
	}
}
