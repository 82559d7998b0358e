// Package stats reduces generation records into job and platform summaries.
// Every function is a pure fold over the input slice so callers can aggregate
// a store page, a whole job, or a test fixture the same way.
package stats

import (
	"time"

	"mediagen/internal/domain"
)

// DefaultThroughputWindow is the lookback for the completions-per-minute rate.
const DefaultThroughputWindow = time.Hour

// Summary is the aggregate view over a set of generation records.
type Summary struct {
	Total         int                        `json:"total"`
	ByStatus      map[domain.Status]int      `json:"byStatus"`
	ByContentType map[domain.ContentType]int `json:"byContentType"`

	CompletedCost float64 `json:"completedCost"`
	PendingCost   float64 `json:"pendingCost"`
	TotalBytes    int64   `json:"totalBytes"`

	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
	AvgQualityScore     float64 `json:"avgQualityScore"`
	SuccessRate         float64 `json:"successRate"`

	CompletedInWindow    int     `json:"completedInWindow"`
	CompletionsPerMinute float64 `json:"completionsPerMinute"`
}

// Options tunes a reduction. The zero value uses DefaultThroughputWindow.
type Options struct {
	ThroughputWindow time.Duration
}

// Reduce folds records into a Summary. now anchors the throughput window.
func Reduce(records []domain.GenerationRecord, now time.Time, opts Options) Summary {
	window := opts.ThroughputWindow
	if window <= 0 {
		window = DefaultThroughputWindow
	}

	s := Summary{
		ByStatus:      make(map[domain.Status]int),
		ByContentType: make(map[domain.ContentType]int),
	}

	var (
		processingSum   int64
		processingCount int
		qualitySum      float64
		qualityCount    int
		completed       int
		failed          int
	)

	cutoff := now.Add(-window)
	for i := range records {
		r := &records[i]
		s.Total++
		s.ByStatus[r.Status]++
		s.ByContentType[r.ContentType]++

		switch r.Status {
		case domain.StatusCompleted:
			completed++
			s.CompletedCost += domain.BaseCost(r.ContentType)
			if ms, ok := r.ProcessingTimeMs.Get(); ok {
				processingSum += ms
				processingCount++
			}
			if size, ok := r.FileSize.Get(); ok {
				s.TotalBytes += size
			}
			if q, ok := r.QualityScore.Get(); ok {
				qualitySum += q
				qualityCount++
			}
			if r.UpdatedAt.After(cutoff) {
				s.CompletedInWindow++
			}
		case domain.StatusPending, domain.StatusGenerating:
			s.PendingCost += domain.BaseCost(r.ContentType)
		case domain.StatusFailed:
			failed++
		}
	}

	if processingCount > 0 {
		s.AvgProcessingTimeMs = float64(processingSum) / float64(processingCount)
	}
	if qualityCount > 0 {
		s.AvgQualityScore = qualitySum / float64(qualityCount)
	}
	// Cancelled and expired records express no outcome, so they sit outside
	// the success rate entirely.
	if completed+failed > 0 {
		s.SuccessRate = float64(completed) / float64(completed+failed)
	}
	s.CompletionsPerMinute = float64(s.CompletedInWindow) / window.Minutes()

	return s
}

// CostOf returns the estimated credit cost of one record by content type.
func CostOf(r *domain.GenerationRecord) float64 {
	return domain.BaseCost(r.ContentType)
}

// JobProgress condenses a job's records into the fraction of work finished.
// Terminal records count as done regardless of outcome.
type JobProgress struct {
	Done    int     `json:"done"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// Progress reports how much of a job's generation work has reached a
// terminal status.
func Progress(records []domain.GenerationRecord) JobProgress {
	p := JobProgress{Total: len(records)}
	for i := range records {
		if records[i].Status.Terminal() || records[i].Status == domain.StatusFailed {
			p.Done++
		}
	}
	if p.Total > 0 {
		p.Percent = 100 * float64(p.Done) / float64(p.Total)
	}
	return p
}
