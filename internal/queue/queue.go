// Package queue orders claim candidates for dispatch. Scoring combines the
// caller-assigned priority class, a small boost for cheap content types, and
// bounded age-based escalation so nothing starves. Scores are computed when a
// candidate enters the queue; the dispatcher rebuilds the queue on every
// refresh cycle, which re-ages everything, so drift between rebuilds stays
// under one poll interval.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"mediagen/internal/domain"
)

const (
	// DefaultAgeBoostPerMinute raises a waiting candidate's score each minute.
	DefaultAgeBoostPerMinute = 2.0
	// DefaultMaxAgeBoost caps escalation; one priority class is worth 100, so
	// a fully aged candidate outranks anything up to one class above it.
	DefaultMaxAgeBoost = 120.0
	// DefaultMaxTypeBoost is the largest head start a cheap content type gets.
	DefaultMaxTypeBoost = 40.0
)

// classWeights spaces the priority classes far enough apart that neither the
// type boost nor fresh age can cross a class on its own.
var classWeights = map[domain.Priority]float64{
	domain.PriorityLow:      0,
	domain.PriorityNormal:   100,
	domain.PriorityHigh:     200,
	domain.PriorityCritical: 300,
}

// Options tunes scoring. Zero fields use the defaults above.
type Options struct {
	AgeBoostPerMinute float64
	MaxAgeBoost       float64
	MaxTypeBoost      float64
}

func (o Options) withDefaults() Options {
	if o.AgeBoostPerMinute <= 0 {
		o.AgeBoostPerMinute = DefaultAgeBoostPerMinute
	}
	if o.MaxAgeBoost <= 0 {
		o.MaxAgeBoost = DefaultMaxAgeBoost
	}
	if o.MaxTypeBoost < 0 {
		o.MaxTypeBoost = 0
	} else if o.MaxTypeBoost == 0 {
		o.MaxTypeBoost = DefaultMaxTypeBoost
	}
	return o
}

// Score computes a candidate's effective priority at the given instant.
// Higher dispatches first.
func Score(c domain.ClaimCandidate, now time.Time, opts Options) float64 {
	opts = opts.withDefaults()

	score := classWeights[c.Priority]
	score += typeBoost(c.ContentType, opts.MaxTypeBoost)

	age := now.Sub(c.CreatedAt)
	if age > 0 {
		boost := opts.AgeBoostPerMinute * age.Minutes()
		if boost > opts.MaxAgeBoost {
			boost = opts.MaxAgeBoost
		}
		score += boost
	}
	return score
}

// typeBoost favors content types with short estimated durations: quick wins
// drain the queue. The most expensive known type gets zero.
func typeBoost(ct domain.ContentType, max float64) float64 {
	longest := time.Duration(0)
	for _, t := range domain.ContentTypes() {
		if d := domain.EstimatedDuration(t); d > longest {
			longest = d
		}
	}
	if longest <= 0 {
		return 0
	}
	est := domain.EstimatedDuration(ct)
	if est >= longest {
		return 0
	}
	return max * float64(longest-est) / float64(longest)
}

type item struct {
	cand  domain.ClaimCandidate
	score float64
	index int
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	if !h[i].cand.CreatedAt.Equal(h[j].cand.CreatedAt) {
		return h[i].cand.CreatedAt.Before(h[j].cand.CreatedAt)
	}
	return h[i].cand.ID < h[j].cand.ID
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// PriorityQueue is safe for concurrent use.
type PriorityQueue struct {
	mu    sync.Mutex
	ready itemHeap
	held  map[string]domain.ClaimCandidate // waiting for NextRetryAt
	byID  map[string]*item
	opts  Options
	now   func() time.Time
}

func New(opts Options) *PriorityQueue {
	return &PriorityQueue{
		held: make(map[string]domain.ClaimCandidate),
		byID: make(map[string]*item),
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// Push inserts or refreshes a candidate. Candidates whose NextRetryAt is still
// in the future are held back until PopReady observes the time passing.
func (q *PriorityQueue) Push(c domain.ClaimCandidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushLocked(c, q.now())
}

func (q *PriorityQueue) pushLocked(c domain.ClaimCandidate, now time.Time) {
	if old, ok := q.byID[c.ID]; ok {
		heap.Remove(&q.ready, old.index)
		delete(q.byID, c.ID)
	}
	delete(q.held, c.ID)

	if at, ok := c.NextRetryAt.Get(); ok && at.After(now) {
		q.held[c.ID] = c
		return
	}
	it := &item{cand: c, score: Score(c, now, q.opts)}
	heap.Push(&q.ready, it)
	q.byID[c.ID] = it
}

// Rebuild replaces the whole queue with the given candidates, rescoring
// everything against the current clock.
func (q *PriorityQueue) Rebuild(cands []domain.ClaimCandidate) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ready = q.ready[:0]
	q.held = make(map[string]domain.ClaimCandidate)
	q.byID = make(map[string]*item)

	now := q.now()
	for _, c := range cands {
		q.pushLocked(c, now)
	}
}

// PopReady returns the highest-scored candidate whose retry hold has passed.
// The second result is false when nothing is dispatchable.
func (q *PriorityQueue) PopReady() (domain.ClaimCandidate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for id, c := range q.held {
		if at, ok := c.NextRetryAt.Get(); !ok || !at.After(now) {
			delete(q.held, id)
			it := &item{cand: c, score: Score(c, now, q.opts)}
			heap.Push(&q.ready, it)
			q.byID[id] = it
		}
	}

	if q.ready.Len() == 0 {
		return domain.ClaimCandidate{}, false
	}
	it := heap.Pop(&q.ready).(*item)
	delete(q.byID, it.cand.ID)
	return it.cand, true
}

// Remove drops the candidate wherever it sits.
func (q *PriorityQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if it, ok := q.byID[id]; ok {
		heap.Remove(&q.ready, it.index)
		delete(q.byID, id)
		return true
	}
	if _, ok := q.held[id]; ok {
		delete(q.held, id)
		return true
	}
	return false
}

// Len counts queued candidates, held ones included.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len() + len(q.held)
}
