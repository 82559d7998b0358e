package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"mediagen/internal/domain"
)

// RecordStoreMem is the in-memory domain.RecordStore. It backs engine and
// worker tests and runs the exact validation and transition gates the
// PostgreSQL store runs, so behavior verified against it holds in production.
type RecordStoreMem struct {
	mu      sync.RWMutex
	records map[string]*domain.GenerationRecord
	now     func() time.Time
}

// NewRecordStoreMem constructs an empty in-memory record store.
func NewRecordStoreMem() *RecordStoreMem {
	return &RecordStoreMem{
		records: make(map[string]*domain.GenerationRecord),
		now:     time.Now,
	}
}

// SetClock replaces the store's clock. Tests use it to pin updatedAt.
func (s *RecordStoreMem) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *RecordStoreMem) Create(_ context.Context, rec *domain.GenerationRecord) error {
	if err := domain.Validate(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return domain.ErrDuplicate
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *RecordStoreMem) Get(_ context.Context, id string) (*domain.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *RecordStoreMem) Update(_ context.Context, id string, expectedVersion int64, upd domain.Update, preserve domain.FieldSet) (*domain.GenerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}

	merged := domain.Merge(current, upd, preserve, s.now())
	if merged.Status != current.Status {
		if err := domain.CheckTransition(current.Status, merged.Status); err != nil {
			return nil, err
		}
	}
	if err := domain.Validate(merged); err != nil {
		return nil, err
	}

	s.records[id] = merged
	return merged.Clone(), nil
}

func (s *RecordStoreMem) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *RecordStoreMem) Query(_ context.Context, q domain.Query) (*domain.Page, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var cursorCreated time.Time
	var cursorID string
	if q.Cursor != "" {
		at, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		cursorCreated, cursorID = at, id
	}

	s.mu.RLock()
	now := s.now()
	var matched []*domain.GenerationRecord
	for _, rec := range s.records {
		if !matchesQuery(rec, q, now) {
			continue
		}
		matched = append(matched, rec.Clone())
	}
	s.mu.RUnlock()

	// Newest first, id breaks ties, matching the keyset order of the SQL store.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if q.Cursor != "" {
		cut := 0
		for cut < len(matched) {
			rec := matched[cut]
			if rec.CreatedAt.Before(cursorCreated) ||
				(rec.CreatedAt.Equal(cursorCreated) && rec.ID < cursorID) {
				break
			}
			cut++
		}
		matched = matched[cut:]
	}

	page := &domain.Page{}
	if len(matched) > pageSize {
		page.Records = matched[:pageSize]
		page.HasMore = true
		last := page.Records[pageSize-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	} else {
		page.Records = matched
	}
	return page, nil
}

func matchesQuery(rec *domain.GenerationRecord, q domain.Query, now time.Time) bool {
	if q.JobID != "" && rec.JobID != q.JobID {
		return false
	}
	if q.UserID != "" && rec.UserID != q.UserID {
		return false
	}
	if q.Status != "" && rec.Status != q.Status {
		return false
	}
	if q.ContentType != "" && rec.ContentType != q.ContentType {
		return false
	}
	if !q.CreatedAfter.IsZero() && rec.CreatedAt.Before(q.CreatedAfter) {
		return false
	}
	if !q.CreatedBefore.IsZero() && rec.CreatedAt.After(q.CreatedBefore) {
		return false
	}
	if !q.IncludeExpired {
		if rec.Status == domain.StatusExpired {
			return false
		}
		if !rec.IsPermanent {
			if expires, ok := rec.ExpiresAt.Get(); ok && !expires.After(now) {
				return false
			}
		}
	}
	return true
}

func (s *RecordStoreMem) Claim(_ context.Context, id, provider string, deadline, now time.Time) (*domain.GenerationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != domain.StatusPending {
		return nil, false, nil
	}
	if at, held := rec.NextRetryAt.Get(); held && at.After(now) {
		return nil, false, nil
	}

	claimed := rec.Clone()
	claimed.Status = domain.StatusGenerating
	claimed.GeneratedWith = provider
	claimed.Deadline = domain.Some(deadline)
	claimed.NextRetryAt = domain.None[time.Time]()
	claimed.Version = rec.Version + 1
	claimed.UpdatedAt = now

	s.records[id] = claimed
	return claimed.Clone(), true, nil
}

func (s *RecordStoreMem) ListClaimCandidates(_ context.Context, limit int) ([]domain.ClaimCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ClaimCandidate
	for _, rec := range s.records {
		if rec.Status != domain.StatusPending {
			continue
		}
		out = append(out, domain.ClaimCandidate{
			ID:          rec.ID,
			UserID:      rec.UserID,
			ContentType: rec.ContentType,
			Priority:    rec.Priority,
			CreatedAt:   rec.CreatedAt,
			NextRetryAt: rec.NextRetryAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RecordStoreMem) ListOverdueGenerating(_ context.Context, now time.Time, limit int) ([]*domain.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.GenerationRecord
	for _, rec := range s.records {
		if rec.Status != domain.StatusGenerating {
			continue
		}
		deadline, ok := rec.Deadline.Get()
		if !ok || deadline.After(now) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		di, _ := out[i].Deadline.Get()
		dj, _ := out[j].Deadline.Get()
		return di.Before(dj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RecordStoreMem) CountActive(_ context.Context) (domain.ActiveCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var counts domain.ActiveCounts
	for _, rec := range s.records {
		switch rec.Status {
		case domain.StatusGenerating:
			counts.Generating++
		case domain.StatusPending:
			counts.Pending++
		}
	}
	return counts, nil
}

func (s *RecordStoreMem) CountActiveByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if rec.Status == domain.StatusPending || rec.Status == domain.StatusGenerating {
			n++
		}
	}
	return n, nil
}

func (s *RecordStoreMem) CountByStatus(_ context.Context) (map[domain.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.Status]int)
	for _, rec := range s.records {
		out[rec.Status]++
	}
	return out, nil
}

func (s *RecordStoreMem) ExpireBatch(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expirable []*domain.GenerationRecord
	for _, rec := range s.records {
		if rec.Expirable(now) {
			expirable = append(expirable, rec)
		}
	}
	sort.Slice(expirable, func(i, j int) bool {
		ei, _ := expirable[i].ExpiresAt.Get()
		ej, _ := expirable[j].ExpiresAt.Get()
		return ei.Before(ej)
	})
	if limit > 0 && len(expirable) > limit {
		expirable = expirable[:limit]
	}

	ids := make([]string, 0, len(expirable))
	for _, rec := range expirable {
		expired := rec.Clone()
		expired.Status = domain.StatusExpired
		expired.FileURL = domain.None[string]()
		expired.FileSize = domain.None[int64]()
		expired.MimeType = domain.None[string]()
		expired.Duration = domain.None[float64]()
		expired.QualityScore = domain.None[float64]()
		expired.ErrorMessage = domain.None[string]()
		expired.ErrorDetails = domain.None[domain.ErrorDetails]()
		expired.NextRetryAt = domain.None[time.Time]()
		expired.Deadline = domain.None[time.Time]()
		expired.Version = rec.Version + 1
		expired.UpdatedAt = now
		s.records[rec.ID] = expired
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (s *RecordStoreMem) ListFailedBefore(_ context.Context, cutoff time.Time, limit int) ([]*domain.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.GenerationRecord
	for _, rec := range s.records {
		if rec.Status != domain.StatusFailed || rec.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RecordStoreMem) DeleteMany(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many records the store holds.
func (s *RecordStoreMem) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ domain.RecordStore = (*RecordStoreMem)(nil)
