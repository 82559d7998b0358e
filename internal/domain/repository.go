package domain

import (
	"context"
	"time"
)

// Query filters a record listing. Zero-valued filters are ignored. Unless
// IncludeExpired is set, results exclude EXPIRED records and non-permanent
// records whose expiresAt has already passed, so "active" listings never show
// a record the sweeper merely has not reached yet.
type Query struct {
	JobID          string
	UserID         string
	Status         Status
	ContentType    ContentType
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	IncludeExpired bool
	PageSize       int
	Cursor         string
}

// Page is one slice of query results with keyset paging state.
type Page struct {
	Records    []*GenerationRecord
	NextCursor string
	HasMore    bool
}

// ActiveCounts are the admission controller's inputs.
type ActiveCounts struct {
	Generating int
	Pending    int
}

// ClaimCandidate is the slim projection of a PENDING record the dispatcher
// feeds into the priority queue.
type ClaimCandidate struct {
	ID          string
	UserID      string
	ContentType ContentType
	Priority    Priority
	CreatedAt   time.Time
	NextRetryAt Optional[time.Time]
}

// RecordStore is the contract every durable store satisfies. Implementations
// validate before writing, honor optimistic concurrency on Update, and keep
// Claim an atomic PENDING→GENERATING compare-and-swap.
type RecordStore interface {
	// Create persists a new record. ErrDuplicate on id collision.
	Create(ctx context.Context, rec *GenerationRecord) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*GenerationRecord, error)

	// Update merges upd onto the current record (see Merge), re-validates and
	// writes, conditional on the stored version still being expectedVersion.
	// Returns the updated record, or ErrNotFound, ErrVersionConflict, or a
	// *ValidationError with the store unchanged.
	Update(ctx context.Context, id string, expectedVersion int64, upd Update, preserve FieldSet) (*GenerationRecord, error)

	// Delete removes the record. ErrNotFound when absent.
	Delete(ctx context.Context, id string) error

	// Query lists records matching q, newest first.
	Query(ctx context.Context, q Query) (*Page, error)

	// Claim atomically moves a PENDING record to GENERATING, stamping the
	// provider and the watchdog deadline. The bool reports whether this
	// caller won the claim; losing is not an error.
	Claim(ctx context.Context, id, provider string, deadline, now time.Time) (*GenerationRecord, bool, error)

	// ListClaimCandidates returns PENDING records in creation order for the
	// dispatcher to score and enqueue.
	ListClaimCandidates(ctx context.Context, limit int) ([]ClaimCandidate, error)

	// ListOverdueGenerating returns GENERATING records whose watchdog deadline
	// has passed, oldest deadline first, for the reaper to fail.
	ListOverdueGenerating(ctx context.Context, now time.Time, limit int) ([]*GenerationRecord, error)

	// CountActive returns global GENERATING and PENDING counts.
	CountActive(ctx context.Context) (ActiveCounts, error)

	// CountActiveByUser returns the user's PENDING+GENERATING count.
	CountActiveByUser(ctx context.Context, userID string) (int, error)

	// CountByStatus returns the whole population grouped by status; statuses
	// with no records are absent from the map.
	CountByStatus(ctx context.Context) (map[Status]int, error)

	// ExpireBatch transitions up to limit expirable records (non-permanent,
	// past expiresAt, non-terminal status) to EXPIRED and returns their ids.
	ExpireBatch(ctx context.Context, now time.Time, limit int) ([]string, error)

	// ListFailedBefore returns FAILED records whose updatedAt is older than
	// cutoff, oldest first, for retention cleanup.
	ListFailedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*GenerationRecord, error)

	// DeleteMany removes the given ids, returning how many existed.
	DeleteMany(ctx context.Context, ids []string) (int, error)
}
