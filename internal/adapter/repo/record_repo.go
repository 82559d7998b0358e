// Package repo provides the durable and in-memory implementations of
// domain.RecordStore. Both run the same validate-and-check-transition gate
// before every write, so no caller can bypass the lifecycle rules.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// RecordStorePG implements domain.RecordStore on PostgreSQL through the
// SQLExecutor seam. Optimistic concurrency rides on the version column:
// conditional updates match the version the caller read, and a missed match
// separates into ErrNotFound or ErrVersionConflict by re-reading.
type RecordStorePG struct {
	sql infra.SQLExecutor
	now func() time.Time
}

// NewRecordStore creates a record store backed by PostgreSQL.
func NewRecordStore(sql infra.SQLExecutor) *RecordStorePG {
	return &RecordStorePG{sql: sql, now: time.Now}
}

// Create persists a new record after validating it.
func (s *RecordStorePG) Create(ctx context.Context, rec *domain.GenerationRecord) error {
	if err := domain.Validate(rec); err != nil {
		return err
	}

	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	details, err := detailsArg(rec.ErrorDetails)
	if err != nil {
		return err
	}

	_, err = s.sql.Exec(ctx, sqlinline.QInsertGenerationRecord,
		rec.ID,
		rec.JobID,
		rec.UserID,
		string(rec.ContentType),
		textArg(rec.GeneratedWith),
		string(rec.Status),
		string(rec.Priority),
		params,
		optArg(rec.FileURL),
		optArg(rec.FileSize),
		optArg(rec.MimeType),
		optArg(rec.Duration),
		optArg(rec.QualityScore),
		optArg(rec.ProcessingTimeMs),
		optArg(rec.ErrorMessage),
		details,
		rec.RetryCount,
		optArg(rec.NextRetryAt),
		optArg(rec.Deadline),
		rec.IsPermanent,
		optArg(rec.ExpiresAt),
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicate
		}
		return err
	}
	return nil
}

// Get returns the record or domain.ErrNotFound.
func (s *RecordStorePG) Get(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectGenerationRecordByID, id)
	rec, err := scanRecord(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Update merges upd onto the stored record, validates the result, checks the
// status transition, and writes conditionally on expectedVersion.
func (s *RecordStorePG) Update(ctx context.Context, id string, expectedVersion int64, upd domain.Update, preserve domain.FieldSet) (*domain.GenerationRecord, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
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

	details, err := detailsArg(merged.ErrorDetails)
	if err != nil {
		return nil, err
	}

	tag, err := s.sql.Exec(ctx, sqlinline.QUpdateGenerationRecord,
		id,
		expectedVersion,
		textArg(merged.GeneratedWith),
		string(merged.Status),
		optArg(merged.FileURL),
		optArg(merged.FileSize),
		optArg(merged.MimeType),
		optArg(merged.Duration),
		optArg(merged.QualityScore),
		optArg(merged.ProcessingTimeMs),
		optArg(merged.ErrorMessage),
		details,
		merged.RetryCount,
		optArg(merged.NextRetryAt),
		optArg(merged.Deadline),
		merged.Version,
		merged.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		// Lost the race: the row moved or vanished since our read.
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrVersionConflict
	}
	return merged, nil
}

// Delete removes the record. ErrNotFound when absent.
func (s *RecordStorePG) Delete(ctx context.Context, id string) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteGenerationRecord, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Query lists records matching q, newest first with keyset paging.
func (s *RecordStorePG) Query(ctx context.Context, q domain.Query) (*domain.Page, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var cursorCreated any
	var cursorID any
	if q.Cursor != "" {
		at, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		cursorCreated, cursorID = at, id
	}

	rows, err := s.sql.Query(ctx, sqlinline.QListGenerationRecords,
		q.JobID,
		q.UserID,
		string(q.Status),
		string(q.ContentType),
		timeArg(q.CreatedAfter),
		timeArg(q.CreatedBefore),
		q.IncludeExpired,
		s.now(),
		cursorCreated,
		cursorID,
		pageSize+1,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.GenerationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &domain.Page{Records: records}
	if len(records) > pageSize {
		page.Records = records[:pageSize]
		page.HasMore = true
		last := page.Records[pageSize-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// Claim atomically moves a PENDING record to GENERATING. The conditional
// update only matches records whose retry hold, if any, has elapsed.
func (s *RecordStorePG) Claim(ctx context.Context, id, provider string, deadline, now time.Time) (*domain.GenerationRecord, bool, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QClaimGenerationRecord, id, provider, deadline, now)
	rec, err := scanRecord(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

// ListClaimCandidates returns PENDING records in creation order.
func (s *RecordStorePG) ListClaimCandidates(ctx context.Context, limit int) ([]domain.ClaimCandidate, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListClaimCandidates, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClaimCandidate
	for rows.Next() {
		var (
			c           domain.ClaimCandidate
			nextRetryAt *time.Time
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.ContentType, &c.Priority, &c.CreatedAt, &nextRetryAt); err != nil {
			return nil, err
		}
		c.NextRetryAt = optionalFrom(nextRetryAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListOverdueGenerating returns GENERATING records past their deadline.
func (s *RecordStorePG) ListOverdueGenerating(ctx context.Context, now time.Time, limit int) ([]*domain.GenerationRecord, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListOverdueGenerating, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CountActive returns global GENERATING and PENDING counts.
func (s *RecordStorePG) CountActive(ctx context.Context) (domain.ActiveCounts, error) {
	var counts domain.ActiveCounts
	row := s.sql.QueryRow(ctx, sqlinline.QCountActiveGenerationRecords)
	if err := row.Scan(&counts.Generating, &counts.Pending); err != nil {
		return domain.ActiveCounts{}, err
	}
	return counts, nil
}

// CountActiveByUser returns the user's PENDING+GENERATING count.
func (s *RecordStorePG) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var n int
	row := s.sql.QueryRow(ctx, sqlinline.QCountActiveGenerationRecordsByUser, userID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountByStatus returns the whole population grouped by status.
func (s *RecordStorePG) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QCountGenerationRecordsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status domain.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// ExpireBatch transitions up to limit expirable records to EXPIRED.
func (s *RecordStorePG) ExpireBatch(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QExpireGenerationRecords, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFailedBefore returns FAILED records last written before cutoff.
func (s *RecordStorePG) ListFailedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.GenerationRecord, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListFailedGenerationRecordsBefore, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// DeleteMany removes the given ids, returning how many rows existed.
func (s *RecordStorePG) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteGenerationRecords, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

var _ domain.RecordStore = (*RecordStorePG)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row in the canonical column order shared by every
// record select.
func scanRecord(row rowScanner) (*domain.GenerationRecord, error) {
	var (
		rec           domain.GenerationRecord
		generatedWith *string
		params        []byte
		fileURL       *string
		fileSize      *int64
		mimeType      *string
		duration      *float64
		quality       *float64
		processingMs  *int64
		errMessage    *string
		errDetails    []byte
		nextRetryAt   *time.Time
		deadline      *time.Time
		expiresAt     *time.Time
	)

	err := row.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.UserID,
		&rec.ContentType,
		&generatedWith,
		&rec.Status,
		&rec.Priority,
		&params,
		&fileURL,
		&fileSize,
		&mimeType,
		&duration,
		&quality,
		&processingMs,
		&errMessage,
		&errDetails,
		&rec.RetryCount,
		&nextRetryAt,
		&deadline,
		&rec.IsPermanent,
		&expiresAt,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if generatedWith != nil {
		rec.GeneratedWith = *generatedWith
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &rec.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(errDetails) > 0 {
		var d domain.ErrorDetails
		if err := json.Unmarshal(errDetails, &d); err != nil {
			return nil, fmt.Errorf("decode error details: %w", err)
		}
		rec.ErrorDetails = domain.Some(d)
	}
	rec.FileURL = optionalFrom(fileURL)
	rec.FileSize = optionalFrom(fileSize)
	rec.MimeType = optionalFrom(mimeType)
	rec.Duration = optionalFrom(duration)
	rec.QualityScore = optionalFrom(quality)
	rec.ProcessingTimeMs = optionalFrom(processingMs)
	rec.ErrorMessage = optionalFrom(errMessage)
	rec.NextRetryAt = optionalFrom(nextRetryAt)
	rec.Deadline = optionalFrom(deadline)
	rec.ExpiresAt = optionalFrom(expiresAt)

	return &rec, nil
}

func collectRecords(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]*domain.GenerationRecord, error) {
	var out []*domain.GenerationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func optionalFrom[T any](p *T) domain.Optional[T] {
	if p == nil {
		return domain.None[T]()
	}
	return domain.Some(*p)
}

// optArg converts an optional to a SQL argument, nil when unset.
func optArg[T any](o domain.Optional[T]) any {
	if v, ok := o.Get(); ok {
		return v
	}
	return nil
}

// textArg maps "" to NULL for nullable text columns.
func textArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeArg maps the zero time to NULL so unset filters drop out of the query.
func timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func detailsArg(o domain.Optional[domain.ErrorDetails]) (any, error) {
	d, ok := o.Get()
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode error details: %w", err)
	}
	return raw, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
}

func decodeCursor(cursor string) (time.Time, string, error) {
	at, id, ok := strings.Cut(cursor, "|")
	if !ok || id == "" {
		return time.Time{}, "", &domain.ValidationError{Field: "cursor", Reason: "malformed cursor"}
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return time.Time{}, "", &domain.ValidationError{Field: "cursor", Reason: "malformed cursor"}
	}
	return ts, id, nil
}
