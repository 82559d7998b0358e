package domain

import "time"

// Field names accepted by the sanitize preserve list. They match the record's
// JSON keys.
const (
	FieldFileURL          = "fileUrl"
	FieldFileSize         = "fileSize"
	FieldMimeType         = "mimeType"
	FieldDuration         = "duration"
	FieldQualityScore     = "qualityScore"
	FieldProcessingTimeMs = "processingTimeMs"
	FieldErrorMessage     = "errorMessage"
	FieldErrorDetails     = "errorDetails"
	FieldNextRetryAt      = "nextRetryAt"
	FieldDeadline         = "deadline"
)

// FieldSet is a set of record field names.
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet from field name constants.
func NewFieldSet(names ...string) FieldSet {
	s := make(FieldSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s FieldSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// DefaultPreserve is the stock allow-list for Merge: processing time survives
// a FAILED→PENDING re-queue so it accumulates across attempts.
func DefaultPreserve() FieldSet {
	return NewFieldSet(FieldProcessingTimeMs)
}

// Update is a partial mutation. Only set fields are applied; identity and
// creation-time fields (id, jobId, userId, contentType, params, isPermanent,
// expiresAt, createdAt) are immutable and deliberately not representable here.
type Update struct {
	Status           Optional[Status]
	GeneratedWith    Optional[string]
	FileURL          Optional[string]
	FileSize         Optional[int64]
	MimeType         Optional[string]
	Duration         Optional[float64]
	QualityScore     Optional[float64]
	ProcessingTimeMs Optional[int64]
	ErrorMessage     Optional[string]
	ErrorDetails     Optional[ErrorDetails]
	RetryCount       Optional[int]
	NextRetryAt      Optional[time.Time]
	Deadline         Optional[time.Time]
}

// Empty reports whether the update touches nothing.
func (u Update) Empty() bool {
	return u == Update{}
}

// Merge applies upd to a copy of rec: set fields overwrite, status-dependent
// leftovers from the previous status are cleared, updatedAt and version move
// forward. Fields named in preserve skip the clearing step; model invariants
// still apply to the result, so preserving a field the new status forbids
// makes the subsequent validation fail rather than silently keeping it.
// rec itself is never mutated.
func Merge(rec *GenerationRecord, upd Update, preserve FieldSet, now time.Time) *GenerationRecord {
	out := rec.Clone()

	if v, ok := upd.Status.Get(); ok {
		out.Status = v
	}
	if v, ok := upd.GeneratedWith.Get(); ok {
		out.GeneratedWith = v
	}
	if upd.FileURL.IsSet() {
		out.FileURL = upd.FileURL
	}
	if upd.FileSize.IsSet() {
		out.FileSize = upd.FileSize
	}
	if upd.MimeType.IsSet() {
		out.MimeType = upd.MimeType
	}
	if upd.Duration.IsSet() {
		out.Duration = upd.Duration
	}
	if upd.QualityScore.IsSet() {
		out.QualityScore = upd.QualityScore
	}
	if upd.ProcessingTimeMs.IsSet() {
		out.ProcessingTimeMs = upd.ProcessingTimeMs
	}
	if upd.ErrorMessage.IsSet() {
		out.ErrorMessage = upd.ErrorMessage
	}
	if upd.ErrorDetails.IsSet() {
		out.ErrorDetails = upd.ErrorDetails
	}
	if v, ok := upd.RetryCount.Get(); ok {
		out.RetryCount = v
	}
	if upd.NextRetryAt.IsSet() {
		out.NextRetryAt = upd.NextRetryAt
	}
	if upd.Deadline.IsSet() {
		out.Deadline = upd.Deadline
	}

	sanitize(out, upd, preserve)

	out.UpdatedAt = now
	out.Version = rec.Version + 1
	return out
}

// sanitize clears fields the merged status no longer supports, unless the
// update just set them (an explicit contradiction is validation's job) or the
// preserve list keeps them.
func sanitize(rec *GenerationRecord, upd Update, preserve FieldSet) {
	clear := func(set bool, field string, reset func()) {
		if set || preserve.Has(field) {
			return
		}
		reset()
	}

	if rec.Status != StatusCompleted {
		clear(upd.FileURL.IsSet(), FieldFileURL, func() { rec.FileURL = None[string]() })
		clear(upd.FileSize.IsSet(), FieldFileSize, func() { rec.FileSize = None[int64]() })
		clear(upd.MimeType.IsSet(), FieldMimeType, func() { rec.MimeType = None[string]() })
		clear(upd.Duration.IsSet(), FieldDuration, func() { rec.Duration = None[float64]() })
		clear(upd.QualityScore.IsSet(), FieldQualityScore, func() { rec.QualityScore = None[float64]() })
	}
	if rec.Status != StatusFailed {
		clear(upd.ErrorMessage.IsSet(), FieldErrorMessage, func() { rec.ErrorMessage = None[string]() })
		clear(upd.ErrorDetails.IsSet(), FieldErrorDetails, func() { rec.ErrorDetails = None[ErrorDetails]() })
	}
	if rec.Status != StatusGenerating {
		clear(upd.Deadline.IsSet(), FieldDeadline, func() { rec.Deadline = None[time.Time]() })
	}
	if rec.Status != StatusPending {
		clear(upd.NextRetryAt.IsSet(), FieldNextRetryAt, func() { rec.NextRetryAt = None[time.Time]() })
	}
	// A fresh PENDING attempt starts its clock at zero unless the caller keeps
	// the accumulated time via the preserve list.
	if rec.Status == StatusPending {
		clear(upd.ProcessingTimeMs.IsSet(), FieldProcessingTimeMs, func() { rec.ProcessingTimeMs = None[int64]() })
	}
}
