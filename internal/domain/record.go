package domain

import (
	"time"

	"mediagen/internal/domain/genparams"
)

// ContentType enumerates the kinds of media the platform generates.
type ContentType string

const (
	ContentTypePodcastAudio  ContentType = "podcast-audio"
	ContentTypeVideoIntro    ContentType = "video-intro"
	ContentTypePortfolioPDF  ContentType = "portfolio-pdf"
	ContentTypeQRCode        ContentType = "qr-code"
	ContentTypeHeadshotImage ContentType = "headshot-image"
)

// ContentTypes lists every supported content type in stable order.
func ContentTypes() []ContentType {
	return []ContentType{
		ContentTypePodcastAudio,
		ContentTypeVideoIntro,
		ContentTypePortfolioPDF,
		ContentTypeQRCode,
		ContentTypeHeadshotImage,
	}
}

func (c ContentType) Valid() bool {
	switch c {
	case ContentTypePodcastAudio, ContentTypeVideoIntro, ContentTypePortfolioPDF,
		ContentTypeQRCode, ContentTypeHeadshotImage:
		return true
	}
	return false
}

// Status enumerates record lifecycle states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusGenerating Status = "GENERATING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusExpired    Status = "EXPIRED"
)

// Statuses lists every lifecycle state in stable order.
func Statuses() []Status {
	return []Status{
		StatusPending,
		StatusGenerating,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
		StatusExpired,
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusCompleted, StatusFailed,
		StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave this status.
// FAILED is not terminal: a retryable failure with remaining budget may move
// back to PENDING.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Priority is the caller-assigned urgency of a generation request.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ErrorCategory classifies a provider failure for retry decisions and
// user-facing remediation.
type ErrorCategory string

const (
	ErrorCategoryQuotaExceeded       ErrorCategory = "QUOTA_EXCEEDED"
	ErrorCategoryInvalidInput        ErrorCategory = "INVALID_INPUT"
	ErrorCategoryServiceUnavailable  ErrorCategory = "SERVICE_UNAVAILABLE"
	ErrorCategoryTimeout             ErrorCategory = "TIMEOUT"
	ErrorCategoryAuthentication      ErrorCategory = "AUTHENTICATION"
	ErrorCategoryFileTooLarge        ErrorCategory = "FILE_TOO_LARGE"
	ErrorCategoryUnsupportedFormat   ErrorCategory = "UNSUPPORTED_FORMAT"
	ErrorCategoryInsufficientCredits ErrorCategory = "INSUFFICIENT_CREDITS"
	ErrorCategoryInternalError       ErrorCategory = "INTERNAL_ERROR"
)

func (c ErrorCategory) Valid() bool {
	switch c {
	case ErrorCategoryQuotaExceeded, ErrorCategoryInvalidInput,
		ErrorCategoryServiceUnavailable, ErrorCategoryTimeout,
		ErrorCategoryAuthentication, ErrorCategoryFileTooLarge,
		ErrorCategoryUnsupportedFormat, ErrorCategoryInsufficientCredits,
		ErrorCategoryInternalError:
		return true
	}
	return false
}

// ErrorDetails captures the classified outcome of a failed generation attempt.
// RetryCount mirrors the record's top-level counter at the moment of failure.
type ErrorDetails struct {
	Category         ErrorCategory `json:"category"`
	ServiceErrorCode string        `json:"serviceErrorCode,omitempty"`
	ServiceResponse  string        `json:"serviceResponse,omitempty"`
	RetryCount       int           `json:"retryCount"`
	IsRetryable      bool          `json:"isRetryable"`
	UserAction       string        `json:"userAction"`
}

// GenerationRecord tracks one requested piece of generated media through its
// whole life: queued, claimed by a worker, completed or failed, retried,
// cancelled, expired.
type GenerationRecord struct {
	ID            string           `json:"id"`
	JobID         string           `json:"jobId"`
	UserID        string           `json:"userId"`
	ContentType   ContentType      `json:"contentType"`
	GeneratedWith string           `json:"generatedWith,omitempty"`
	Status        Status           `json:"status"`
	Priority      Priority         `json:"priority"`
	Params        genparams.Params `json:"params"`

	// Populated only once COMPLETED.
	FileURL      Optional[string]  `json:"fileUrl,omitzero"`
	FileSize     Optional[int64]   `json:"fileSize,omitzero"`
	MimeType     Optional[string]  `json:"mimeType,omitzero"`
	Duration     Optional[float64] `json:"duration,omitzero"`
	QualityScore Optional[float64] `json:"qualityScore,omitzero"`

	ProcessingTimeMs Optional[int64] `json:"processingTimeMs,omitzero"`

	// Populated only on FAILED.
	ErrorMessage Optional[string]       `json:"errorMessage,omitzero"`
	ErrorDetails Optional[ErrorDetails] `json:"errorDetails,omitzero"`

	// RetryCount lives at the top level so it survives the FAILED→PENDING
	// re-queue that clears ErrorDetails.
	RetryCount  int                 `json:"retryCount"`
	NextRetryAt Optional[time.Time] `json:"nextRetryAt,omitzero"`

	// Deadline is the watchdog cutoff set while GENERATING; the reaper fails
	// any record still GENERATING past it.
	Deadline Optional[time.Time] `json:"deadline,omitzero"`

	IsPermanent bool                `json:"isPermanent"`
	ExpiresAt   Optional[time.Time] `json:"expiresAt,omitzero"`

	// Version increments on every write; conditional updates compare it.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns an independent copy of the record.
func (r *GenerationRecord) Clone() *GenerationRecord {
	cp := *r
	return &cp
}

// RetryEligible reports whether a FAILED record may re-queue: the failure was
// classified retryable and the budget for its content type is not exhausted.
func (r *GenerationRecord) RetryEligible(maxAttempts int) bool {
	if r.Status != StatusFailed {
		return false
	}
	details, ok := r.ErrorDetails.Get()
	if !ok || !details.IsRetryable {
		return false
	}
	return r.RetryCount < maxAttempts
}

// Expirable reports whether the sweeper may expire the record at the given
// instant. Permanent records never expire; terminal records are closed.
func (r *GenerationRecord) Expirable(now time.Time) bool {
	if r.IsPermanent || r.Status.Terminal() {
		return false
	}
	expires, ok := r.ExpiresAt.Get()
	return ok && expires.Before(now)
}
