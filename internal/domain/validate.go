package domain

// Validate checks the record against the model invariants. It returns the
// first violation as a *ValidationError; stores call it before every write so
// an invalid record never reaches disk.
func Validate(r *GenerationRecord) error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if r.JobID == "" {
		return &ValidationError{Field: "jobId", Reason: "required"}
	}
	if r.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "required"}
	}
	if !r.ContentType.Valid() {
		return &ValidationError{Field: "contentType", Reason: "unknown content type"}
	}
	if !r.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status"}
	}
	if !r.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "createdAt", Reason: "required"}
	}
	if r.UpdatedAt.IsZero() {
		return &ValidationError{Field: "updatedAt", Reason: "required"}
	}
	if r.Version < 1 {
		return &ValidationError{Field: "version", Reason: "must be at least 1"}
	}
	if r.RetryCount < 0 {
		return &ValidationError{Field: "retryCount", Reason: "must not be negative"}
	}

	if err := validateCompletionFields(r); err != nil {
		return err
	}
	if err := validateFailureFields(r); err != nil {
		return err
	}
	if err := validateScheduleFields(r); err != nil {
		return err
	}
	return validateExpiry(r)
}

// validateCompletionFields enforces: fileUrl and fileSize present exactly on
// COMPLETED; the remaining result fields only there.
func validateCompletionFields(r *GenerationRecord) error {
	completed := r.Status == StatusCompleted
	if completed {
		url, ok := r.FileURL.Get()
		if !ok || url == "" {
			return &ValidationError{Field: "fileUrl", Reason: "required when status is COMPLETED"}
		}
		size, ok := r.FileSize.Get()
		if !ok {
			return &ValidationError{Field: "fileSize", Reason: "required when status is COMPLETED"}
		}
		if size <= 0 {
			return &ValidationError{Field: "fileSize", Reason: "must be positive"}
		}
		return nil
	}
	if r.FileURL.IsSet() {
		return &ValidationError{Field: "fileUrl", Reason: "only allowed when status is COMPLETED"}
	}
	if r.FileSize.IsSet() {
		return &ValidationError{Field: "fileSize", Reason: "only allowed when status is COMPLETED"}
	}
	if r.MimeType.IsSet() {
		return &ValidationError{Field: "mimeType", Reason: "only allowed when status is COMPLETED"}
	}
	if r.Duration.IsSet() {
		return &ValidationError{Field: "duration", Reason: "only allowed when status is COMPLETED"}
	}
	if r.QualityScore.IsSet() {
		return &ValidationError{Field: "qualityScore", Reason: "only allowed when status is COMPLETED"}
	}
	return nil
}

// validateFailureFields enforces: errorDetails present exactly on FAILED,
// errorMessage at most there, and the mirrored retry counter consistent.
func validateFailureFields(r *GenerationRecord) error {
	if r.Status == StatusFailed {
		details, ok := r.ErrorDetails.Get()
		if !ok {
			return &ValidationError{Field: "errorDetails", Reason: "required when status is FAILED"}
		}
		if !details.Category.Valid() {
			return &ValidationError{Field: "errorDetails.category", Reason: "unknown category"}
		}
		if details.UserAction == "" {
			return &ValidationError{Field: "errorDetails.userAction", Reason: "required"}
		}
		if details.RetryCount != r.RetryCount {
			return &ValidationError{Field: "errorDetails.retryCount", Reason: "must match the record's retry count"}
		}
		return nil
	}
	if r.ErrorDetails.IsSet() {
		return &ValidationError{Field: "errorDetails", Reason: "only allowed when status is FAILED"}
	}
	if r.ErrorMessage.IsSet() {
		return &ValidationError{Field: "errorMessage", Reason: "only allowed when status is FAILED"}
	}
	return nil
}

func validateScheduleFields(r *GenerationRecord) error {
	if r.Deadline.IsSet() && r.Status != StatusGenerating {
		return &ValidationError{Field: "deadline", Reason: "only allowed when status is GENERATING"}
	}
	if r.NextRetryAt.IsSet() && r.Status != StatusPending {
		return &ValidationError{Field: "nextRetryAt", Reason: "only allowed when status is PENDING"}
	}
	if v, ok := r.ProcessingTimeMs.Get(); ok && v < 0 {
		return &ValidationError{Field: "processingTimeMs", Reason: "must not be negative"}
	}
	return nil
}

func validateExpiry(r *GenerationRecord) error {
	if r.IsPermanent {
		if r.ExpiresAt.IsSet() {
			return &ValidationError{Field: "expiresAt", Reason: "permanent records never expire"}
		}
		return nil
	}
	if !r.ExpiresAt.IsSet() {
		return &ValidationError{Field: "expiresAt", Reason: "required for non-permanent records"}
	}
	return nil
}
