// Package errclass turns raw provider failures into stable error categories:
// what went wrong, whether resubmission can help, and what the end user should
// be told. Workers consult it on every failed generation attempt.
package errclass

import (
	"context"
	"errors"
	"net"
	"strings"

	"mediagen/internal/domain"
)

// ProviderFailure is the raw outcome of a failed provider call. Message is
// always present; Code and RawResponse carry whatever the provider returned;
// Err is set when the failure came from the transport layer.
type ProviderFailure struct {
	Message     string
	Code        string
	RawResponse string
	Err         error
}

// Classification is the verdict the lifecycle engine acts on.
type Classification struct {
	Category    domain.ErrorCategory
	IsRetryable bool
	UserAction  string
}

// userActions are the fixed remediation strings shown to end users, one per
// category. Internal detail (raw responses, codes) never leaks into these.
var userActions = map[domain.ErrorCategory]string{
	domain.ErrorCategoryQuotaExceeded:       "Please try again later when your quota resets.",
	domain.ErrorCategoryInvalidInput:        "Please review the generation parameters and submit again.",
	domain.ErrorCategoryServiceUnavailable:  "The generation service is temporarily unavailable. We will retry automatically.",
	domain.ErrorCategoryTimeout:             "The generation took too long. We will retry automatically.",
	domain.ErrorCategoryAuthentication:      "Please reconnect your account and try again.",
	domain.ErrorCategoryFileTooLarge:        "Please upload a smaller source file and try again.",
	domain.ErrorCategoryUnsupportedFormat:   "Please convert the source file to a supported format and try again.",
	domain.ErrorCategoryInsufficientCredits: "Please top up your credits to continue generating.",
	domain.ErrorCategoryInternalError:       "Something went wrong on our side. We will retry automatically.",
}

// retryable marks the categories where resubmission can succeed without any
// caller action. Everything else needs the user to change something first.
var retryable = map[domain.ErrorCategory]bool{
	domain.ErrorCategoryServiceUnavailable: true,
	domain.ErrorCategoryTimeout:            true,
	domain.ErrorCategoryInternalError:      true,
}

// codeCategories maps well-known provider error codes (HTTP status strings
// and symbolic codes seen across providers) to categories. Checked before the
// free-text message.
var codeCategories = map[string]domain.ErrorCategory{
	"400":                 domain.ErrorCategoryInvalidInput,
	"invalid_request":     domain.ErrorCategoryInvalidInput,
	"invalid_argument":    domain.ErrorCategoryInvalidInput,
	"401":                 domain.ErrorCategoryAuthentication,
	"403":                 domain.ErrorCategoryAuthentication,
	"unauthenticated":     domain.ErrorCategoryAuthentication,
	"permission_denied":   domain.ErrorCategoryAuthentication,
	"invalid_api_key":     domain.ErrorCategoryAuthentication,
	"402":                 domain.ErrorCategoryInsufficientCredits,
	"insufficient_quota":  domain.ErrorCategoryInsufficientCredits,
	"413":                 domain.ErrorCategoryFileTooLarge,
	"payload_too_large":   domain.ErrorCategoryFileTooLarge,
	"415":                 domain.ErrorCategoryUnsupportedFormat,
	"unsupported_media":   domain.ErrorCategoryUnsupportedFormat,
	"429":                 domain.ErrorCategoryQuotaExceeded,
	"resource_exhausted":  domain.ErrorCategoryQuotaExceeded,
	"rate_limit_exceeded": domain.ErrorCategoryQuotaExceeded,
	"500":                 domain.ErrorCategoryInternalError,
	"internal":            domain.ErrorCategoryInternalError,
	"503":                 domain.ErrorCategoryServiceUnavailable,
	"unavailable":         domain.ErrorCategoryServiceUnavailable,
	"504":                 domain.ErrorCategoryTimeout,
	"deadline_exceeded":   domain.ErrorCategoryTimeout,
}

// messageRules are keyword checks over the lowercased failure message, most
// specific first. First hit wins.
var messageRules = []struct {
	keywords []string
	category domain.ErrorCategory
}{
	{[]string{"insufficient credit", "insufficient funds", "payment required", "billing"}, domain.ErrorCategoryInsufficientCredits},
	{[]string{"quota", "rate limit", "too many requests"}, domain.ErrorCategoryQuotaExceeded},
	{[]string{"timed out", "timeout", "deadline exceeded"}, domain.ErrorCategoryTimeout},
	{[]string{"unavailable", "overloaded", "connection refused", "connection reset", "no such host", "temporarily"}, domain.ErrorCategoryServiceUnavailable},
	{[]string{"unauthorized", "forbidden", "api key", "authentication", "token expired"}, domain.ErrorCategoryAuthentication},
	{[]string{"too large", "exceeds maximum size", "file size"}, domain.ErrorCategoryFileTooLarge},
	{[]string{"unsupported format", "unsupported media", "unknown format", "cannot decode"}, domain.ErrorCategoryUnsupportedFormat},
	{[]string{"invalid", "malformed", "bad request", "missing required"}, domain.ErrorCategoryInvalidInput},
}

// Classify maps a raw provider failure to a category, a retry verdict and the
// user-facing remediation. Transport errors are inspected first, then the
// provider code, then the message text; unknown failures land on
// INTERNAL_ERROR, which is retryable.
func Classify(f ProviderFailure) Classification {
	cat := classifyCategory(f)
	return Classification{
		Category:    cat,
		IsRetryable: retryable[cat],
		UserAction:  userActions[cat],
	}
}

// UserAction returns the fixed remediation string for a category.
func UserAction(cat domain.ErrorCategory) string {
	if s, ok := userActions[cat]; ok {
		return s
	}
	return userActions[domain.ErrorCategoryInternalError]
}

// Retryable reports whether the category permits automatic resubmission.
func Retryable(cat domain.ErrorCategory) bool {
	return retryable[cat]
}

// Details assembles the persistable ErrorDetails for a failure, mirroring the
// record's retry counter.
func Details(f ProviderFailure, retryCount int) domain.ErrorDetails {
	c := Classify(f)
	return domain.ErrorDetails{
		Category:         c.Category,
		ServiceErrorCode: f.Code,
		ServiceResponse:  truncate(f.RawResponse, 2048),
		RetryCount:       retryCount,
		IsRetryable:      c.IsRetryable,
		UserAction:       c.UserAction,
	}
}

func classifyCategory(f ProviderFailure) domain.ErrorCategory {
	if f.Err != nil {
		if errors.Is(f.Err, context.DeadlineExceeded) {
			return domain.ErrorCategoryTimeout
		}
		var netErr net.Error
		if errors.As(f.Err, &netErr) {
			if netErr.Timeout() {
				return domain.ErrorCategoryTimeout
			}
			return domain.ErrorCategoryServiceUnavailable
		}
	}
	if f.Code != "" {
		if cat, ok := codeCategories[strings.ToLower(strings.TrimSpace(f.Code))]; ok {
			return cat
		}
	}
	msg := strings.ToLower(f.Message)
	if f.Err != nil && msg == "" {
		msg = strings.ToLower(f.Err.Error())
	}
	for _, rule := range messageRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.category
			}
		}
	}
	return domain.ErrorCategoryInternalError
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
