package domain

import (
	"errors"
	"testing"
)

func TestCanTransitionMatrix(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusPending, StatusGenerating},
		{StatusPending, StatusCancelled},
		{StatusPending, StatusFailed},
		{StatusPending, StatusExpired},
		{StatusGenerating, StatusCompleted},
		{StatusGenerating, StatusFailed},
		{StatusGenerating, StatusCancelled},
		{StatusGenerating, StatusExpired},
		{StatusFailed, StatusPending},
		{StatusFailed, StatusExpired},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	all := []Status{StatusPending, StatusGenerating, StatusCompleted, StatusFailed, StatusCancelled, StatusExpired}
	legalSet := map[[2]Status]bool{}
	for _, tc := range legal {
		legalSet[[2]Status{tc.from, tc.to}] = true
	}
	for _, from := range all {
		for _, to := range all {
			want := legalSet[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatusesAreSinks(t *testing.T) {
	all := []Status{StatusPending, StatusGenerating, StatusCompleted, StatusFailed, StatusCancelled, StatusExpired}
	for _, terminal := range []Status{StatusCompleted, StatusCancelled, StatusExpired} {
		if !terminal.Terminal() {
			t.Fatalf("%s.Terminal() = false, want true", terminal)
		}
		for _, to := range all {
			if CanTransition(terminal, to) {
				t.Errorf("CanTransition(%s, %s) = true, want false", terminal, to)
			}
		}
	}
}

func TestCheckTransitionError(t *testing.T) {
	err := CheckTransition(StatusCompleted, StatusPending)
	if err == nil {
		t.Fatal("CheckTransition(COMPLETED, PENDING) = nil, want error")
	}
	var te *IllegalTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *IllegalTransitionError", err)
	}
	if te.From != StatusCompleted || te.To != StatusPending {
		t.Fatalf("error = %v, want COMPLETED -> PENDING", te)
	}

	if err := CheckTransition(StatusPending, StatusGenerating); err != nil {
		t.Fatalf("CheckTransition(PENDING, GENERATING) = %v, want nil", err)
	}
}

func TestRetryEligible(t *testing.T) {
	rec := &GenerationRecord{
		Status:     StatusFailed,
		RetryCount: 1,
		ErrorDetails: Some(ErrorDetails{
			Category:    ErrorCategoryTimeout,
			RetryCount:  1,
			IsRetryable: true,
			UserAction:  "Please try again.",
		}),
	}
	if !rec.RetryEligible(3) {
		t.Fatal("RetryEligible(3) = false, want true")
	}
	if rec.RetryEligible(1) {
		t.Fatal("RetryEligible(1) = true, want false (budget exhausted)")
	}

	rec.ErrorDetails = Some(ErrorDetails{
		Category:    ErrorCategoryAuthentication,
		RetryCount:  1,
		IsRetryable: false,
		UserAction:  "Re-authenticate.",
	})
	if rec.RetryEligible(3) {
		t.Fatal("RetryEligible = true for non-retryable failure, want false")
	}

	rec.Status = StatusPending
	if rec.RetryEligible(3) {
		t.Fatal("RetryEligible = true for PENDING record, want false")
	}
}
