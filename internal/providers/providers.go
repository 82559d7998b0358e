// Package providers defines the contract between the dispatch pipeline and
// the systems that synthesize content. A Generator receives normalized
// generation parameters and returns raw asset bytes plus the metadata the
// record needs on completion; persistence and lifecycle transitions stay
// with the caller.
package providers

import (
	"context"
	"errors"
	"fmt"

	"mediagen/internal/domain"
	"mediagen/internal/domain/genparams"
	"mediagen/internal/errclass"
)

// Request is the normalized input handed to any generator.
type Request struct {
	RecordID    string
	JobID       string
	UserID      string
	ContentType domain.ContentType
	Params      genparams.Params
}

// Result is a generated asset plus the metadata persisted on completion.
// Duration is only meaningful for audio and video content.
type Result struct {
	Data         []byte
	MimeType     string
	Duration     float64
	QualityScore float64
}

// Generator is the contract implemented by all content providers.
type Generator interface {
	// Name identifies the provider in records, breakers and logs.
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
}

// CallError is a structured provider failure. Code and RawResponse feed the
// error classifier; Err is set when the failure came from the transport.
type CallError struct {
	Provider    string
	Code        string
	Message     string
	RawResponse string
	Err         error
}

func (e *CallError) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return e.Provider + ": call failed"
}

func (e *CallError) Unwrap() error { return e.Err }

// Failure converts a generator error into the classifier's input, keeping the
// structured detail when the error is a CallError.
func Failure(err error) errclass.ProviderFailure {
	var call *CallError
	if errors.As(err, &call) {
		return errclass.ProviderFailure{
			Message:     call.Message,
			Code:        call.Code,
			RawResponse: call.RawResponse,
			Err:         call.Err,
		}
	}
	return errclass.ProviderFailure{Message: err.Error(), Err: err}
}

// Registry resolves the generator serving each content type. Types without an
// explicit binding fall back to the default generator. Bind everything before
// dispatch starts; the registry is read-only after that.
type Registry struct {
	byType map[domain.ContentType]Generator
	def    Generator
}

func NewRegistry(def Generator) *Registry {
	return &Registry{
		byType: make(map[domain.ContentType]Generator),
		def:    def,
	}
}

// Bind routes a content type to a specific generator.
func (r *Registry) Bind(ct domain.ContentType, g Generator) {
	r.byType[ct] = g
}

// For returns the generator responsible for a content type.
func (r *Registry) For(ct domain.ContentType) Generator {
	if g, ok := r.byType[ct]; ok {
		return g
	}
	return r.def
}
