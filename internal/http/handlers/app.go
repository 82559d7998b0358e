// Package handlers implements the HTTP API over the generation engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/engine"
	"mediagen/internal/metrics"
	"mediagen/internal/middleware"
	"mediagen/internal/storage"
)

// App bundles the dependencies every handler needs.
type App struct {
	Engine   *engine.Engine
	Store    domain.RecordStore
	Files    *storage.FileStore
	Metrics  *metrics.Collector
	Logger   zerolog.Logger
	Validate *validator.Validate
}

func NewApp(eng *engine.Engine, store domain.RecordStore, files *storage.FileStore, mc *metrics.Collector, logger zerolog.Logger) *App {
	return &App{
		Engine:   eng,
		Store:    store,
		Files:    files,
		Metrics:  mc,
		Logger:   logger,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// domainError maps engine and store errors onto HTTP responses. Records owned
// by other users are reported as not found upstream of this mapping, so no
// ownership case appears here.
func (a *App) domainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var te *domain.IllegalTransitionError
	switch {
	case errors.As(err, &ve):
		a.error(w, http.StatusBadRequest, "validation_failed", ve.Error())
	case errors.As(err, &te):
		a.error(w, http.StatusConflict, "illegal_transition", te.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "record not found")
	case errors.Is(err, domain.ErrDuplicate):
		a.error(w, http.StatusConflict, "duplicate", "record id already exists")
	case errors.Is(err, domain.ErrBackpressure):
		a.error(w, http.StatusTooManyRequests, "backpressure", "system at capacity, try again later")
	case errors.Is(err, domain.ErrVersionConflict):
		a.error(w, http.StatusConflict, "version_conflict", "record changed since read")
	default:
		a.Logger.Error().Err(err).Msg("unhandled api error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// validationMessage renders the first violated rule of a decoded payload.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fe.Field() + ": failed " + fe.Tag() + "=" + fe.Param()
		}
		return fe.Field() + ": failed " + fe.Tag()
	}
	return "invalid payload"
}
