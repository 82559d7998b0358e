package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mediagen/internal/domain"
	"mediagen/internal/domain/genparams"
	"mediagen/internal/engine"
	"mediagen/internal/middleware"
)

type createGenerationRequest struct {
	JobID       string           `json:"jobId" validate:"required,max=128"`
	ContentType string           `json:"contentType" validate:"required,oneof=podcast-audio video-intro portfolio-pdf qr-code headshot-image"`
	Priority    string           `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH CRITICAL"`
	Params      genparams.Params `json:"params"`
	IsPermanent bool             `json:"isPermanent"`
}

// recordDTO is a generation record plus presentation-only fields.
type recordDTO struct {
	*domain.GenerationRecord
	ContentTypeLabel string `json:"contentTypeLabel"`
}

func newRecordDTO(rec *domain.GenerationRecord) recordDTO {
	return recordDTO{GenerationRecord: rec, ContentTypeLabel: contentTypeLabel(rec.ContentType)}
}

// contentTypeLabel renders a content type slug as a human heading,
// e.g. "podcast-audio" -> "Podcast Audio".
func contentTypeLabel(ct domain.ContentType) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(ct), "-", " "))
}

func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "validation_failed", validationMessage(err))
		return
	}

	rec, err := a.Engine.Create(r.Context(), engine.CreateRequest{
		JobID:       req.JobID,
		UserID:      userID,
		ContentType: domain.ContentType(req.ContentType),
		Priority:    domain.Priority(req.Priority),
		Params:      req.Params,
		Locale:      middleware.LocaleFromContext(r.Context()),
		IsPermanent: req.IsPermanent,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.Metrics.RecordCreated(rec.ContentType)
	a.json(w, http.StatusCreated, newRecordDTO(rec))
}

func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.ownedRecord(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, newRecordDTO(rec))
}

func (a *App) ListGenerations(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	q, err := parseListQuery(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	q.UserID = userID

	page, err := a.Engine.Query(r.Context(), q)
	if err != nil {
		a.domainError(w, err)
		return
	}
	items := make([]recordDTO, 0, len(page.Records))
	for _, rec := range page.Records {
		items = append(items, newRecordDTO(rec))
	}
	a.json(w, http.StatusOK, map[string]any{
		"items":      items,
		"nextCursor": page.NextCursor,
		"hasMore":    page.HasMore,
	})
}

func parseListQuery(r *http.Request) (domain.Query, error) {
	vals := r.URL.Query()
	q := domain.Query{
		JobID:  vals.Get("jobId"),
		Cursor: vals.Get("cursor"),
	}
	if s := vals.Get("status"); s != "" {
		status := domain.Status(s)
		if !status.Valid() {
			return domain.Query{}, errors.New("unknown status " + s)
		}
		q.Status = status
	}
	if s := vals.Get("contentType"); s != "" {
		ct := domain.ContentType(s)
		if !ct.Valid() {
			return domain.Query{}, errors.New("unknown content type " + s)
		}
		q.ContentType = ct
	}
	if s := vals.Get("createdAfter"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return domain.Query{}, errors.New("createdAfter: not an RFC 3339 timestamp")
		}
		q.CreatedAfter = t
	}
	if s := vals.Get("createdBefore"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return domain.Query{}, errors.New("createdBefore: not an RFC 3339 timestamp")
		}
		q.CreatedBefore = t
	}
	if s := vals.Get("pageSize"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return domain.Query{}, errors.New("pageSize: must be a positive integer")
		}
		q.PageSize = n
	}
	if s := vals.Get("includeExpired"); s == "true" || s == "1" {
		q.IncludeExpired = true
	}
	return q, nil
}

func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.ownedRecord(w, r)
	if !ok {
		return
	}
	cancelled, err := a.Engine.Cancel(r.Context(), rec.ID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, newRecordDTO(cancelled))
}

func (a *App) RetryGeneration(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.ownedRecord(w, r)
	if !ok {
		return
	}
	requeued, err := a.Engine.Retry(r.Context(), rec.ID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, newRecordDTO(requeued))
}

func (a *App) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.ownedRecord(w, r)
	if !ok {
		return
	}
	if fileURL, has := rec.FileURL.Get(); has {
		if key, ok := a.Files.KeyFromURL(fileURL); ok {
			if err := a.Files.Remove(r.Context(), key); err != nil {
				a.Logger.Warn().Err(err).Str("record_id", rec.ID).Msg("remove stored file")
			}
		}
	}
	if err := a.Engine.Delete(r.Context(), rec.ID); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedRecord loads the record in the id route parameter and enforces that it
// belongs to the caller. Foreign records read as not found so record ids leak
// nothing across users.
func (a *App) ownedRecord(w http.ResponseWriter, r *http.Request) (*domain.GenerationRecord, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	rec, err := a.Engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return nil, false
	}
	if rec.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "record not found")
		return nil, false
	}
	return rec, true
}
