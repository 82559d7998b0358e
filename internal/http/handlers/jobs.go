package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
	"mediagen/internal/stats"
	"mediagen/internal/storage"
	"mediagen/pkg/zip"
)

const (
	jobPageSize = 200
	// maxJobPages bounds how much of one job a single request will read.
	maxJobPages = 25
)

// timeNow is stubbed in tests.
var timeNow = time.Now

func (a *App) JobStats(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "jobID")

	records, err := a.collectJobRecords(r.Context(), domain.Query{
		JobID:          jobID,
		UserID:         userID,
		IncludeExpired: true,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	if len(records) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no records")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"jobId":    jobID,
		"progress": stats.Progress(records),
		"summary":  stats.Reduce(records, timeNow(), stats.Options{}),
	})
}

// JobBundle streams every completed, still-available asset of the job as one
// zip download.
func (a *App) JobBundle(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "jobID")

	records, err := a.collectJobRecords(r.Context(), domain.Query{
		JobID:  jobID,
		UserID: userID,
		Status: domain.StatusCompleted,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}

	var assets []zip.Asset
	for i := range records {
		rec := &records[i]
		fileURL, has := rec.FileURL.Get()
		if !has {
			continue
		}
		key, ok := a.Files.KeyFromURL(fileURL)
		if !ok {
			continue
		}
		data, err := a.Files.Read(r.Context(), key)
		if err != nil {
			a.Logger.Warn().Err(err).Str("record_id", rec.ID).Msg("bundle: read asset")
			continue
		}
		mime, _ := rec.MimeType.Get()
		assets = append(assets, zip.Asset{
			Filename: bundleFilename(rec, mime),
			MIME:     mime,
			Data:     data,
			Modified: rec.UpdatedAt,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no downloadable assets")
		return
	}

	archive, err := zip.Archive(assets)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("bundle: archive")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func bundleFilename(rec *domain.GenerationRecord, mime string) string {
	short := rec.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s.%s", rec.ContentType, short, storage.ExtensionFor(mime))
}

// collectJobRecords pages through the caller's records for one job. The page
// cap keeps a single request from streaming an unbounded result set.
func (a *App) collectJobRecords(ctx context.Context, q domain.Query) ([]domain.GenerationRecord, error) {
	q.PageSize = jobPageSize

	var out []domain.GenerationRecord
	for page := 0; page < maxJobPages; page++ {
		res, err := a.Engine.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, rec := range res.Records {
			out = append(out, *rec)
		}
		if !res.HasMore {
			break
		}
		q.Cursor = res.NextCursor
	}
	return out, nil
}
