package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/cache"
	"mediagen/internal/config"
	"mediagen/internal/domain"
	"mediagen/internal/engine"
	"mediagen/internal/errclass"
	"mediagen/internal/metrics"
	"mediagen/internal/middleware"
	"mediagen/internal/storage"
)

const testUser = "user-1"

func newTestApp(t *testing.T, cfg config.Config) (*App, *repo.RecordStoreMem) {
	t.Helper()
	store := repo.NewRecordStoreMem()
	eng := engine.New(store, cache.New(time.Minute), cfg, zerolog.Nop())
	files, err := storage.NewFileStore(t.TempDir(), "http://files.test/assets")
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return NewApp(eng, store, files, metrics.New(), zerolog.Nop()), store
}

// authedRequest builds a request already carrying the test user's identity,
// skipping the JWT middleware that router tests cover.
func authedRequest(method, target string, body any) *http.Request {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	return req.WithContext(middleware.ContextWithUserID(req.Context(), testUser))
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	payload := decodeBody(t, rr)
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %#v", payload)
	}
	code, _ := errObj["code"].(string)
	return code
}

// createRecord seeds one PENDING record through the engine as testUser.
func createRecord(t *testing.T, a *App, jobID string, ct domain.ContentType) *domain.GenerationRecord {
	t.Helper()
	rec, err := a.Engine.Create(context.Background(), engine.CreateRequest{
		JobID:       jobID,
		UserID:      testUser,
		ContentType: ct,
	})
	if err != nil {
		t.Fatalf("seed create: %v", err)
	}
	return rec
}

// completeRecord walks a record through claim and completion, storing a real
// file so bundle and delete paths have something to read.
func completeRecord(t *testing.T, a *App, rec *domain.GenerationRecord, mime string, data []byte) *domain.GenerationRecord {
	t.Helper()
	ctx := context.Background()
	claimed, won, err := a.Store.Claim(ctx, rec.ID, "synth", time.Now().Add(3*time.Minute), time.Now())
	if err != nil || !won {
		t.Fatalf("claim %s: won=%v err=%v", rec.ID, won, err)
	}
	key := storage.AssetKey(rec.JobID, string(rec.ContentType), rec.ID, mime)
	storedKey, err := a.Files.Write(ctx, key, data)
	if err != nil {
		t.Fatalf("write asset: %v", err)
	}
	done, applied, err := a.Engine.Complete(ctx, rec.ID, claimed.Version, engine.Completion{
		FileURL:          a.Files.URL(storedKey),
		FileSize:         int64(len(data)),
		MimeType:         mime,
		ProcessingTimeMs: 1200,
	})
	if err != nil || !applied {
		t.Fatalf("complete %s: applied=%v err=%v", rec.ID, applied, err)
	}
	return done
}

// failRecord walks a record through claim and a non-retryable failure so it
// stays FAILED.
func failRecord(t *testing.T, a *App, rec *domain.GenerationRecord) *domain.GenerationRecord {
	t.Helper()
	ctx := context.Background()
	claimed, won, err := a.Store.Claim(ctx, rec.ID, "synth", time.Now().Add(3*time.Minute), time.Now())
	if err != nil || !won {
		t.Fatalf("claim %s: won=%v err=%v", rec.ID, won, err)
	}
	failed, applied, err := a.Engine.Fail(ctx, rec.ID, claimed.Version, errclass.ProviderFailure{
		Message: "missing required field",
		Code:    "400",
	}, 800)
	if err != nil || !applied {
		t.Fatalf("fail %s: applied=%v err=%v", rec.ID, applied, err)
	}
	if failed.Status != domain.StatusFailed {
		t.Fatalf("fail %s: status %s, want FAILED", rec.ID, failed.Status)
	}
	return failed
}
