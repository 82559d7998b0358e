package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the record store answers. Load balancers route away
// from instances that return 503 here.
func (a *App) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := a.Store.CountActive(ctx); err != nil {
		a.error(w, http.StatusServiceUnavailable, "not_ready", "record store unavailable")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ready"})
}
