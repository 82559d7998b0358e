package handlers

import (
	"net/http"
)

// PlatformStats reports a 24-hour aggregate across all users. Per-job figures
// live under /v1/jobs/{jobID}/stats.
func (a *App) PlatformStats(w http.ResponseWriter, r *http.Request) {
	summary, err := a.Engine.PlatformStats(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("platform stats")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, summary)
}
