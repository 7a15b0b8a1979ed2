package http

import (
	"net/http"
	"strconv"

	"tapkind/internal/leaderboard"
)

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	d, err := a.Service.Dashboard(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func windowParam(w http.ResponseWriter, r *http.Request) (leaderboard.Window, bool) {
	window, err := leaderboard.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "window must be all, month or week")
		return "", false
	}
	return window, true
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	window, ok := windowParam(w, r)
	if !ok {
		return
	}
	v, err := a.Service.LeaderboardFor(r.Context(), userID, window)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleExportLeaderboard(w http.ResponseWriter, r *http.Request) {
	window, ok := windowParam(w, r)
	if !ok {
		return
	}
	buf, name, err := a.Service.ExportLeaderboard(r.Context(), window)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (a *API) handleImpact(w http.ResponseWriter, r *http.Request) {
	impact, err := a.Service.Impact(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}
