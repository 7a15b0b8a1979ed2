package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tapkind/internal/service"
)

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	profile, err := a.Service.GetProfile(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.ProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := a.Service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	profile, err := a.Service.PublicProfile(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleGetTipID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	code, err := a.Service.GetTipID(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

func (a *API) handleEnsureTipID(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	code, err := a.Service.EnsureTipID(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

type tipIDStateRequest struct {
	IsActive *bool `json:"is_active"`
}

func (a *API) handleSetTipIDActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req tipIDStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "is_active is required")
		return
	}
	code, err := a.Service.SetTipIDActive(r.Context(), userID, *req.IsActive)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

func (a *API) handleTipIDQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "size must be a positive integer")
			return
		}
		size = n
	}
	png, err := a.Service.TipIDQR(r.Context(), userID, size)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
