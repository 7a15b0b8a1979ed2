package http

import (
	"net/http"

	"tapkind/internal/auth"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.Service.Health(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.Service.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tokens, err := a.Service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tokens, err := a.Service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := a.Service.SignOut(r.Context(), claims, req.RefreshToken); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConfirmEmail serves both the emailed link (GET ?token=) and the JSON form.
func (a *API) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if r.Method == http.MethodPost {
		var req struct {
			Token string `json:"token"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		token = req.Token
	}
	if err := a.Service.ConfirmEmail(r.Context(), token); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}

func (a *API) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.Service.ResendConfirmation(r.Context(), req.Email); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	me, err := a.Service.Me(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}
