package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"tapkind/internal/service"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

// writeServiceError maps a service error kind onto a status code and error code.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		a.Log.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
		return
	}
	switch se.Kind {
	case service.KindValidation:
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", se.Message)
	case service.KindNotFound:
		writeError(w, http.StatusNotFound, "NOT_FOUND", se.Message)
	case service.KindConflict:
		writeError(w, http.StatusConflict, "CONFLICT", se.Message)
	case service.KindInconsistent:
		a.Log.Warn("inconsistent state", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusConflict, "INCONSISTENT_STATE", se.Message)
	case service.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", se.Message)
	case service.KindRateLimited:
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", se.Message)
	case service.KindSchema:
		a.Log.Error("database schema missing", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "SCHEMA_MISSING", se.Message)
	default:
		a.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", se.Message)
	}
}
