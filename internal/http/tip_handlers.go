package http

import (
	"errors"
	"net/http"

	"tapkind/internal/service"
)

const maxUploadBytes = 8 << 20

type resolveRequest struct {
	Payload string `json:"payload"`
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recipient, err := a.Service.ResolveRecipient(r.Context(), req.Payload)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipient)
}

// handleScanImage resolves the first QR code found in an uploaded photo (multipart field "image").
func (a *API) handleScanImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "Image is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Expected a multipart image upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Missing image field")
		return
	}
	defer file.Close()

	recipient, err := a.Service.ScanImage(r.Context(), file)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipient)
}

type tipRequest struct {
	TipID       string     `json:"tip_id"`
	RecipientID string     `json:"recipient_id"`
	Amount      FlexAmount `json:"amount"`
	IsAnonymous bool       `json:"is_anonymous"`
}

func (a *API) handleSubmitTip(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req tipRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.Service.SubmitTip(r.Context(), userID, service.TipInput{
		TipID:       req.TipID,
		RecipientID: req.RecipientID,
		Amount:      string(req.Amount),
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleTipsGiven(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	tips, err := a.Service.TipsGiven(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tips)
}
