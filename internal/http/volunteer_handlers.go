package http

import (
	"net/http"

	"tapkind/internal/service"
)

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.Service.ListEvents(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) handleEventsCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := a.Service.EventsCalendar(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tapkind-events.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cal))
}

type checkinRequest struct {
	EventID   *string    `json:"event_id"`
	EventName string     `json:"event_name"`
	Location  *string    `json:"location"`
	Hours     FlexAmount `json:"hours"`
	Notes     *string    `json:"notes"`
}

func (a *API) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req checkinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.Service.CheckIn(r.Context(), userID, service.CheckinInput{
		EventID:   req.EventID,
		EventName: req.EventName,
		Location:  req.Location,
		Hours:     string(req.Hours),
		Notes:     req.Notes,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleCheckins(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	checkins, err := a.Service.Checkins(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkins)
}
