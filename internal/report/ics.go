package report

import (
	"net/url"
	"time"

	ics "github.com/arran4/golang-ical"

	"tapkind/internal/models"
)

// EventsICS renders the volunteer catalog as an iCalendar feed.
func EventsICS(events []models.VolunteerEvent, baseURL string, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//TapKind//Volunteer Events//EN")
	cal.SetName("TapKind volunteer events")

	for _, e := range events {
		ev := cal.AddEvent(e.ID + "@tapkind")
		ev.SetDtStampTime(now.UTC())
		ev.SetStartAt(e.StartsAt.UTC())
		ev.SetEndAt(e.EndsAt().UTC())
		ev.SetSummary(e.Name)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Organization != "" {
			ev.SetOrganizer(e.Organization)
		}
		if baseURL != "" {
			ev.SetURL(baseURL + "/volunteer/events?q=" + url.QueryEscape(e.Name))
		}
	}
	return cal.Serialize()
}
