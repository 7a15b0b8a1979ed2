package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tapkind/internal/models"
	"tapkind/internal/repo"
	"tapkind/internal/report"
)

// maxHours is the largest value numeric(6,2) holds.
var maxHours = decimal.RequireFromString("9999.99")

type EventView struct {
	models.VolunteerEvent
	EndsAt time.Time `json:"ends_at"`
	Status string    `json:"status"`
}

type CheckinInput struct {
	EventID   *string `json:"event_id"`
	EventName string  `json:"event_name"`
	Location  *string `json:"location"`
	Hours     string  `json:"hours"`
	Notes     *string `json:"notes"`
}

type CheckinResult struct {
	Checkin      models.VolunteerCheckin `json:"checkin"`
	PointsEarned int64                   `json:"points_earned"`
	NewBadges    []models.EarnedBadge    `json:"new_badges"`
}

// ListEvents returns catalog events whose name or location contains query, case-insensitively.
func (s *Service) ListEvents(ctx context.Context, query string) ([]EventView, error) {
	events, err := s.Store.ListVolunteerEvents(ctx)
	if err != nil {
		return nil, fromStore("load events", err)
	}
	q := strings.ToLower(strings.TrimSpace(query))
	now := s.now()
	out := []EventView{}
	for _, e := range events {
		if q != "" && !strings.Contains(strings.ToLower(e.Name), q) && !strings.Contains(strings.ToLower(e.Location), q) {
			continue
		}
		out = append(out, EventView{VolunteerEvent: e, EndsAt: e.EndsAt(), Status: e.Status(now)})
	}
	return out, nil
}

func (s *Service) EventsCalendar(ctx context.Context) (string, error) {
	events, err := s.Store.ListVolunteerEvents(ctx)
	if err != nil {
		return "", fromStore("load events", err)
	}
	return report.EventsICS(events, s.Config.Server.BaseURL, s.now()), nil
}

func parseHours(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, validation("hours are required")
	}
	hours, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, validation("hours must be a number")
	}
	if !hours.IsPositive() {
		return decimal.Zero, validation("hours must be greater than zero")
	}
	if !hours.Equal(hours.Round(2)) {
		return decimal.Zero, validation("hours support at most two decimal places")
	}
	if hours.GreaterThan(maxHours) {
		return decimal.Zero, validation("hours value is too large")
	}
	return hours.Round(2), nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// CheckIn records volunteer hours. A catalog event credits its karma points; a free-form
// check-in credits hours × points.per_volunteer_hour, rounded.
func (s *Service) CheckIn(ctx context.Context, userID string, in CheckinInput) (CheckinResult, error) {
	hours, err := parseHours(in.Hours)
	if err != nil {
		return CheckinResult{}, err
	}
	c := models.VolunteerCheckin{
		UserID:    userID,
		EventName: strings.TrimSpace(in.EventName),
		Location:  trimOptional(in.Location),
		Hours:     hours,
		Notes:     trimOptional(in.Notes),
	}
	points := hours.Mul(decimal.NewFromInt(s.Config.Points.PerVolunteerHour)).Round(0).IntPart()

	if id := trimOptional(in.EventID); id != nil {
		event, err := s.Store.GetVolunteerEvent(ctx, *id)
		if errors.Is(err, repo.ErrNotFound) {
			return CheckinResult{}, validation("unknown volunteer event")
		}
		if err != nil {
			return CheckinResult{}, fromStore("load event", err)
		}
		c.EventID = &event.ID
		c.EventName = event.Name
		if c.Location == nil && event.Location != "" {
			loc := event.Location
			c.Location = &loc
		}
		points = event.KarmaPoints
	}
	if c.EventName == "" {
		return CheckinResult{}, validation("event name is required")
	}

	created, awarded, err := s.Store.CreateCheckin(ctx, c, repo.Credit{
		ActivityType: models.ActivityVolunteer,
		Points:       points,
		Description:  "Volunteered at " + c.EventName,
	})
	if err != nil {
		return CheckinResult{}, fromStore("check in", err)
	}
	s.invalidateBoards()
	s.Log.Info("volunteer check-in",
		zap.String("user_id", userID),
		zap.String("event", c.EventName),
		zap.String("hours", hours.String()),
		zap.Int64("points", points),
	)
	if awarded == nil {
		awarded = []models.EarnedBadge{}
	}
	return CheckinResult{Checkin: created, PointsEarned: points, NewBadges: awarded}, nil
}

func (s *Service) Checkins(ctx context.Context, userID string) ([]models.VolunteerCheckin, error) {
	checkins, err := s.Store.ListCheckinsByUser(ctx, userID)
	if err != nil {
		return nil, fromStore("load check-ins", err)
	}
	if checkins == nil {
		checkins = []models.VolunteerCheckin{}
	}
	return checkins, nil
}
