package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (u User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type EmailConfirmation struct {
	Token     string     `json:"token"`
	UserID    string     `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Profile is the public face of a principal.
type Profile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	Bio         string    `json:"bio"`
	Story       string    `json:"story"`
	Tags        []string  `json:"tags"`
	Location    string    `json:"location"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecipientCode binds a TipID to exactly one principal.
type RecipientCode struct {
	UserID    string    `json:"user_id"`
	TipID     string    `json:"tip_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Tip struct {
	ID          string          `json:"id"`
	GiverID     string          `json:"giver_id"`
	RecipientID string          `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	IsAnonymous bool            `json:"is_anonymous"`
	CreatedAt   time.Time       `json:"created_at"`
}

type VolunteerCheckin struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	EventID   *string         `json:"event_id"`
	EventName string          `json:"event_name"`
	Location  *string         `json:"location"`
	Hours     decimal.Decimal `json:"hours"`
	Notes     *string         `json:"notes"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	ActivityTip       = "tip"
	ActivityVolunteer = "volunteer"
)

// ActivityLogEntry is one row of the append-only points ledger.
type ActivityLogEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	PointsEarned int64     `json:"points_earned"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

type Badge struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	PointsRequired int64  `json:"points_required"`
}

type EarnedBadge struct {
	UserID   string    `json:"user_id"`
	Badge    Badge     `json:"badge"`
	EarnedAt time.Time `json:"earned_at"`
}

type VolunteerEvent struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Organization    string    `json:"organization"`
	Location        string    `json:"location"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	KarmaPoints     int64     `json:"karma_points"`
	Description     string    `json:"description"`
}

const (
	EventUpcoming = "upcoming"
	EventActive   = "active"
	EventPast     = "past"
)

func (e VolunteerEvent) EndsAt() time.Time {
	return e.StartsAt.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// Status reports where the event sits relative to now.
func (e VolunteerEvent) Status(now time.Time) string {
	switch {
	case now.Before(e.StartsAt):
		return EventUpcoming
	case now.Before(e.EndsAt()):
		return EventActive
	default:
		return EventPast
	}
}
