// Package leaderboard ranks principals by points earned within a time window.
package leaderboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tapkind/internal/models"
)

type Window string

const (
	AllTime Window = "all"
	Month   Window = "month"
	Week    Window = "week"
)

func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case "", AllTime:
		return AllTime, nil
	case Month, Week:
		return Window(s), nil
	}
	return "", fmt.Errorf("unknown window %q", s)
}

// Since returns the lower bound on activity timestamps, or nil for all time.
func (w Window) Since(now time.Time) *time.Time {
	var d time.Duration
	switch w {
	case Month:
		d = 30 * 24 * time.Hour
	case Week:
		d = 7 * 24 * time.Hour
	default:
		return nil
	}
	t := now.Add(-d)
	return &t
}

type Input struct {
	// Activity rows already filtered to the window, in the order they should be grouped.
	Activity []models.ActivityLogEntry
	Profiles []models.Profile
	Tips     []models.Tip
	Checkins []models.VolunteerCheckin
	Earned   []models.EarnedBadge
}

type Entry struct {
	Rank           int             `json:"rank"`
	UserID         string          `json:"user_id"`
	DisplayName    string          `json:"display_name"`
	AvatarURL      *string         `json:"avatar_url"`
	Points         int64           `json:"points"`
	TipCount       int             `json:"tip_count"`
	VolunteerHours decimal.Decimal `json:"volunteer_hours"`
	Badges         []string        `json:"badges"`
}

type Board struct {
	Window      Window    `json:"window"`
	Entries     []Entry   `json:"entries"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Build groups activity by principal, drops zero totals and assigns sequential ranks.
// Ties keep first-appearance order.
func Build(window Window, in Input, now time.Time) Board {
	var order []string
	totals := make(map[string]int64)
	for _, row := range in.Activity {
		if _, seen := totals[row.UserID]; !seen {
			order = append(order, row.UserID)
		}
		totals[row.UserID] += row.PointsEarned
	}

	profiles := make(map[string]models.Profile, len(in.Profiles))
	for _, p := range in.Profiles {
		profiles[p.UserID] = p
	}
	tipCounts := make(map[string]int)
	for _, t := range in.Tips {
		tipCounts[t.GiverID]++
	}
	hours := make(map[string]decimal.Decimal)
	for _, c := range in.Checkins {
		hours[c.UserID] = hours[c.UserID].Add(c.Hours)
	}
	badges := make(map[string][]string)
	for _, e := range in.Earned {
		badges[e.UserID] = append(badges[e.UserID], e.Badge.Name)
	}

	entries := make([]Entry, 0, len(order))
	for _, id := range order {
		if totals[id] == 0 {
			continue
		}
		p := profiles[id]
		names := badges[id]
		if names == nil {
			names = []string{}
		}
		entries = append(entries, Entry{
			UserID:         id,
			DisplayName:    p.DisplayName,
			AvatarURL:      p.AvatarURL,
			Points:         totals[id],
			TipCount:       tipCounts[id],
			VolunteerHours: hours[id].Round(1),
			Badges:         names,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return Board{Window: window, Entries: entries, GeneratedAt: now}
}

// Lookup finds userID's entry; ok is false when the principal is not ranked.
func (b Board) Lookup(userID string) (Entry, bool) {
	for _, e := range b.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return Entry{}, false
}

// Progress interpolates between the neighbouring ranks' point totals and returns the
// percentage of the way from the rank below to the rank above. It is nil for rank 1,
// unranked principals and zero gaps.
func (b Board) Progress(userID string) *int {
	e, ok := b.Lookup(userID)
	if !ok || e.Rank <= 1 {
		return nil
	}
	above := b.Entries[e.Rank-2].Points
	var below int64
	if e.Rank < len(b.Entries) {
		below = b.Entries[e.Rank].Points
	}
	gap := above - below
	if gap == 0 {
		return nil
	}
	pct := int(math.Round(100 * float64(e.Points-below) / float64(gap)))
	return &pct
}
