// Package rewards computes a principal's dashboard summary from raw ledger rows.
package rewards

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tapkind/internal/models"
)

// RecentLimit is the number of activity entries shown in the feed.
const RecentLimit = 5

type Input struct {
	Activity []models.ActivityLogEntry
	Tips     []models.Tip
	Checkins []models.VolunteerCheckin

	// Badges must be ordered by ascending points threshold.
	Badges []models.Badge
	Earned []models.EarnedBadge
}

type NextBadge struct {
	Badge          models.Badge `json:"badge"`
	PointsToNext   int64        `json:"points_to_next"`
	ProgressToNext int          `json:"progress_to_next"`
}

type RecentActivity struct {
	models.ActivityLogEntry
	When string `json:"when"`
}

type Summary struct {
	KindnessPoints  int64                `json:"kindness_points"`
	TotalTips       int                  `json:"total_tips"`
	TotalTipsAmount decimal.Decimal      `json:"total_tips_amount"`
	VolunteerHours  decimal.Decimal      `json:"volunteer_hours"`
	NextBadge       *NextBadge           `json:"next_badge"`
	AllEarned       bool                 `json:"all_earned"`
	EarnedBadges    []models.EarnedBadge `json:"earned_badges"`
	Recent          []RecentActivity     `json:"recent_activity"`

	// GlobalRank is never computed here; ranking lives in the leaderboard package.
	GlobalRank *int `json:"global_rank"`
}

func Summarize(in Input, now time.Time) Summary {
	points := TotalPoints(in.Activity)
	count, amount := TipTotals(in.Tips)
	s := Summary{
		KindnessPoints:  points,
		TotalTips:       count,
		TotalTipsAmount: amount,
		VolunteerHours:  VolunteerHours(in.Checkins),
		EarnedBadges:    in.Earned,
		Recent:          Recent(in.Activity, now, RecentLimit),
	}
	if s.EarnedBadges == nil {
		s.EarnedBadges = []models.EarnedBadge{}
	}
	if badge, ok := Next(in.Badges, in.Earned); ok {
		s.NextBadge = &NextBadge{
			Badge:          badge,
			PointsToNext:   PointsToNext(badge.PointsRequired, points),
			ProgressToNext: Progress(badge.PointsRequired, points),
		}
	} else {
		s.AllEarned = true
	}
	return s
}

func TotalPoints(entries []models.ActivityLogEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.PointsEarned
	}
	return total
}

func TipTotals(tips []models.Tip) (int, decimal.Decimal) {
	sum := decimal.Zero
	for _, t := range tips {
		sum = sum.Add(t.Amount)
	}
	return len(tips), sum
}

// VolunteerHours sums check-in hours and rounds to one decimal place.
func VolunteerHours(checkins []models.VolunteerCheckin) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range checkins {
		sum = sum.Add(c.Hours)
	}
	return sum.Round(1)
}

// Next returns the cheapest badge the principal has not earned yet.
func Next(badges []models.Badge, earned []models.EarnedBadge) (models.Badge, bool) {
	have := make(map[string]bool, len(earned))
	for _, e := range earned {
		have[e.Badge.ID] = true
	}
	for _, b := range badges {
		if !have[b.ID] {
			return b, true
		}
	}
	return models.Badge{}, false
}

func PointsToNext(threshold, points int64) int64 {
	if rem := threshold - points; rem > 0 {
		return rem
	}
	return 0
}

// Progress is the rounded percentage of threshold reached, clamped to [0, 100].
func Progress(threshold, points int64) int {
	if threshold <= 0 {
		return 0
	}
	pct := math.Round(100 * float64(points) / float64(threshold))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// Recent returns the limit most recent entries, newest first, with relative labels.
func Recent(entries []models.ActivityLogEntry, now time.Time, limit int) []RecentActivity {
	sorted := make([]models.ActivityLogEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]RecentActivity, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, RecentActivity{ActivityLogEntry: e, When: RelativeTime(e.CreatedAt, now)})
	}
	return out
}

func RelativeTime(at, now time.Time) string {
	hours := int(now.Sub(at).Hours())
	switch {
	case hours < 1:
		return "Just now"
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	}
	days := hours / 24
	if days == 1 {
		return "Yesterday"
	}
	return fmt.Sprintf("%dd ago", days)
}
