package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tapkind/internal/leaderboard"
	"tapkind/internal/models"
	"tapkind/internal/rewards"
)

type Dashboard struct {
	rewards.Summary
	Leaderboard  *leaderboard.Entry `json:"leaderboard_entry"`
	RankProgress *int               `json:"rank_progress"`
}

// Dashboard loads every row the summary needs concurrently and aggregates them. The first
// failing read cancels the others and no partial summary is returned.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	var (
		activity []models.ActivityLogEntry
		tips     []models.Tip
		checkins []models.VolunteerCheckin
		badges   []models.Badge
		earned   []models.EarnedBadge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		activity, err = s.Store.ListActivity(gctx, userID)
		return fromStore("load activity", err)
	})
	g.Go(func() (err error) {
		tips, err = s.Store.ListTipsByGiver(gctx, userID)
		return fromStore("load tips", err)
	})
	g.Go(func() (err error) {
		checkins, err = s.Store.ListCheckinsByUser(gctx, userID)
		return fromStore("load check-ins", err)
	})
	g.Go(func() (err error) {
		badges, err = s.Store.ListBadges(gctx)
		return fromStore("load badges", err)
	})
	g.Go(func() (err error) {
		earned, err = s.Store.ListEarnedBadges(gctx, userID)
		return fromStore("load earned badges", err)
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	now := s.now()
	d := Dashboard{Summary: rewards.Summarize(rewards.Input{
		Activity: activity,
		Tips:     tips,
		Checkins: checkins,
		Badges:   badges,
		Earned:   earned,
	}, now)}

	board, err := s.Leaderboard(ctx, leaderboard.AllTime)
	if err != nil {
		return Dashboard{}, err
	}
	if entry, ok := board.Lookup(userID); ok {
		d.Leaderboard = &entry
		d.RankProgress = board.Progress(userID)
	}
	return d, nil
}
