package service

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tapkind/internal/models"
	"tapkind/internal/rewards"
)

// Impact is the community-wide total shown on the impact page.
type Impact struct {
	TotalTipAmount     decimal.Decimal `json:"total_tip_amount"`
	TipCount           int             `json:"tip_count"`
	DistinctTippers    int             `json:"distinct_tippers"`
	DistinctRecipients int             `json:"distinct_recipients"`
	VolunteerHours     decimal.Decimal `json:"volunteer_hours"`
	CheckinCount       int             `json:"checkin_count"`
	KarmaIndex         int64           `json:"karma_index"`
}

func (s *Service) Impact(ctx context.Context) (Impact, error) {
	var (
		tips     []models.Tip
		checkins []models.VolunteerCheckin
		activity []models.ActivityLogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tips, err = s.Store.ListTips(gctx)
		return fromStore("load tips", err)
	})
	g.Go(func() (err error) {
		checkins, err = s.Store.ListCheckins(gctx)
		return fromStore("load check-ins", err)
	})
	g.Go(func() (err error) {
		activity, err = s.Store.ListActivitySince(gctx, nil)
		return fromStore("load activity", err)
	})
	if err := g.Wait(); err != nil {
		return Impact{}, err
	}
	return ComputeImpact(tips, checkins, activity), nil
}

func ComputeImpact(tips []models.Tip, checkins []models.VolunteerCheckin, activity []models.ActivityLogEntry) Impact {
	count, total := rewards.TipTotals(tips)
	givers := map[string]struct{}{}
	recipients := map[string]struct{}{}
	for _, t := range tips {
		givers[t.GiverID] = struct{}{}
		recipients[t.RecipientID] = struct{}{}
	}
	return Impact{
		TotalTipAmount:     total,
		TipCount:           count,
		DistinctTippers:    len(givers),
		DistinctRecipients: len(recipients),
		VolunteerHours:     rewards.VolunteerHours(checkins),
		CheckinCount:       len(checkins),
		KarmaIndex:         rewards.TotalPoints(activity),
	}
}
