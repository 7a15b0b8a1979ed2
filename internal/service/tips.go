package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tapkind/internal/models"
	"tapkind/internal/repo"
)

// maxAmount is the largest value numeric(12,2) holds.
var maxAmount = decimal.RequireFromString("9999999999.99")

// TipInput names the recipient by TipID (any payload ResolveRecipient accepts) or by user id.
type TipInput struct {
	TipID       string `json:"tip_id"`
	RecipientID string `json:"recipient_id"`
	Amount      string `json:"amount"`
	IsAnonymous bool   `json:"is_anonymous"`
}

type TipResult struct {
	Tip          models.Tip           `json:"tip"`
	Recipient    string               `json:"recipient_name"`
	PointsEarned int64                `json:"points_earned"`
	NewBadges    []models.EarnedBadge `json:"new_badges"`
}

// ParseAmount accepts a positive decimal with at most two fractional digits.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, validation("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, validation("amount must be a number")
	}
	if !amount.IsPositive() {
		return decimal.Zero, validation("amount must be greater than zero")
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return decimal.Zero, validation("amount supports at most two decimal places")
	}
	if amount.GreaterThan(maxAmount) {
		return decimal.Zero, validation("amount is too large")
	}
	return amount.Round(2), nil
}

// EstimatePoints is the number of points a tip of amount credits to its giver.
func (s *Service) EstimatePoints(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(s.Config.Points.TipMultiplier)).Floor().IntPart()
}

// SubmitTip records one tip from giverID. Invalid amounts are rejected before anything is read
// or written; the store write happens at most once.
func (s *Service) SubmitTip(ctx context.Context, giverID string, in TipInput) (TipResult, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return TipResult{}, err
	}
	if in.TipID == "" && in.RecipientID == "" {
		return TipResult{}, validation("choose a recipient first")
	}
	if !s.allow(ctx, "tips:"+giverID, s.Config.Tips.RateLimit, s.Config.Tips.RateWindow) {
		return TipResult{}, newError(KindRateLimited, "too many tips in a short time; try again shortly")
	}

	recipientID, recipientName, err := s.tipRecipient(ctx, in)
	if err != nil {
		return TipResult{}, err
	}
	if recipientID == giverID {
		return TipResult{}, validation("you cannot tip yourself")
	}

	points := s.EstimatePoints(amount)
	tip, awarded, err := s.Store.CreateTip(ctx, models.Tip{
		GiverID:     giverID,
		RecipientID: recipientID,
		Amount:      amount,
		IsAnonymous: in.IsAnonymous,
	}, repo.Credit{
		ActivityType: models.ActivityTip,
		Points:       points,
		Description:  "Tipped " + recipientName,
	})
	if err != nil {
		return TipResult{}, fromStore("send tip", err)
	}
	s.invalidateBoards()
	s.Log.Info("tip recorded",
		zap.String("tip_id", tip.ID),
		zap.String("giver_id", giverID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Int64("points", points),
	)
	if awarded == nil {
		awarded = []models.EarnedBadge{}
	}
	return TipResult{Tip: tip, Recipient: recipientName, PointsEarned: points, NewBadges: awarded}, nil
}

func (s *Service) tipRecipient(ctx context.Context, in TipInput) (string, string, error) {
	if in.TipID != "" {
		view, err := s.ResolveRecipient(ctx, in.TipID)
		if err != nil {
			return "", "", err
		}
		return view.UserID, view.DisplayName, nil
	}
	profile, err := s.Store.GetProfile(ctx, in.RecipientID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", "", notFound("recipient not found")
	}
	if err != nil {
		return "", "", fromStore("load recipient", err)
	}
	return profile.UserID, profile.DisplayName, nil
}

func (s *Service) TipsGiven(ctx context.Context, userID string) ([]models.Tip, error) {
	tips, err := s.Store.ListTipsByGiver(ctx, userID)
	if err != nil {
		return nil, fromStore("load tips", err)
	}
	if tips == nil {
		tips = []models.Tip{}
	}
	return tips, nil
}
