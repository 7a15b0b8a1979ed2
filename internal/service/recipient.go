package service

import (
	"context"
	"errors"
	"io"

	"github.com/shopspring/decimal"

	"tapkind/internal/qr"
	"tapkind/internal/repo"
	"tapkind/internal/rewards"
	"tapkind/internal/tipid"
)

// RecipientView is a resolved tip recipient with what they have received so far.
type RecipientView struct {
	UserID      string          `json:"user_id"`
	TipID       string          `json:"tip_id"`
	DisplayName string          `json:"display_name"`
	AvatarURL   *string         `json:"avatar_url"`
	Bio         string          `json:"bio"`
	Story       string          `json:"story"`
	Location    string          `json:"location"`
	Tags        []string        `json:"tags"`
	TotalTips   decimal.Decimal `json:"total_tips"`
	TipCount    int             `json:"tip_count"`
}

// ResolveRecipient turns a scanned payload or typed identifier into a recipient. It has no
// side effects.
func (s *Service) ResolveRecipient(ctx context.Context, raw string) (RecipientView, error) {
	id := tipid.Normalize(raw)
	if id == "" {
		return RecipientView{}, validation("enter a TipID")
	}
	code, err := s.Store.FindActiveRecipientCode(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return RecipientView{}, notFound("TipID not found")
	}
	if err != nil {
		return RecipientView{}, fromStore("look up TipID", err)
	}

	profile, err := s.Store.GetProfile(ctx, code.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return RecipientView{}, newError(KindInconsistent, "recipient profile not found")
	}
	if err != nil {
		return RecipientView{}, fromStore("load recipient", err)
	}
	tips, err := s.Store.ListTipsByRecipient(ctx, code.UserID)
	if err != nil {
		return RecipientView{}, fromStore("load recipient tips", err)
	}
	count, total := rewards.TipTotals(tips)
	return RecipientView{
		UserID:      profile.UserID,
		TipID:       code.TipID,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		Bio:         profile.Bio,
		Story:       profile.Story,
		Location:    profile.Location,
		Tags:        profile.Tags,
		TotalTips:   total,
		TipCount:    count,
	}, nil
}

// ScanImage decodes the first QR code in an uploaded image and resolves it.
func (s *Service) ScanImage(ctx context.Context, r io.Reader) (RecipientView, error) {
	text, err := qr.Decode(r)
	if errors.Is(err, qr.ErrNoCode) {
		return RecipientView{}, validation("no QR code found in the image")
	}
	if err != nil {
		return RecipientView{}, &Error{Kind: KindValidation, Message: "could not read the image", Err: err}
	}
	return s.ResolveRecipient(ctx, text)
}
