package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"tapkind/internal/models"
	"tapkind/internal/qr"
	"tapkind/internal/repo"
	"tapkind/internal/tipid"
)

const (
	maxTags         = 10
	maxTagLen       = 32
	tipIDAttempts   = 5
	defaultQRSize   = 256
	maxQRSize       = 1024
	maxDisplayName  = 80
	maxProfileField = 2000
)

// ProfileInput replaces every editable profile field.
type ProfileInput struct {
	DisplayName string   `json:"display_name"`
	AvatarURL   *string  `json:"avatar_url"`
	Bio         string   `json:"bio"`
	Story       string   `json:"story"`
	Tags        []string `json:"tags"`
	Location    string   `json:"location"`
	IsPublic    bool     `json:"is_public"`
}

func (s *Service) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	p, err := s.Store.GetProfile(ctx, userID)
	if err != nil {
		return models.Profile{}, fromStore("load profile", err)
	}
	return p, nil
}

// PublicProfile returns another principal's profile. Private profiles are hidden from everyone
// but their owner.
func (s *Service) PublicProfile(ctx context.Context, viewerID, userID string) (models.Profile, error) {
	p, err := s.Store.GetProfile(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsPublic && viewerID != userID) {
		return models.Profile{}, notFound("profile not found")
	}
	if err != nil {
		return models.Profile{}, fromStore("load profile", err)
	}
	return p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (models.Profile, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return models.Profile{}, validation("display name is required")
	}
	if len(name) > maxDisplayName {
		return models.Profile{}, validation("display name is too long")
	}
	if len(in.Bio) > maxProfileField || len(in.Story) > maxProfileField {
		return models.Profile{}, validation("bio and story are limited to 2000 characters")
	}
	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return models.Profile{}, err
	}
	var avatar *string
	if in.AvatarURL != nil {
		if v := strings.TrimSpace(*in.AvatarURL); v != "" {
			avatar = &v
		}
	}

	cur, err := s.Store.GetProfile(ctx, userID)
	if err != nil {
		return models.Profile{}, fromStore("load profile", err)
	}
	cur.DisplayName = name
	cur.AvatarURL = avatar
	cur.Bio = strings.TrimSpace(in.Bio)
	cur.Story = strings.TrimSpace(in.Story)
	cur.Tags = tags
	cur.Location = strings.TrimSpace(in.Location)
	cur.IsPublic = in.IsPublic
	if err := s.Store.UpdateProfile(ctx, cur); err != nil {
		return models.Profile{}, fromStore("update profile", err)
	}
	s.invalidateBoards()
	return s.GetProfile(ctx, userID)
}

// NormalizeTags trims each tag and rejects empty, over-long or duplicate ones.
// Duplicates are compared case-insensitively.
func NormalizeTags(tags []string) ([]string, error) {
	if len(tags) > maxTags {
		return nil, validation("at most 10 tags are allowed")
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			return nil, validation("tags must not be empty")
		}
		if len(tag) > maxTagLen {
			return nil, validation("tag \"" + tag + "\" is too long")
		}
		key := strings.ToLower(tag)
		if seen[key] {
			return nil, validation("duplicate tag \"" + tag + "\"")
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out, nil
}

func (s *Service) GetTipID(ctx context.Context, userID string) (models.RecipientCode, error) {
	code, err := s.Store.GetRecipientCode(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.RecipientCode{}, notFound("no TipID has been generated yet")
	}
	if err != nil {
		return models.RecipientCode{}, fromStore("load TipID", err)
	}
	return code, nil
}

// EnsureTipID returns the principal's code, generating one if needed and reactivating it
// if it was switched off. The tip id itself never changes once issued.
func (s *Service) EnsureTipID(ctx context.Context, userID string) (models.RecipientCode, error) {
	code, err := s.Store.GetRecipientCode(ctx, userID)
	if err == nil {
		if !code.IsActive {
			return s.SetTipIDActive(ctx, userID, true)
		}
		return code, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return models.RecipientCode{}, fromStore("load TipID", err)
	}

	for attempt := 0; attempt < tipIDAttempts; attempt++ {
		id, err := tipid.Generate()
		if err != nil {
			return models.RecipientCode{}, err
		}
		code, err = s.Store.CreateRecipientCode(ctx, userID, id)
		if err == nil {
			s.Log.Info("tip id issued", zap.String("user_id", userID), zap.String("tip_id", id))
			return code, nil
		}
		if !errors.Is(err, repo.ErrConflict) {
			return models.RecipientCode{}, fromStore("create TipID", err)
		}
		// A concurrent request may have issued this user's code.
		if existing, getErr := s.Store.GetRecipientCode(ctx, userID); getErr == nil {
			return existing, nil
		}
	}
	return models.RecipientCode{}, newError(KindConflict, "could not allocate a unique TipID; try again")
}

func (s *Service) SetTipIDActive(ctx context.Context, userID string, active bool) (models.RecipientCode, error) {
	if err := s.Store.SetRecipientCodeActive(ctx, userID, active); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return models.RecipientCode{}, notFound("no TipID has been generated yet")
		}
		return models.RecipientCode{}, fromStore("update TipID", err)
	}
	return s.GetTipID(ctx, userID)
}

// TipIDQR renders the principal's active TipID payload as a PNG of size pixels.
func (s *Service) TipIDQR(ctx context.Context, userID string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		return nil, validation("qr size is limited to 1024 pixels")
	}
	code, err := s.GetTipID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !code.IsActive {
		return nil, validation("TipID is inactive")
	}
	png, err := qr.Encode(tipid.Encode(code.TipID), size)
	if err != nil {
		return nil, err
	}
	return png, nil
}
