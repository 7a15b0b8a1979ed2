package service

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tapkind/internal/auth"
	"tapkind/internal/models"
	"tapkind/internal/repo"
)

const minPasswordLen = 6

type Tokens struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         models.User `json:"user"`
}

type SignUpResult struct {
	User                 models.User `json:"user"`
	ConfirmationRequired bool        `json:"confirmation_required"`
}

type Me struct {
	User    models.User    `json:"user"`
	Profile models.Profile `json:"profile"`
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validation("email is not valid")
	}
	return email, nil
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return SignUpResult{}, err
	}
	if len(password) < minPasswordLen {
		return SignUpResult{}, validation("password must be at least 6 characters")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return SignUpResult{}, validation("display name is required")
	}

	hash, err := s.Auth.HashPassword(password)
	if err != nil {
		return SignUpResult{}, err
	}
	user, err := s.Store.CreateUser(ctx, email, hash, displayName)
	if errors.Is(err, repo.ErrConflict) {
		return SignUpResult{}, &Error{Kind: KindConflict, Message: "an account with this email already exists", Err: err}
	}
	if err != nil {
		return SignUpResult{}, fromStore("sign up", err)
	}
	s.Log.Info("user signed up", zap.String("user_id", user.ID))

	res := SignUpResult{User: user, ConfirmationRequired: s.Config.Auth.RequireEmailConfirmation}
	if res.ConfirmationRequired {
		if err := s.sendConfirmation(ctx, user); err != nil {
			return SignUpResult{}, err
		}
	}
	return res, nil
}

func (s *Service) sendConfirmation(ctx context.Context, user models.User) error {
	token, err := auth.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.Store.CreateEmailConfirmation(ctx, user.ID, token, s.now().Add(s.Config.Auth.ConfirmationTTL)); err != nil {
		return fromStore("create confirmation", err)
	}
	link := strings.TrimRight(s.Config.Server.BaseURL, "/") + "/auth/confirm?token=" + url.QueryEscape(token)
	if err := s.Notifier.SendConfirmation(ctx, user.Email, link); err != nil {
		return &Error{Kind: KindTransport, Message: "could not send confirmation email", Err: err}
	}
	return nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Tokens{}, validation("email and password are required")
	}
	user, err := s.Store.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return Tokens{}, unauthorized("invalid email or password")
	}
	if err != nil {
		return Tokens{}, fromStore("sign in", err)
	}
	if err := s.Auth.ComparePassword(user.PasswordHash, password); err != nil {
		return Tokens{}, unauthorized("invalid email or password")
	}
	if s.Config.Auth.RequireEmailConfirmation && !user.Confirmed() {
		return Tokens{}, unauthorized("email address has not been confirmed")
	}
	return s.issueTokens(ctx, user)
}

func (s *Service) issueTokens(ctx context.Context, user models.User) (Tokens, error) {
	access, expires, err := s.Auth.GenerateToken(user.ID)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return Tokens{}, err
	}
	if err := s.Store.CreateSession(ctx, user.ID, refresh, s.now().Add(s.Config.Auth.RefreshTokenTTL)); err != nil {
		return Tokens{}, fromStore("create session", err)
	}
	return Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: expires, User: user}, nil
}

// Refresh exchanges a refresh token for a new token pair. The old session is consumed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, validation("refresh token is required")
	}
	session, err := s.Store.GetSession(ctx, refreshToken)
	if errors.Is(err, repo.ErrNotFound) {
		return Tokens{}, unauthorized("refresh token is invalid")
	}
	if err != nil {
		return Tokens{}, fromStore("refresh", err)
	}
	if err := s.Store.DeleteSession(ctx, refreshToken); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return Tokens{}, fromStore("refresh", err)
	}
	if !s.now().Before(session.ExpiresAt) {
		return Tokens{}, unauthorized("refresh token has expired")
	}
	user, err := s.Store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return Tokens{}, fromStore("refresh", err)
	}
	return s.issueTokens(ctx, user)
}

// SignOut blacklists the access token and drops the refresh session, if one is given.
func (s *Service) SignOut(ctx context.Context, claims *auth.Claims, refreshToken string) error {
	if claims != nil {
		if err := s.Cache.BlacklistToken(ctx, claims.TokenID(), claims.Remaining(s.now())); err != nil {
			s.Log.Warn("blacklist token failed", zap.String("user_id", claims.UserID), zap.Error(err))
		}
	}
	if refreshToken == "" {
		return nil
	}
	if err := s.Store.DeleteSession(ctx, refreshToken); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fromStore("sign out", err)
	}
	return nil
}

// IsRevoked reports whether the access token was signed out.
func (s *Service) IsRevoked(ctx context.Context, claims *auth.Claims) bool {
	listed, err := s.Cache.IsBlacklisted(ctx, claims.TokenID())
	if err != nil {
		s.Log.Warn("blacklist lookup failed", zap.Error(err))
		return false
	}
	return listed
}

func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return validation("confirmation token is required")
	}
	userID, err := s.Store.ConfirmEmail(ctx, token, s.now())
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return notFound("confirmation link is not valid")
	case errors.Is(err, repo.ErrExpired):
		return validation("confirmation link has expired; request a new one")
	case errors.Is(err, repo.ErrUsed):
		return &Error{Kind: KindConflict, Message: "email address is already confirmed"}
	case err != nil:
		return fromStore("confirm email", err)
	}
	s.Log.Info("email confirmed", zap.String("user_id", userID))
	return nil
}

// ResendConfirmation issues a fresh confirmation link. Unknown addresses succeed silently.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if !s.allow(ctx, "resend:"+email, s.Config.Auth.ResendLimit, s.Config.Auth.ResendWindow) {
		return newError(KindRateLimited, "too many confirmation emails requested; try again later")
	}
	user, err := s.Store.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fromStore("resend confirmation", err)
	}
	if user.Confirmed() {
		return &Error{Kind: KindConflict, Message: "email address is already confirmed"}
	}
	return s.sendConfirmation(ctx, user)
}

func (s *Service) Me(ctx context.Context, userID string) (Me, error) {
	user, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return Me{}, fromStore("load user", err)
	}
	profile, err := s.Store.GetProfile(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return Me{}, newError(KindInconsistent, "account has no profile")
	}
	if err != nil {
		return Me{}, fromStore("load profile", err)
	}
	return Me{User: user, Profile: profile}, nil
}
