package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tapkind/internal/auth"
	"tapkind/internal/cache"
	"tapkind/internal/config"
	"tapkind/internal/leaderboard"
	"tapkind/internal/models"
	"tapkind/internal/repo"
	"tapkind/internal/view"
)

// Store is the persistence surface the service needs. Both repo.Repo and repo.Memory satisfy it.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, email, passwordHash, displayName string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	CreateEmailConfirmation(ctx context.Context, userID, token string, expiresAt time.Time) error
	ConfirmEmail(ctx context.Context, token string, now time.Time) (string, error)
	CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (models.Session, error)
	DeleteSession(ctx context.Context, token string) error

	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	UpdateProfile(ctx context.Context, p models.Profile) error
	ListProfiles(ctx context.Context) ([]models.Profile, error)

	GetRecipientCode(ctx context.Context, userID string) (models.RecipientCode, error)
	FindActiveRecipientCode(ctx context.Context, tipID string) (models.RecipientCode, error)
	CreateRecipientCode(ctx context.Context, userID, tipID string) (models.RecipientCode, error)
	SetRecipientCodeActive(ctx context.Context, userID string, active bool) error

	CreateTip(ctx context.Context, tip models.Tip, credit repo.Credit) (models.Tip, []models.EarnedBadge, error)
	ListTipsByRecipient(ctx context.Context, userID string) ([]models.Tip, error)
	ListTipsByGiver(ctx context.Context, userID string) ([]models.Tip, error)
	ListTips(ctx context.Context) ([]models.Tip, error)

	CreateCheckin(ctx context.Context, c models.VolunteerCheckin, credit repo.Credit) (models.VolunteerCheckin, []models.EarnedBadge, error)
	ListCheckinsByUser(ctx context.Context, userID string) ([]models.VolunteerCheckin, error)
	ListCheckins(ctx context.Context) ([]models.VolunteerCheckin, error)

	ListActivity(ctx context.Context, userID string) ([]models.ActivityLogEntry, error)
	ListActivitySince(ctx context.Context, since *time.Time) ([]models.ActivityLogEntry, error)

	ListBadges(ctx context.Context) ([]models.Badge, error)
	ListEarnedBadges(ctx context.Context, userID string) ([]models.EarnedBadge, error)
	ListAllEarnedBadges(ctx context.Context) ([]models.EarnedBadge, error)
	UpsertBadge(ctx context.Context, b models.Badge) (models.Badge, error)

	ListVolunteerEvents(ctx context.Context) ([]models.VolunteerEvent, error)
	GetVolunteerEvent(ctx context.Context, id string) (models.VolunteerEvent, error)
	UpsertVolunteerEvent(ctx context.Context, e models.VolunteerEvent) (models.VolunteerEvent, error)
}

var (
	_ Store = (*repo.Repo)(nil)
	_ Store = (*repo.Memory)(nil)
)

type Service struct {
	Store    Store
	Auth     *auth.Manager
	Cache    *cache.Client
	Notifier Notifier
	Log      *zap.Logger
	Config   *config.Config

	// Now is the clock; tests replace it.
	Now func() time.Time

	boards map[leaderboard.Window]*view.Store[leaderboard.Board]
	flight singleflight.Group
}

// New wires a service. cacheClient may be nil, in which case blacklisting and rate limits are off.
func New(store Store, authManager *auth.Manager, cacheClient *cache.Client, cfg *config.Config, log *zap.Logger) *Service {
	return &Service{
		Store:    store,
		Auth:     authManager,
		Cache:    cacheClient,
		Notifier: LogNotifier{Log: log},
		Log:      log,
		Config:   cfg,
		Now:      time.Now,
		boards: map[leaderboard.Window]*view.Store[leaderboard.Board]{
			leaderboard.AllTime: {},
			leaderboard.Month:   {},
			leaderboard.Week:    {},
		},
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Health pings the store.
func (s *Service) Health(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return fromStore("health check", err)
	}
	return nil
}

// allow consults the Redis rate limiter; Redis failures let the request through.
func (s *Service) allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	ok, err := s.Cache.CheckRateLimit(ctx, key, limit, window)
	if err != nil {
		s.Log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}
