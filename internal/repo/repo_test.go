package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tapkind/internal/db"
	"tapkind/internal/models"
)

// store is the method set shared by Repo and Memory that the tests below exercise.
type store interface {
	CreateUser(ctx context.Context, email, passwordHash, displayName string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateEmailConfirmation(ctx context.Context, userID, token string, expiresAt time.Time) error
	ConfirmEmail(ctx context.Context, token string, now time.Time) (string, error)
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	UpdateProfile(ctx context.Context, p models.Profile) error
	CreateRecipientCode(ctx context.Context, userID, tipID string) (models.RecipientCode, error)
	FindActiveRecipientCode(ctx context.Context, tipID string) (models.RecipientCode, error)
	SetRecipientCodeActive(ctx context.Context, userID string, active bool) error
	CreateTip(ctx context.Context, tip models.Tip, credit Credit) (models.Tip, []models.EarnedBadge, error)
	ListTipsByRecipient(ctx context.Context, userID string) ([]models.Tip, error)
	CreateCheckin(ctx context.Context, c models.VolunteerCheckin, credit Credit) (models.VolunteerCheckin, []models.EarnedBadge, error)
	ListActivity(ctx context.Context, userID string) ([]models.ActivityLogEntry, error)
	ListEarnedBadges(ctx context.Context, userID string) ([]models.EarnedBadge, error)
	UpsertBadge(ctx context.Context, b models.Badge) (models.Badge, error)
	ListBadges(ctx context.Context) ([]models.Badge, error)
}

func setupTestRepo(t *testing.T) (*Repo, func()) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema)); err != nil {
		pool.Close()
		t.Fatalf("create schema: %v", err)
	}
	ddl, err := db.UpSQL()
	if err != nil {
		pool.Close()
		t.Fatalf("read migrations: %v", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		t.Fatalf("create tables: %v", err)
	}
	return New(pool), func() {
		_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		pool.Close()
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("postgres", func(t *testing.T) {
		r, cleanup := setupTestRepo(t)
		defer cleanup()
		fn(t, r)
	})
}

func TestCreateUserCreatesProfile(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		u, err := s.CreateUser(ctx, "ana@example.com", "hash", "Ana")
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		p, err := s.GetProfile(ctx, u.ID)
		if err != nil {
			t.Fatalf("profile: %v", err)
		}
		if p.DisplayName != "Ana" || !p.IsPublic || len(p.Tags) != 0 {
			t.Fatalf("unexpected profile %+v", p)
		}
		if _, err := s.CreateUser(ctx, "ana@example.com", "hash", "Other"); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		got, err := s.GetUserByEmail(ctx, "ANA@example.com")
		if err != nil || got.ID != u.ID {
			t.Fatalf("lookup by email: %v %+v", err, got)
		}
	})
}

func TestConfirmEmailLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		now := time.Now().UTC()
		u, err := s.CreateUser(ctx, "ben@example.com", "hash", "Ben")
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		if err := s.CreateEmailConfirmation(ctx, u.ID, "tok-ok", now.Add(time.Hour)); err != nil {
			t.Fatalf("confirmation: %v", err)
		}
		if err := s.CreateEmailConfirmation(ctx, u.ID, "tok-old", now.Add(-time.Hour)); err != nil {
			t.Fatalf("confirmation: %v", err)
		}
		if _, err := s.ConfirmEmail(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := s.ConfirmEmail(ctx, "tok-old", now); !errors.Is(err, ErrExpired) {
			t.Fatalf("expected expired, got %v", err)
		}
		id, err := s.ConfirmEmail(ctx, "tok-ok", now)
		if err != nil || id != u.ID {
			t.Fatalf("confirm: %v %s", err, id)
		}
		if _, err := s.ConfirmEmail(ctx, "tok-ok", now); !errors.Is(err, ErrUsed) {
			t.Fatalf("expected used, got %v", err)
		}
		got, _ := s.GetUserByEmail(ctx, "ben@example.com")
		if !got.Confirmed() {
			t.Fatalf("user not confirmed")
		}
	})
}

func TestRecipientCodes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		a, _ := s.CreateUser(ctx, "a@example.com", "hash", "A")
		b, _ := s.CreateUser(ctx, "b@example.com", "hash", "B")

		if _, err := s.CreateRecipientCode(ctx, a.ID, "TK-AB12CD"); err != nil {
			t.Fatalf("create code: %v", err)
		}
		if _, err := s.CreateRecipientCode(ctx, b.ID, "TK-AB12CD"); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict on duplicate tip id, got %v", err)
		}
		if _, err := s.CreateRecipientCode(ctx, a.ID, "TK-ZZZZZZ"); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict on second code, got %v", err)
		}
		c, err := s.FindActiveRecipientCode(ctx, "TK-AB12CD")
		if err != nil || c.UserID != a.ID {
			t.Fatalf("find: %v %+v", err, c)
		}
		if err := s.SetRecipientCodeActive(ctx, a.ID, false); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if _, err := s.FindActiveRecipientCode(ctx, "TK-AB12CD"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected inactive code hidden, got %v", err)
		}
		if err := s.SetRecipientCodeActive(ctx, b.ID, true); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestCreateTipCreditsAndAwards(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		giver, _ := s.CreateUser(ctx, "g@example.com", "hash", "Giver")
		recv, _ := s.CreateUser(ctx, "r@example.com", "hash", "Recv")
		for _, b := range []models.Badge{
			{Name: "First Step", PointsRequired: 0},
			{Name: "Helper", PointsRequired: 50},
			{Name: "Hero", PointsRequired: 500},
		} {
			if _, err := s.UpsertBadge(ctx, b); err != nil {
				t.Fatalf("badge: %v", err)
			}
		}

		tip, earned, err := s.CreateTip(ctx, models.Tip{GiverID: giver.ID, RecipientID: recv.ID, Amount: decimal.RequireFromString("5.50")},
			Credit{ActivityType: models.ActivityTip, Points: 55, Description: "Tipped Recv"})
		if err != nil {
			t.Fatalf("tip: %v", err)
		}
		if !tip.Amount.Equal(decimal.RequireFromString("5.5")) {
			t.Fatalf("amount %s", tip.Amount)
		}
		if len(earned) != 2 || earned[0].Badge.Name != "First Step" || earned[1].Badge.Name != "Helper" {
			t.Fatalf("unexpected awards %+v", earned)
		}

		_, earned, err = s.CreateTip(ctx, models.Tip{GiverID: giver.ID, RecipientID: recv.ID, Amount: decimal.NewFromInt(1)},
			Credit{ActivityType: models.ActivityTip, Points: 10})
		if err != nil {
			t.Fatalf("tip: %v", err)
		}
		if len(earned) != 0 {
			t.Fatalf("badges awarded twice: %+v", earned)
		}

		tips, err := s.ListTipsByRecipient(ctx, recv.ID)
		if err != nil || len(tips) != 2 {
			t.Fatalf("tips: %v %d", err, len(tips))
		}
		activity, err := s.ListActivity(ctx, giver.ID)
		if err != nil || len(activity) != 2 {
			t.Fatalf("activity: %v %d", err, len(activity))
		}
		all, _ := s.ListEarnedBadges(ctx, giver.ID)
		if len(all) != 2 {
			t.Fatalf("earned %d", len(all))
		}
		if _, _, err := s.CreateTip(ctx, models.Tip{GiverID: giver.ID, RecipientID: recv.ID, Amount: decimal.NewFromInt(-1)},
			Credit{ActivityType: models.ActivityTip}); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected invalid for negative amount, got %v", err)
		}
	})
}

func TestCreateCheckinRejectsNonPositiveHours(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		u, _ := s.CreateUser(ctx, "v@example.com", "hash", "Vol")
		_, _, err := s.CreateCheckin(ctx, models.VolunteerCheckin{UserID: u.ID, EventName: "Cleanup", Hours: decimal.Zero},
			Credit{ActivityType: models.ActivityVolunteer})
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected invalid, got %v", err)
		}
		c, _, err := s.CreateCheckin(ctx, models.VolunteerCheckin{UserID: u.ID, EventName: "Cleanup", Hours: decimal.RequireFromString("1.25")},
			Credit{ActivityType: models.ActivityVolunteer, Points: 31})
		if err != nil {
			t.Fatalf("checkin: %v", err)
		}
		if c.ID == "" || !c.Hours.Equal(decimal.RequireFromString("1.25")) {
			t.Fatalf("unexpected checkin %+v", c)
		}
	})
}

func TestUpsertBadgeKeepsIdentity(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		first, err := s.UpsertBadge(ctx, models.Badge{Name: "Helper", PointsRequired: 100})
		if err != nil {
			t.Fatalf("badge: %v", err)
		}
		second, err := s.UpsertBadge(ctx, models.Badge{Name: "Helper", Icon: "star", PointsRequired: 50})
		if err != nil {
			t.Fatalf("badge: %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("upsert changed id")
		}
		badges, _ := s.ListBadges(ctx)
		if len(badges) != 1 || badges[0].PointsRequired != 50 || badges[0].Icon != "star" {
			t.Fatalf("unexpected badges %+v", badges)
		}
	})
}

func TestMemoryListActivitySince(t *testing.T) {
	m := NewMemory()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.AppendActivity(models.ActivityLogEntry{UserID: "a", PointsEarned: 10, CreatedAt: base.Add(-48 * time.Hour)})
	m.AppendActivity(models.ActivityLogEntry{UserID: "b", PointsEarned: 20, CreatedAt: base})
	since := base.Add(-time.Hour)
	got, err := m.ListActivitySince(context.Background(), &since)
	if err != nil || len(got) != 1 || got[0].UserID != "b" {
		t.Fatalf("since: %v %+v", err, got)
	}
	all, _ := m.ListActivitySince(context.Background(), nil)
	if len(all) != 2 || all[0].UserID != "a" {
		t.Fatalf("all: %+v", all)
	}
}

func TestMemoryListActivitySinceOrdersByTime(t *testing.T) {
	m := NewMemory()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.AppendActivity(models.ActivityLogEntry{UserID: "late", PointsEarned: 5, CreatedAt: base.Add(time.Hour)})
	m.AppendActivity(models.ActivityLogEntry{UserID: "early", PointsEarned: 5, CreatedAt: base})
	m.AppendActivity(models.ActivityLogEntry{UserID: "tie", PointsEarned: 5, CreatedAt: base})

	got, err := m.ListActivitySince(context.Background(), nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var order []string
	for _, a := range got {
		order = append(order, a.UserID)
	}
	if strings.Join(order, ",") != "early,tie,late" {
		t.Fatalf("order = %v", order)
	}
}
