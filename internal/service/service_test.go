package service

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tapkind/internal/auth"
	"tapkind/internal/catalog"
	"tapkind/internal/config"
	"tapkind/internal/leaderboard"
	"tapkind/internal/models"
	"tapkind/internal/qr"
	"tapkind/internal/repo"
	"tapkind/internal/tipid"
)

type captureNotifier struct {
	mu    sync.Mutex
	links []string
}

func (n *captureNotifier) SendConfirmation(_ context.Context, _ string, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, link)
	return nil
}

func (n *captureNotifier) lastToken(t *testing.T) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.links)
	u, err := url.Parse(n.links[len(n.links)-1])
	require.NoError(t, err)
	return u.Query().Get("token")
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{BaseURL: "http://localhost:8080", Store: "memory"},
		Auth: config.AuthConfig{
			JWTSecret:       "0123456789abcdef",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
			ConfirmationTTL: time.Hour,
			ResendLimit:     3,
			ResendWindow:    time.Minute,
		},
		Points:      config.PointsConfig{TipMultiplier: 10, PerVolunteerHour: 25},
		Tips:        config.TipsConfig{RateLimit: 20, RateWindow: time.Minute},
		Leaderboard: config.LeaderboardConfig{CacheTTL: time.Minute},
	}
}

type fixture struct {
	svc      *Service
	store    *repo.Memory
	notifier *captureNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: repo.NewMemory(), notifier: &captureNotifier{}, now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.store.Now = clock
	cfg := testConfig()
	f.svc = New(f.store, auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL), nil, cfg, zap.NewNop())
	f.svc.Notifier = f.notifier
	f.svc.Now = clock

	c, err := catalog.Load("")
	require.NoError(t, err)
	require.NoError(t, c.Seed(context.Background(), f.store, zap.NewNop()))
	return f
}

func (f *fixture) user(t *testing.T, name string) models.User {
	t.Helper()
	res, err := f.svc.SignUp(context.Background(), strings.ToLower(name)+"@example.com", "secret1", name)
	require.NoError(t, err)
	return res.User
}

func (f *fixture) tipID(t *testing.T, userID string) string {
	t.Helper()
	code, err := f.svc.EnsureTipID(context.Background(), userID)
	require.NoError(t, err)
	return code.TipID
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name, email, password, display string
	}{
		{"empty email", "", "secret1", "Ana"},
		{"bad email", "not-an-email", "secret1", "Ana"},
		{"short password", "ana@example.com", "12345", "Ana"},
		{"blank name", "ana@example.com", "secret1", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SignUp(ctx, tt.email, tt.password, tt.display)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}

	f.user(t, "Ana")
	_, err := f.svc.SignUp(ctx, "ANA@example.com", "secret1", "Ana again")
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestSignInAndRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "Ana")

	_, err := f.svc.SignIn(ctx, "ana@example.com", "wrong")
	assert.Equal(t, KindUnauthorized, KindOf(err))
	_, err = f.svc.SignIn(ctx, "nobody@example.com", "secret1")
	assert.Equal(t, KindUnauthorized, KindOf(err))

	tokens, err := f.svc.SignIn(ctx, " Ana@Example.com ", "secret1")
	require.NoError(t, err)
	claims, err := f.svc.Auth.ParseToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	refreshed, err := f.svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken)

	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.Equal(t, KindUnauthorized, KindOf(err), "refresh tokens are single use")

	require.NoError(t, f.svc.SignOut(ctx, claims, refreshed.RefreshToken))
	_, err = f.svc.Refresh(ctx, refreshed.RefreshToken)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.False(t, f.svc.IsRevoked(ctx, claims), "without redis nothing is blacklisted")
}

func TestRefreshExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "Ana")
	tokens, err := f.svc.SignIn(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)

	f.now = f.now.Add(25 * time.Hour)
	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestEmailConfirmationFlow(t *testing.T) {
	f := newFixture(t)
	f.svc.Config.Auth.RequireEmailConfirmation = true
	ctx := context.Background()

	res, err := f.svc.SignUp(ctx, "ana@example.com", "secret1", "Ana")
	require.NoError(t, err)
	assert.True(t, res.ConfirmationRequired)

	_, err = f.svc.SignIn(ctx, "ana@example.com", "secret1")
	assert.Equal(t, KindUnauthorized, KindOf(err))

	require.NoError(t, f.svc.ResendConfirmation(ctx, "ana@example.com"))
	require.NoError(t, f.svc.ResendConfirmation(ctx, "ghost@example.com"))
	assert.Len(t, f.notifier.links, 2)

	token := f.notifier.lastToken(t)
	require.NoError(t, f.svc.ConfirmEmail(ctx, token))
	assert.Equal(t, KindConflict, KindOf(f.svc.ConfirmEmail(ctx, token)))
	assert.Equal(t, KindNotFound, KindOf(f.svc.ConfirmEmail(ctx, "bogus")))
	assert.Equal(t, KindConflict, KindOf(f.svc.ResendConfirmation(ctx, "ana@example.com")))

	_, err = f.svc.SignIn(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
}

func TestResolveRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giver := f.user(t, "Giver")
	recv := f.user(t, "Recv")
	id := f.tipID(t, recv.ID)

	_, err := f.svc.ResolveRecipient(ctx, "   ")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.svc.ResolveRecipient(ctx, "TK-000000")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "TipID not found", err.Error())

	_, err = f.svc.SubmitTip(ctx, giver.ID, TipInput{TipID: id, Amount: "4.50"})
	require.NoError(t, err)
	_, err = f.svc.SubmitTip(ctx, giver.ID, TipInput{TipID: id, Amount: "0.50"})
	require.NoError(t, err)

	payload := `{"type":"tip","tip_id":"` + strings.ToLower(id) + `"}`
	v, err := f.svc.ResolveRecipient(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, recv.ID, v.UserID)
	assert.Equal(t, "Recv", v.DisplayName)
	assert.Equal(t, 2, v.TipCount)
	assert.True(t, v.TotalTips.Equal(decimal.NewFromInt(5)), "total %s", v.TotalTips)

	_, err = f.svc.SetTipIDActive(ctx, recv.ID, false)
	require.NoError(t, err)
	_, err = f.svc.ResolveRecipient(ctx, id)
	assert.Equal(t, KindNotFound, KindOf(err))
}

type missingProfiles struct {
	*repo.Memory
}

func (missingProfiles) GetProfile(context.Context, string) (models.Profile, error) {
	return models.Profile{}, repo.ErrNotFound
}

func TestResolveRecipientInconsistentState(t *testing.T) {
	f := newFixture(t)
	recv := f.user(t, "Recv")
	id := f.tipID(t, recv.ID)

	f.svc.Store = missingProfiles{f.store}
	_, err := f.svc.ResolveRecipient(context.Background(), id)
	assert.Equal(t, KindInconsistent, KindOf(err))
}

func TestSubmitTipRejectsBadAmountsBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giver := f.user(t, "Giver")
	recv := f.user(t, "Recv")
	id := f.tipID(t, recv.ID)

	for _, amount := range []string{"", "0", "0.00", "abc", "NaN", "-3", "1.234"} {
		_, err := f.svc.SubmitTip(ctx, giver.ID, TipInput{TipID: id, Amount: amount})
		assert.Equal(t, KindValidation, KindOf(err), "amount %q", amount)
	}
	_, err := f.svc.SubmitTip(ctx, recv.ID, TipInput{TipID: id, Amount: "1"})
	assert.Equal(t, KindValidation, KindOf(err), "self tip")
	_, err = f.svc.SubmitTip(ctx, giver.ID, TipInput{Amount: "1"})
	assert.Equal(t, KindValidation, KindOf(err), "no recipient")

	tips, err := f.store.ListTips(ctx)
	require.NoError(t, err)
	assert.Empty(t, tips)
}

func TestSubmitTipCreditsPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	giver := f.user(t, "Giver")
	recv := f.user(t, "Recv")

	res, err := f.svc.SubmitTip(ctx, giver.ID, TipInput{RecipientID: recv.ID, Amount: "12.55", IsAnonymous: true})
	require.NoError(t, err)
	assert.Equal(t, int64(125), res.PointsEarned)
	assert.Equal(t, f.svc.EstimatePoints(decimal.RequireFromString("12.55")), res.PointsEarned)
	assert.True(t, res.Tip.IsAnonymous)
	assert.Equal(t, "Recv", res.Recipient)

	var names []string
	for _, b := range res.NewBadges {
		names = append(names, b.Badge.Name)
	}
	assert.Equal(t, []string{"First Step", "Kind Heart"}, names)

	_, err = f.svc.SubmitTip(ctx, giver.ID, TipInput{RecipientID: "missing", Amount: "1"})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "Ana")
	ben := f.user(t, "Ben")

	_, err := f.svc.SubmitTip(ctx, ana.ID, TipInput{RecipientID: ben.ID, Amount: "5"})
	require.NoError(t, err)
	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.CheckIn(ctx, ana.ID, CheckinInput{EventName: "Park cleanup", Hours: "1.25"})
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, ana.ID, CheckinInput{EventName: "Food bank", Hours: "1.25"})
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, ben.ID, CheckinInput{EventName: "Food bank", Hours: "10"})
	require.NoError(t, err)

	d, err := f.svc.Dashboard(ctx, ana.ID)
	require.NoError(t, err)
	// 5 × 10 for the tip, 31 + 31 for 1.25h at 25 per hour.
	assert.Equal(t, int64(112), d.KindnessPoints)
	assert.Equal(t, 1, d.TotalTips)
	assert.Equal(t, "2.5", d.VolunteerHours.String())
	require.NotNil(t, d.NextBadge)
	assert.Equal(t, "Community Helper", d.NextBadge.Badge.Name)
	assert.Equal(t, int64(138), d.NextBadge.PointsToNext)
	assert.Len(t, d.Recent, 3)
	assert.Equal(t, "Just now", d.Recent[0].When)
	assert.Equal(t, "2h ago", d.Recent[2].When)
	assert.Nil(t, d.GlobalRank)

	require.NotNil(t, d.Leaderboard)
	assert.Equal(t, 2, d.Leaderboard.Rank)
	require.NotNil(t, d.RankProgress)
	// Ben has 250, Ana 112 and nobody below her.
	assert.Equal(t, 45, *d.RankProgress)
}

type schemaless struct {
	*repo.Memory
}

func (schemaless) ListActivity(context.Context, string) ([]models.ActivityLogEntry, error) {
	return nil, &pgconn.PgError{Code: "42P01", Message: `relation "activity_log" does not exist`}
}

func TestDashboardSchemaMissing(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	f.svc.Store = schemaless{f.store}

	_, err := f.svc.Dashboard(context.Background(), ana.ID)
	assert.Equal(t, KindSchema, KindOf(err))
}

func TestLeaderboardInvalidatedByWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "Ana")
	ben := f.user(t, "Ben")
	f.user(t, "Cy")

	board, err := f.svc.Leaderboard(ctx, leaderboard.AllTime)
	require.NoError(t, err)
	assert.Empty(t, board.Entries, "principals without points are not ranked")

	_, err = f.svc.SubmitTip(ctx, ana.ID, TipInput{RecipientID: ben.ID, Amount: "3"})
	require.NoError(t, err)

	v, err := f.svc.LeaderboardFor(ctx, ana.ID, leaderboard.AllTime)
	require.NoError(t, err)
	require.Len(t, v.Entries, 1)
	require.NotNil(t, v.Me)
	assert.Equal(t, 1, v.Me.Rank)
	assert.Nil(t, v.Progress)

	v, err = f.svc.LeaderboardFor(ctx, ben.ID, leaderboard.Week)
	require.NoError(t, err)
	assert.Nil(t, v.Me)
}

func TestLeaderboardWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "Ana")
	ben := f.user(t, "Ben")

	_, err := f.svc.CheckIn(ctx, ana.ID, CheckinInput{EventName: "Old shift", Hours: "4"})
	require.NoError(t, err)
	f.now = f.now.Add(10 * 24 * time.Hour)
	_, err = f.svc.CheckIn(ctx, ben.ID, CheckinInput{EventName: "New shift", Hours: "1"})
	require.NoError(t, err)

	week, err := f.svc.Leaderboard(ctx, leaderboard.Week)
	require.NoError(t, err)
	require.Len(t, week.Entries, 1)
	assert.Equal(t, ben.ID, week.Entries[0].UserID)

	month, err := f.svc.Leaderboard(ctx, leaderboard.Month)
	require.NoError(t, err)
	require.Len(t, month.Entries, 2)
	assert.Equal(t, ana.ID, month.Entries[0].UserID)
}

func TestCheckInWithCatalogEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "Ana")

	events, err := f.svc.ListEvents(ctx, "riverside")
	require.NoError(t, err)
	require.Len(t, events, 1)
	event := events[0]

	res, err := f.svc.CheckIn(ctx, ana.ID, CheckinInput{EventID: &event.ID, Hours: "3"})
	require.NoError(t, err)
	assert.Equal(t, event.KarmaPoints, res.PointsEarned)
	assert.Equal(t, event.Name, res.Checkin.EventName)
	require.NotNil(t, res.Checkin.Location)
	assert.Equal(t, event.Location, *res.Checkin.Location)

	bogus := "missing"
	_, err = f.svc.CheckIn(ctx, ana.ID, CheckinInput{EventID: &bogus, Hours: "1"})
	assert.Equal(t, KindValidation, KindOf(err))
	for _, hours := range []string{"", "0", "-1", "x", "0.004", "1.239"} {
		_, err = f.svc.CheckIn(ctx, ana.ID, CheckinInput{EventName: "Shift", Hours: hours})
		assert.Equal(t, KindValidation, KindOf(err), "hours %q", hours)
	}
	_, err = f.svc.CheckIn(ctx, ana.ID, CheckinInput{EventName: " ", Hours: "1"})
	assert.Equal(t, KindValidation, KindOf(err))

	list, err := f.svc.Checkins(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEventsCalendar(t *testing.T) {
	f := newFixture(t)
	cal, err := f.svc.EventsCalendar(context.Background())
	require.NoError(t, err)
	assert.Contains(t, cal, "SUMMARY:Riverside Cleanup")
}

func TestProfileUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "Ana")
	ben := f.user(t, "Ben")

	_, err := f.svc.UpdateProfile(ctx, ana.ID, ProfileInput{DisplayName: ""})
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.svc.UpdateProfile(ctx, ana.ID, ProfileInput{DisplayName: "Ana", Tags: []string{"music", " "}})
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.svc.UpdateProfile(ctx, ana.ID, ProfileInput{DisplayName: "Ana", Tags: []string{"music", "Music"}})
	assert.Equal(t, KindValidation, KindOf(err))

	p, err := f.svc.UpdateProfile(ctx, ana.ID, ProfileInput{
		DisplayName: "  Ana B ",
		Bio:         "Busker",
		Tags:        []string{" music ", "art"},
		Location:    "Old Town",
		IsPublic:    false,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana B", p.DisplayName)
	assert.Equal(t, []string{"music", "art"}, p.Tags)

	_, err = f.svc.PublicProfile(ctx, ben.ID, ana.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
	own, err := f.svc.PublicProfile(ctx, ana.ID, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "Old Town", own.Location)
}

func TestTipIDLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "Ana")

	_, err := f.svc.GetTipID(ctx, ana.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = f.svc.TipIDQR(ctx, ana.ID, 0)
	assert.Equal(t, KindNotFound, KindOf(err))

	code, err := f.svc.EnsureTipID(ctx, ana.ID)
	require.NoError(t, err)
	assert.True(t, tipid.Valid(code.TipID))

	again, err := f.svc.EnsureTipID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, code.TipID, again.TipID)

	off, err := f.svc.SetTipIDActive(ctx, ana.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	_, err = f.svc.TipIDQR(ctx, ana.ID, 0)
	assert.Equal(t, KindValidation, KindOf(err))

	on, err := f.svc.EnsureTipID(ctx, ana.ID)
	require.NoError(t, err)
	assert.True(t, on.IsActive)
	assert.Equal(t, code.TipID, on.TipID)

	png, err := f.svc.TipIDQR(ctx, ana.ID, 256)
	require.NoError(t, err)
	text, err := qr.Decode(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, code.TipID, tipid.Normalize(text))

	v, err := f.svc.ScanImage(ctx, bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, ana.ID, v.UserID)
}

func TestImpact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "Ana")
	ben := f.user(t, "Ben")
	cy := f.user(t, "Cy")

	_, err := f.svc.SubmitTip(ctx, ana.ID, TipInput{RecipientID: cy.ID, Amount: "2.50"})
	require.NoError(t, err)
	_, err = f.svc.SubmitTip(ctx, ben.ID, TipInput{RecipientID: cy.ID, Amount: "1"})
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, cy.ID, CheckinInput{EventName: "Shift", Hours: "2"})
	require.NoError(t, err)

	imp, err := f.svc.Impact(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.5", imp.TotalTipAmount.String())
	assert.Equal(t, 2, imp.TipCount)
	assert.Equal(t, 2, imp.DistinctTippers)
	assert.Equal(t, 1, imp.DistinctRecipients)
	assert.Equal(t, "2", imp.VolunteerHours.String())
	assert.Equal(t, 1, imp.CheckinCount)
	assert.Equal(t, int64(25+10+50), imp.KarmaIndex)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"5", "5", true},
		{" 1.50 ", "1.5", true},
		{"1.500", "1.5", true},
		{"0.01", "0.01", true},
		{"0", "", false},
		{"1.005", "", false},
		{"1e12", "", false},
		{"Infinity", "", false},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

// gatedStore holds ListActivitySince until release is closed and counts the calls.
type gatedStore struct {
	Store
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newGatedStore(inner Store) *gatedStore {
	return &gatedStore{Store: inner, started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gatedStore) ListActivitySince(ctx context.Context, since *time.Time) ([]models.ActivityLogEntry, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Store.ListActivitySince(ctx, since)
}

func TestLeaderboardRefreshOutlivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	ben := f.user(t, "Ben")
	_, err := f.svc.SubmitTip(context.Background(), ana.ID, TipInput{RecipientID: ben.ID, Amount: "2"})
	require.NoError(t, err)

	gate := newGatedStore(f.store)
	f.svc.Store = gate

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.Leaderboard(ctxA, leaderboard.AllTime)
		errA <- err
	}()
	<-gate.started

	type result struct {
		board leaderboard.Board
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		board, err := f.svc.Leaderboard(context.Background(), leaderboard.AllTime)
		resB <- result{board, err}
	}()

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(gate.release)
	res := <-resB
	require.NoError(t, res.err)
	require.Len(t, res.board.Entries, 1)
	assert.Equal(t, ana.ID, res.board.Entries[0].UserID)
}

func TestLeaderboardCoalescesAndDiscardsStaleBuilds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "Ana")
	ben := f.user(t, "Ben")
	_, err := f.svc.SubmitTip(ctx, ana.ID, TipInput{RecipientID: ben.ID, Amount: "2"})
	require.NoError(t, err)

	gate := newGatedStore(f.store)
	f.svc.Store = gate

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	call := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Leaderboard(ctx, leaderboard.AllTime)
			errs <- err
		}()
	}
	call()
	<-gate.started
	for i := 1; i < callers; i++ {
		call()
	}
	// Let the followers reach the in-flight build before it completes.
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), gate.calls.Load(), "concurrent refreshes share one build")

	// A write that lands while a build is running makes that build stale.
	f.now = f.now.Add(2 * time.Minute)
	gate.release = make(chan struct{})
	stale := make(chan error, 1)
	go func() {
		_, err := f.svc.Leaderboard(ctx, leaderboard.AllTime)
		stale <- err
	}()
	<-gate.started
	_, err = f.svc.SubmitTip(ctx, ben.ID, TipInput{RecipientID: ana.ID, Amount: "1"})
	require.NoError(t, err)
	close(gate.release)
	require.NoError(t, <-stale)
	assert.Equal(t, int32(2), gate.calls.Load())

	board, err := f.svc.Leaderboard(ctx, leaderboard.AllTime)
	require.NoError(t, err)
	assert.Equal(t, int32(3), gate.calls.Load(), "stale result is not served from cache")
	require.Len(t, board.Entries, 2)
}
