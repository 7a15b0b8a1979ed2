package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tapkind/internal/models"
	"tapkind/internal/tipid"
)

// Memory is an in-process store with the same semantics as Repo.
// It backs tests and `serve --store=memory`.
type Memory struct {
	// Now stamps created rows; defaults to time.Now.
	Now func() time.Time

	mu            sync.Mutex
	users         map[string]models.User
	emails        map[string]string
	sessions      map[string]models.Session
	confirmations map[string]models.EmailConfirmation
	profiles      map[string]models.Profile
	codes         map[string]models.RecipientCode
	codeOwners    map[string]string
	tips          []models.Tip
	checkins      []models.VolunteerCheckin
	activity      []models.ActivityLogEntry
	badges        []models.Badge
	earned        []models.EarnedBadge
	events        []models.VolunteerEvent
}

func NewMemory() *Memory {
	return &Memory{
		Now:           time.Now,
		users:         map[string]models.User{},
		emails:        map[string]string{},
		sessions:      map[string]models.Session{},
		confirmations: map[string]models.EmailConfirmation{},
		profiles:      map[string]models.Profile{},
		codes:         map[string]models.RecipientCode{},
		codeOwners:    map[string]string{},
	}
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateUser(_ context.Context, email, passwordHash, displayName string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(email)
	if _, ok := m.emails[key]; ok {
		return models.User{}, ErrConflict
	}
	now := m.now()
	u := models.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	m.emails[key] = u.ID
	m.profiles[u.ID] = models.Profile{UserID: u.ID, DisplayName: displayName, Tags: []string{}, IsPublic: true, CreatedAt: now, UpdatedAt: now}
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) GetUserByID(_ context.Context, userID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) CreateEmailConfirmation(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return ErrInvalid
	}
	if _, ok := m.confirmations[token]; ok {
		return ErrConflict
	}
	m.confirmations[token] = models.EmailConfirmation{Token: token, UserID: userID, ExpiresAt: expiresAt, CreatedAt: m.now()}
	return nil
}

func (m *Memory) ConfirmEmail(_ context.Context, token string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.confirmations[token]
	if !ok {
		return "", ErrNotFound
	}
	if c.UsedAt != nil {
		return "", ErrUsed
	}
	if !now.Before(c.ExpiresAt) {
		return "", ErrExpired
	}
	c.UsedAt = &now
	m.confirmations[token] = c
	u := m.users[c.UserID]
	if u.EmailConfirmedAt == nil {
		u.EmailConfirmedAt = &now
	}
	u.UpdatedAt = now
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *Memory) CreateSession(_ context.Context, userID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; ok {
		return ErrConflict
	}
	m.sessions[token] = models.Session{ID: uuid.NewString(), UserID: userID, Token: token, ExpiresAt: expiresAt, CreatedAt: m.now()}
	return nil
}

func (m *Memory) GetSession(_ context.Context, token string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, token)
	return nil
}

func copyProfile(p models.Profile) models.Profile {
	p.Tags = append([]string{}, p.Tags...)
	return p
}

func (m *Memory) GetProfile(_ context.Context, userID string) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return models.Profile{}, ErrNotFound
	}
	return copyProfile(p), nil
}

func (m *Memory) UpdateProfile(_ context.Context, p models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.profiles[p.UserID]
	if !ok {
		return ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = m.now()
	m.profiles[p.UserID] = copyProfile(p)
	return nil
}

// ListProfiles returns profiles ordered by creation time.
func (m *Memory) ListProfiles(context.Context) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]models.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		res = append(res, copyProfile(p))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].UserID < res[j].UserID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (m *Memory) GetRecipientCode(_ context.Context, userID string) (models.RecipientCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[userID]
	if !ok {
		return models.RecipientCode{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) FindActiveRecipientCode(_ context.Context, tipID string) (models.RecipientCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.codeOwners[strings.ToUpper(tipID)]
	if !ok {
		return models.RecipientCode{}, ErrNotFound
	}
	c := m.codes[owner]
	if !c.IsActive {
		return models.RecipientCode{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) CreateRecipientCode(_ context.Context, userID, tipID string) (models.RecipientCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !tipid.Valid(tipID) {
		return models.RecipientCode{}, ErrInvalid
	}
	if _, ok := m.codes[userID]; ok {
		return models.RecipientCode{}, ErrConflict
	}
	if _, ok := m.codeOwners[tipID]; ok {
		return models.RecipientCode{}, ErrConflict
	}
	now := m.now()
	c := models.RecipientCode{UserID: userID, TipID: tipID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	m.codes[userID] = c
	m.codeOwners[tipID] = userID
	return c, nil
}

func (m *Memory) SetRecipientCodeActive(_ context.Context, userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[userID]
	if !ok {
		return ErrNotFound
	}
	c.IsActive = active
	c.UpdatedAt = m.now()
	m.codes[userID] = c
	return nil
}

func (m *Memory) CreateTip(_ context.Context, tip models.Tip, credit Credit) (models.Tip, []models.EarnedBadge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tip.Amount.IsNegative() {
		return models.Tip{}, nil, ErrInvalid
	}
	if _, ok := m.users[tip.GiverID]; !ok {
		return models.Tip{}, nil, ErrInvalid
	}
	if _, ok := m.users[tip.RecipientID]; !ok {
		return models.Tip{}, nil, ErrInvalid
	}
	tip.ID = uuid.NewString()
	tip.Amount = tip.Amount.Round(2)
	tip.CreatedAt = m.now()
	m.tips = append(m.tips, tip)
	return tip, m.creditAndAward(tip.GiverID, credit, tip.CreatedAt), nil
}

func (m *Memory) ListTipsByRecipient(_ context.Context, userID string) ([]models.Tip, error) {
	return m.filterTips(func(t models.Tip) bool { return t.RecipientID == userID }, true), nil
}

func (m *Memory) ListTipsByGiver(_ context.Context, userID string) ([]models.Tip, error) {
	return m.filterTips(func(t models.Tip) bool { return t.GiverID == userID }, true), nil
}

func (m *Memory) ListTips(context.Context) ([]models.Tip, error) {
	return m.filterTips(func(models.Tip) bool { return true }, false), nil
}

func (m *Memory) filterTips(keep func(models.Tip) bool, newestFirst bool) []models.Tip {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []models.Tip
	for _, t := range m.tips {
		if keep(t) {
			res = append(res, t)
		}
	}
	if newestFirst {
		reverse(res)
	}
	return res
}

func (m *Memory) CreateCheckin(_ context.Context, c models.VolunteerCheckin, credit Credit) (models.VolunteerCheckin, []models.EarnedBadge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !c.Hours.IsPositive() {
		return models.VolunteerCheckin{}, nil, ErrInvalid
	}
	if _, ok := m.users[c.UserID]; !ok {
		return models.VolunteerCheckin{}, nil, ErrInvalid
	}
	if c.EventID != nil && m.eventIndex(*c.EventID) < 0 {
		return models.VolunteerCheckin{}, nil, ErrInvalid
	}
	c.ID = uuid.NewString()
	c.Hours = c.Hours.Round(2)
	c.CreatedAt = m.now()
	m.checkins = append(m.checkins, c)
	return c, m.creditAndAward(c.UserID, credit, c.CreatedAt), nil
}

func (m *Memory) ListCheckinsByUser(_ context.Context, userID string) ([]models.VolunteerCheckin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []models.VolunteerCheckin
	for _, c := range m.checkins {
		if c.UserID == userID {
			res = append(res, c)
		}
	}
	reverse(res)
	return res, nil
}

func (m *Memory) ListCheckins(context.Context) ([]models.VolunteerCheckin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.VolunteerCheckin(nil), m.checkins...), nil
}

func (m *Memory) ListActivity(_ context.Context, userID string) ([]models.ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []models.ActivityLogEntry
	for _, a := range m.activity {
		if a.UserID == userID {
			res = append(res, a)
		}
	}
	reverse(res)
	return res, nil
}

func (m *Memory) ListActivitySince(_ context.Context, since *time.Time) ([]models.ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []models.ActivityLogEntry
	for _, a := range m.activity {
		if since == nil || !a.CreatedAt.Before(*since) {
			res = append(res, a)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// AppendActivity adds a raw ledger row. It exists for seeding fixtures.
func (m *Memory) AppendActivity(entry models.ActivityLogEntry) models.ActivityLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.activity = append(m.activity, entry)
	return entry
}

func (m *Memory) creditAndAward(userID string, credit Credit, at time.Time) []models.EarnedBadge {
	m.activity = append(m.activity, models.ActivityLogEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActivityType: credit.ActivityType,
		PointsEarned: credit.Points,
		Description:  credit.Description,
		CreatedAt:    at,
	})
	var total int64
	for _, a := range m.activity {
		if a.UserID == userID {
			total += a.PointsEarned
		}
	}
	var awarded []models.EarnedBadge
	for _, b := range m.sortedBadges() {
		if b.PointsRequired > total || m.hasBadge(userID, b.ID) {
			continue
		}
		e := models.EarnedBadge{UserID: userID, Badge: b, EarnedAt: at}
		m.earned = append(m.earned, e)
		awarded = append(awarded, e)
	}
	return awarded
}

func (m *Memory) hasBadge(userID, badgeID string) bool {
	for _, e := range m.earned {
		if e.UserID == userID && e.Badge.ID == badgeID {
			return true
		}
	}
	return false
}

func (m *Memory) sortedBadges() []models.Badge {
	res := append([]models.Badge(nil), m.badges...)
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].PointsRequired == res[j].PointsRequired {
			return res[i].Name < res[j].Name
		}
		return res[i].PointsRequired < res[j].PointsRequired
	})
	return res
}

func (m *Memory) ListBadges(context.Context) ([]models.Badge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedBadges(), nil
}

func (m *Memory) ListEarnedBadges(_ context.Context, userID string) ([]models.EarnedBadge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []models.EarnedBadge
	for _, e := range m.earned {
		if e.UserID == userID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *Memory) ListAllEarnedBadges(context.Context) ([]models.EarnedBadge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EarnedBadge(nil), m.earned...), nil
}

func (m *Memory) UpsertBadge(_ context.Context, b models.Badge) (models.Badge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.PointsRequired < 0 {
		return models.Badge{}, ErrInvalid
	}
	for i, cur := range m.badges {
		if cur.Name == b.Name {
			b.ID = cur.ID
			m.badges[i] = b
			for j := range m.earned {
				if m.earned[j].Badge.ID == b.ID {
					m.earned[j].Badge = b
				}
			}
			return b, nil
		}
	}
	b.ID = uuid.NewString()
	m.badges = append(m.badges, b)
	return b, nil
}

func (m *Memory) eventIndex(id string) int {
	for i, e := range m.events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) ListVolunteerEvents(context.Context) ([]models.VolunteerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := append([]models.VolunteerEvent(nil), m.events...)
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].StartsAt.Equal(res[j].StartsAt) {
			return res[i].Name < res[j].Name
		}
		return res[i].StartsAt.Before(res[j].StartsAt)
	})
	return res, nil
}

func (m *Memory) GetVolunteerEvent(_ context.Context, id string) (models.VolunteerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.eventIndex(id); i >= 0 {
		return m.events[i], nil
	}
	return models.VolunteerEvent{}, ErrNotFound
}

func (m *Memory) UpsertVolunteerEvent(_ context.Context, e models.VolunteerEvent) (models.VolunteerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.DurationMinutes <= 0 {
		return models.VolunteerEvent{}, ErrInvalid
	}
	for i, cur := range m.events {
		if cur.Name == e.Name {
			e.ID = cur.ID
			m.events[i] = e
			return e, nil
		}
	}
	e.ID = uuid.NewString()
	m.events = append(m.events, e)
	return e, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
