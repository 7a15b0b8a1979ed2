package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tapkind/internal/models"
)

// ListBadges returns the catalog ordered by ascending threshold.
func (r *Repo) ListBadges(ctx context.Context) ([]models.Badge, error) {
	rows, err := r.Pool.Query(ctx, `SELECT id, name, description, icon, points_required FROM badges ORDER BY points_required, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.Badge
	for rows.Next() {
		var b models.Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.PointsRequired); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r *Repo) queryEarned(ctx context.Context, sql string, args ...any) ([]models.EarnedBadge, error) {
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.EarnedBadge
	for rows.Next() {
		var e models.EarnedBadge
		if err := rows.Scan(&e.UserID, &e.EarnedAt, &e.Badge.ID, &e.Badge.Name, &e.Badge.Description, &e.Badge.Icon, &e.Badge.PointsRequired); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

const earnedSelect = `SELECT ub.user_id, ub.earned_at, b.id, b.name, b.description, b.icon, b.points_required
	FROM user_badges ub JOIN badges b ON b.id = ub.badge_id`

func (r *Repo) ListEarnedBadges(ctx context.Context, userID string) ([]models.EarnedBadge, error) {
	return r.queryEarned(ctx, earnedSelect+` WHERE ub.user_id=$1 ORDER BY ub.earned_at`, userID)
}

func (r *Repo) ListAllEarnedBadges(ctx context.Context) ([]models.EarnedBadge, error) {
	return r.queryEarned(ctx, earnedSelect+` ORDER BY ub.earned_at`)
}

// UpsertBadge inserts or updates a badge keyed by name.
func (r *Repo) UpsertBadge(ctx context.Context, b models.Badge) (models.Badge, error) {
	err := r.Pool.QueryRow(ctx, `INSERT INTO badges (name, description, icon, points_required) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET description=EXCLUDED.description, icon=EXCLUDED.icon, points_required=EXCLUDED.points_required
		RETURNING id`, b.Name, b.Description, b.Icon, b.PointsRequired).Scan(&b.ID)
	return b, mapError(err)
}

const eventColumns = `id, name, organization, location, starts_at, duration_minutes, karma_points, description`

func scanEvent(row pgx.Row) (models.VolunteerEvent, error) {
	var e models.VolunteerEvent
	err := row.Scan(&e.ID, &e.Name, &e.Organization, &e.Location, &e.StartsAt, &e.DurationMinutes, &e.KarmaPoints, &e.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.VolunteerEvent{}, ErrNotFound
	}
	return e, mapError(err)
}

func (r *Repo) ListVolunteerEvents(ctx context.Context) ([]models.VolunteerEvent, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+eventColumns+` FROM volunteer_events ORDER BY starts_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.VolunteerEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r *Repo) GetVolunteerEvent(ctx context.Context, id string) (models.VolunteerEvent, error) {
	return scanEvent(r.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM volunteer_events WHERE id=$1`, id))
}

// UpsertVolunteerEvent inserts or updates an event keyed by name.
func (r *Repo) UpsertVolunteerEvent(ctx context.Context, e models.VolunteerEvent) (models.VolunteerEvent, error) {
	err := r.Pool.QueryRow(ctx, `INSERT INTO volunteer_events (name, organization, location, starts_at, duration_minutes, karma_points, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET organization=EXCLUDED.organization, location=EXCLUDED.location,
			starts_at=EXCLUDED.starts_at, duration_minutes=EXCLUDED.duration_minutes,
			karma_points=EXCLUDED.karma_points, description=EXCLUDED.description
		RETURNING id`, e.Name, e.Organization, e.Location, e.StartsAt, e.DurationMinutes, e.KarmaPoints, e.Description).Scan(&e.ID)
	return e, mapError(err)
}
