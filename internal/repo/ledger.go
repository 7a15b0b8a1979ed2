package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"tapkind/internal/models"
)

// Credit is the activity_log row appended alongside a tip or check-in.
type Credit struct {
	ActivityType string
	Points       int64
	Description  string
}

const tipColumns = `id, giver_id, recipient_id, amount, is_anonymous, created_at`

func scanTip(row pgx.Row) (models.Tip, error) {
	var t models.Tip
	err := row.Scan(&t.ID, &t.GiverID, &t.RecipientID, &t.Amount, &t.IsAnonymous, &t.CreatedAt)
	return t, err
}

// CreateTip records the tip, credits the giver and awards any badge the new total reaches,
// all in one transaction.
func (r *Repo) CreateTip(ctx context.Context, tip models.Tip, credit Credit) (models.Tip, []models.EarnedBadge, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return models.Tip{}, nil, err
	}
	defer tx.Rollback(ctx)

	created, err := scanTip(tx.QueryRow(ctx, `INSERT INTO tips (giver_id, recipient_id, amount, is_anonymous)
		VALUES ($1, $2, $3, $4) RETURNING `+tipColumns, tip.GiverID, tip.RecipientID, tip.Amount, tip.IsAnonymous))
	if err != nil {
		return models.Tip{}, nil, mapError(err)
	}
	earned, err := creditAndAward(ctx, tx, tip.GiverID, credit)
	if err != nil {
		return models.Tip{}, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Tip{}, nil, err
	}
	return created, earned, nil
}

func (r *Repo) queryTips(ctx context.Context, sql string, args ...any) ([]models.Tip, error) {
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.Tip
	for rows.Next() {
		t, err := scanTip(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *Repo) ListTipsByRecipient(ctx context.Context, userID string) ([]models.Tip, error) {
	return r.queryTips(ctx, `SELECT `+tipColumns+` FROM tips WHERE recipient_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) ListTipsByGiver(ctx context.Context, userID string) ([]models.Tip, error) {
	return r.queryTips(ctx, `SELECT `+tipColumns+` FROM tips WHERE giver_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) ListTips(ctx context.Context) ([]models.Tip, error) {
	return r.queryTips(ctx, `SELECT `+tipColumns+` FROM tips ORDER BY created_at`)
}

const checkinColumns = `id, user_id, event_id, event_name, location, hours, notes, created_at`

func scanCheckin(row pgx.Row) (models.VolunteerCheckin, error) {
	var c models.VolunteerCheckin
	err := row.Scan(&c.ID, &c.UserID, &c.EventID, &c.EventName, &c.Location, &c.Hours, &c.Notes, &c.CreatedAt)
	return c, err
}

func (r *Repo) CreateCheckin(ctx context.Context, c models.VolunteerCheckin, credit Credit) (models.VolunteerCheckin, []models.EarnedBadge, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return models.VolunteerCheckin{}, nil, err
	}
	defer tx.Rollback(ctx)

	created, err := scanCheckin(tx.QueryRow(ctx, `INSERT INTO volunteer_checkins (user_id, event_id, event_name, location, hours, notes)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+checkinColumns,
		c.UserID, c.EventID, c.EventName, c.Location, c.Hours, c.Notes))
	if err != nil {
		return models.VolunteerCheckin{}, nil, mapError(err)
	}
	earned, err := creditAndAward(ctx, tx, c.UserID, credit)
	if err != nil {
		return models.VolunteerCheckin{}, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.VolunteerCheckin{}, nil, err
	}
	return created, earned, nil
}

func (r *Repo) queryCheckins(ctx context.Context, sql string, args ...any) ([]models.VolunteerCheckin, error) {
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.VolunteerCheckin
	for rows.Next() {
		c, err := scanCheckin(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repo) ListCheckinsByUser(ctx context.Context, userID string) ([]models.VolunteerCheckin, error) {
	return r.queryCheckins(ctx, `SELECT `+checkinColumns+` FROM volunteer_checkins WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) ListCheckins(ctx context.Context) ([]models.VolunteerCheckin, error) {
	return r.queryCheckins(ctx, `SELECT `+checkinColumns+` FROM volunteer_checkins ORDER BY created_at`)
}

const activityColumns = `id, user_id, activity_type, points_earned, description, created_at`

func (r *Repo) queryActivity(ctx context.Context, sql string, args ...any) ([]models.ActivityLogEntry, error) {
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.ActivityLogEntry
	for rows.Next() {
		var a models.ActivityLogEntry
		if err := rows.Scan(&a.ID, &a.UserID, &a.ActivityType, &a.PointsEarned, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListActivity returns the user's ledger, newest first.
func (r *Repo) ListActivity(ctx context.Context, userID string) ([]models.ActivityLogEntry, error) {
	return r.queryActivity(ctx, `SELECT `+activityColumns+` FROM activity_log WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

// ListActivitySince returns every ledger row created at or after since, oldest first.
// A nil since means the whole ledger.
func (r *Repo) ListActivitySince(ctx context.Context, since *time.Time) ([]models.ActivityLogEntry, error) {
	if since == nil {
		return r.queryActivity(ctx, `SELECT `+activityColumns+` FROM activity_log ORDER BY created_at, id`)
	}
	return r.queryActivity(ctx, `SELECT `+activityColumns+` FROM activity_log WHERE created_at >= $1 ORDER BY created_at, id`, *since)
}

func creditAndAward(ctx context.Context, tx pgx.Tx, userID string, credit Credit) ([]models.EarnedBadge, error) {
	if _, err := tx.Exec(ctx, `INSERT INTO activity_log (user_id, activity_type, points_earned, description)
		VALUES ($1, $2, $3, $4)`, userID, credit.ActivityType, credit.Points, credit.Description); err != nil {
		return nil, mapError(err)
	}
	rows, err := tx.Query(ctx, `WITH awarded AS (
			INSERT INTO user_badges (user_id, badge_id)
			SELECT $1, b.id FROM badges b
			WHERE b.points_required <= (SELECT COALESCE(SUM(points_earned), 0) FROM activity_log WHERE user_id=$1)
			ON CONFLICT DO NOTHING
			RETURNING badge_id, earned_at
		)
		SELECT b.id, b.name, b.description, b.icon, b.points_required, a.earned_at
		FROM awarded a JOIN badges b ON b.id = a.badge_id
		ORDER BY b.points_required`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var earned []models.EarnedBadge
	for rows.Next() {
		e := models.EarnedBadge{UserID: userID}
		if err := rows.Scan(&e.Badge.ID, &e.Badge.Name, &e.Badge.Description, &e.Badge.Icon, &e.Badge.PointsRequired, &e.EarnedAt); err != nil {
			return nil, err
		}
		earned = append(earned, e)
	}
	return earned, rows.Err()
}
