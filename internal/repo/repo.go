package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tapkind/internal/models"
)

// Repo is the PostgreSQL store.
type Repo struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{Pool: pool}
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.Pool.Ping(ctx)
}

// CreateUser inserts the account and its profile in one transaction.
func (r *Repo) CreateUser(ctx context.Context, email, passwordHash, displayName string) (models.User, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback(ctx)

	var u models.User
	err = tx.QueryRow(ctx, `INSERT INTO users (email, password_hash) VALUES ($1, $2)
		RETURNING id, email, password_hash, email_confirmed_at, created_at, updated_at`, email, passwordHash).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.EmailConfirmedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, mapError(err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO profiles (user_id, display_name) VALUES ($1, $2)`, u.ID, displayName); err != nil {
		return models.User{}, mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, err
	}
	return u, nil
}

const userColumns = `id, email, password_hash, email_confirmed_at, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.EmailConfirmedAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, mapError(err)
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(r.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email))
}

func (r *Repo) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	return scanUser(r.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (r *Repo) CreateEmailConfirmation(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.Pool.Exec(ctx, `INSERT INTO email_confirmations (token, user_id, expires_at) VALUES ($1, $2, $3)`, token, userID, expiresAt)
	return mapError(err)
}

// ConfirmEmail consumes token and marks its user confirmed. It returns the user id.
func (r *Repo) ConfirmEmail(ctx context.Context, token string, now time.Time) (string, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var userID string
	err = tx.QueryRow(ctx, `UPDATE email_confirmations SET used_at=$2
		WHERE token=$1 AND used_at IS NULL AND expires_at > $2
		RETURNING user_id`, token, now).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		var expiresAt time.Time
		var usedAt *time.Time
		checkErr := tx.QueryRow(ctx, `SELECT expires_at, used_at FROM email_confirmations WHERE token=$1`, token).Scan(&expiresAt, &usedAt)
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		if checkErr != nil {
			return "", checkErr
		}
		if usedAt != nil {
			return "", ErrUsed
		}
		return "", ErrExpired
	}
	if err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET email_confirmed_at=COALESCE(email_confirmed_at, $2), updated_at=$2 WHERE id=$1`, userID, now); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return userID, nil
}

func (r *Repo) CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.Pool.Exec(ctx, `INSERT INTO sessions (user_id, token, expires_at) VALUES ($1, $2, $3)`, userID, token, expiresAt)
	return mapError(err)
}

func (r *Repo) GetSession(ctx context.Context, token string) (models.Session, error) {
	var s models.Session
	err := r.Pool.QueryRow(ctx, `SELECT id, user_id, token, expires_at, created_at FROM sessions WHERE token=$1`, token).
		Scan(&s.ID, &s.UserID, &s.Token, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	return s, err
}

func (r *Repo) DeleteSession(ctx context.Context, token string) error {
	cmd, err := r.Pool.Exec(ctx, `DELETE FROM sessions WHERE token=$1`, token)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const profileColumns = `user_id, display_name, avatar_url, bio, story, tags, location, is_public, created_at, updated_at`

func scanProfile(row pgx.Row) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.UserID, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.Story, &p.Tags, &p.Location, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, mapError(err)
}

func (r *Repo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	return scanProfile(r.Pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID))
}

func (r *Repo) UpdateProfile(ctx context.Context, p models.Profile) error {
	cmd, err := r.Pool.Exec(ctx, `UPDATE profiles SET display_name=$1, avatar_url=$2, bio=$3, story=$4, tags=$5, location=$6, is_public=$7, updated_at=now()
		WHERE user_id=$8`, p.DisplayName, p.AvatarURL, p.Bio, p.Story, p.Tags, p.Location, p.IsPublic, p.UserID)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

const codeColumns = `user_id, tip_id, is_active, created_at, updated_at`

func scanCode(row pgx.Row) (models.RecipientCode, error) {
	var c models.RecipientCode
	err := row.Scan(&c.UserID, &c.TipID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RecipientCode{}, ErrNotFound
	}
	return c, mapError(err)
}

func (r *Repo) GetRecipientCode(ctx context.Context, userID string) (models.RecipientCode, error) {
	return scanCode(r.Pool.QueryRow(ctx, `SELECT `+codeColumns+` FROM recipient_codes WHERE user_id=$1`, userID))
}

func (r *Repo) FindActiveRecipientCode(ctx context.Context, tipID string) (models.RecipientCode, error) {
	return scanCode(r.Pool.QueryRow(ctx, `SELECT `+codeColumns+` FROM recipient_codes WHERE tip_id=upper($1) AND is_active`, tipID))
}

// CreateRecipientCode fails with ErrConflict when the tip id is taken or the user already has a code.
func (r *Repo) CreateRecipientCode(ctx context.Context, userID, tipID string) (models.RecipientCode, error) {
	return scanCode(r.Pool.QueryRow(ctx, `INSERT INTO recipient_codes (user_id, tip_id, is_active) VALUES ($1, $2, true)
		RETURNING `+codeColumns, userID, tipID))
}

func (r *Repo) SetRecipientCodeActive(ctx context.Context, userID string, active bool) error {
	cmd, err := r.Pool.Exec(ctx, `UPDATE recipient_codes SET is_active=$1, updated_at=now() WHERE user_id=$2`, active, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
