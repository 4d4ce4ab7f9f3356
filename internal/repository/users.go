package repository

import (
	"context"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/jmoiron/sqlx"
)

// UsersRepository is authored on the response side and mirrored to the
// request side through the users snapshot.
type UsersRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	SelectSnapshot(ctx context.Context) ([]model.Record, error)
	Upsert(ctx context.Context, rec model.Record) (bool, error)
}

type UsersRepositoryImpl struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUsersRepository(db *sqlx.DB) *UsersRepositoryImpl {
	return &UsersRepositoryImpl{db: db, now: time.Now}
}

var _ UsersRepository = (*UsersRepositoryImpl)(nil)

const userColumns = `id, username, email, profile_type, is_active, rate_limit_minute, rate_limit_hour, rate_limit_day, created_at, updated_at`

func (r *UsersRepositoryImpl) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SelectSnapshot returns every user, inactive ones included, so that a
// deactivation reaches the other side.
func (r *UsersRepositoryImpl) SelectSnapshot(ctx context.Context) ([]model.Record, error) {
	var rows []model.User
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, err
	}
	out := make([]model.Record, len(rows))
	for i, u := range rows {
		out[i] = u.Record()
	}
	return out, nil
}

// Upsert inserts or updates a user from a snapshot line. MySQL reports one
// affected row for an insert and two for a changed row.
func (r *UsersRepositoryImpl) Upsert(ctx context.Context, rec model.Record) (bool, error) {
	u, ok := rec.(model.UserRecord)
	if !ok {
		return false, wrongRecord("user", rec)
	}
	updated := u.UpdatedAt
	if updated.IsZero() {
		updated = r.now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users
		    (id, username, email, profile_type, is_active,
		     rate_limit_minute, rate_limit_hour, rate_limit_day, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		    username          = VALUES(username),
		    email             = VALUES(email),
		    profile_type      = VALUES(profile_type),
		    is_active         = VALUES(is_active),
		    rate_limit_minute = VALUES(rate_limit_minute),
		    rate_limit_hour   = VALUES(rate_limit_hour),
		    rate_limit_day    = VALUES(rate_limit_day),
		    updated_at        = VALUES(updated_at)
	`, u.ID, u.Username, u.Email, u.ProfileType, u.IsActive,
		u.RateLimits.Minute, u.RateLimits.Hour, u.RateLimits.Day, updated, updated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
