package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/domain"
	"github.com/nkiryanov/pixelforge/internal/models"
)

type AccountRepo struct {
	DB DBTX
}

// Profile is replaced on every login, created_at is kept from the first one
const upsertAccount = `-- name: UpsertAccount
INSERT INTO accounts (id, first_name, last_name, username, photo_url, language_code, is_premium, allows_write_to_pm, created_at, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (id) DO UPDATE
SET first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	username = EXCLUDED.username,
	photo_url = EXCLUDED.photo_url,
	language_code = EXCLUDED.language_code,
	is_premium = EXCLUDED.is_premium,
	allows_write_to_pm = EXCLUDED.allows_write_to_pm,
	last_seen = EXCLUDED.last_seen
RETURNING id, first_name, last_name, username, photo_url, language_code, is_premium, allows_write_to_pm, created_at, last_seen
`

func (r *AccountRepo) Upsert(ctx context.Context, user models.User, seenAt time.Time) (domain.Account, error) {
	rows, _ := r.DB.Query(ctx, upsertAccount,
		user.ID, user.FirstName, user.LastName, user.Username, user.PhotoURL, user.LanguageCode, user.IsPremium, user.AllowsWriteToPM,
		seenAt,
	)
	account, err := pgx.CollectOneRow(rows, rowToAccount)
	if err != nil {
		return account, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

const getAccount = `-- name: GetAccount
SELECT id, first_name, last_name, username, photo_url, language_code, is_premium, allows_write_to_pm, created_at, last_seen
FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccount(ctx context.Context, userID int64) (domain.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccount, userID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (domain.Account, error) {
	var a domain.Account
	u := &a.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.PhotoURL, &u.LanguageCode, &u.IsPremium, &u.AllowsWriteToPM, &a.CreatedAt, &a.LastSeen)
	return a, err
}

var _ domain.AccountRepo = (*AccountRepo)(nil)
