package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/domain"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const createToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (token, user_id, created_at, expires_at, used_at)
VALUES ($1, $2, $3, $4, NULL)
`

func (r *RefreshTokenRepo) Create(ctx context.Context, token domain.RefreshToken) error {
	_, err := r.DB.Exec(ctx, createToken, token.Token, token.UserID, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Row lock makes concurrent uses of one token see each other: only the first one marks it
const getAndMarkUsed = `-- name: GetAndMarkUsed
WITH prev AS (
	SELECT token, used_at FROM refresh_tokens
	WHERE token = $1
	FOR UPDATE
)
UPDATE refresh_tokens t
SET used_at = COALESCE(t.used_at, $2)
FROM prev
WHERE t.token = prev.token
RETURNING t.user_id, t.created_at, t.expires_at, t.used_at, prev.used_at
`

func (r *RefreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenString string, usedAt time.Time) (domain.RefreshToken, error) {
	var usedBefore *time.Time

	rows, _ := r.DB.Query(ctx, getAndMarkUsed, tokenString, usedAt)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (domain.RefreshToken, error) {
		t := domain.RefreshToken{Token: tokenString}
		err := row.Scan(&t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt, &usedBefore)
		return t, err
	})

	switch {
	case err == nil && usedBefore == nil:
		return token, nil
	case err == nil:
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenIsUsed)
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

var _ domain.RefreshTokenRepo = (*RefreshTokenRepo)(nil)
