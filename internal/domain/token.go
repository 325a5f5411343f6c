package domain

import (
	"context"
	"time"
)

type RefreshToken struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    time.Time // zero value means the token is not used
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Create(ctx context.Context, token RefreshToken) error

	// Return the token and mark it used in one step
	// If the token does not exist, must return error ErrRefreshTokenNotFound
	// If the token is already used, must return error ErrRefreshTokenIsUsed and keep the existing 'usedAt'
	GetAndMarkUsed(ctx context.Context, tokenString string, usedAt time.Time) (RefreshToken, error)
}
