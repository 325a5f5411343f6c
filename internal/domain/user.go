package domain

import (
	"context"
	"time"

	"github.com/nkiryanov/pixelforge/internal/models"
)

// Account is a Telegram user seen by the backend
type Account struct {
	User      models.User
	CreatedAt time.Time
	LastSeen  time.Time
}

type AccountRepo interface {
	// Create account or refresh its profile and LastSeen
	Upsert(ctx context.Context, user models.User, seenAt time.Time) (Account, error)

	// If account not found, must return ErrUserNotFound
	GetAccount(ctx context.Context, userID int64) (Account, error)
}
