package domain

import (
	"context"
	"time"

	"github.com/nkiryanov/pixelforge/internal/models"
)

type Generation struct {
	ID        string
	UserID    int64
	Prompt    string
	Style     string
	Images    []models.ImageRef
	CreatedAt time.Time
}

type GenerationRepo interface {
	// Save generation, assigning ids to its images
	// Image ids are unique across all generations
	Create(ctx context.Context, g Generation) (Generation, error)

	// Return user's generations, newest first
	ListByUser(ctx context.Context, userID int64) ([]Generation, error)

	// Return image owned by the user
	// If there is no such image for the user, must return ErrImageNotFound
	GetImage(ctx context.Context, userID int64, imageID int64) (models.ImageRef, error)
}
