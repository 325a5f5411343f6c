package repository

import (
	"context"
)

// Key-value repository interface
// Values are opaque strings, callers encode them as they like
type KV interface {
	// Get value by key
	// If key not exists must return apperrors.ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set value, overwriting the existing one
	Set(ctx context.Context, key string, value string) error

	// Delete keys; deleting missing keys is not an error
	Delete(ctx context.Context, keys ...string) error
}
