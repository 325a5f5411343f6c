package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
)

const defaultNamespace = "default"

// KV stores values in the 'kv' table
// Namespace separates independent clients sharing one database (one per bot user or device)
type KV struct {
	DB        DBTX
	Namespace string
}

func NewKV(db DBTX, namespace string) *KV {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &KV{DB: db, Namespace: namespace}
}

const getValue = `-- name: GetValue
SELECT value FROM kv
WHERE namespace = $1 AND key = $2
`

func (r *KV) Get(ctx context.Context, key string) (string, error) {
	rows, _ := r.DB.Query(ctx, getValue, r.Namespace, key)
	value, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", fmt.Errorf("repo error: %w", apperrors.ErrKeyNotFound)
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}

const setValue = `-- name: SetValue
INSERT INTO kv (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`

func (r *KV) Set(ctx context.Context, key string, value string) error {
	_, err := r.DB.Exec(ctx, setValue, r.Namespace, key, value)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteValues = `-- name: DeleteValues
DELETE FROM kv
WHERE namespace = $1 AND key = ANY($2)
`

func (r *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := r.DB.Exec(ctx, deleteValues, r.Namespace, keys)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
