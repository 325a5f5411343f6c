package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/testutil"
)

func Test_KV(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("set and get ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			kv := NewKV(tx, "user-1")

			err := kv.Set(t.Context(), "access_token", "token-1")
			require.NoError(t, err)

			got, err := kv.Get(t.Context(), "access_token")

			require.NoError(t, err)
			require.Equal(t, "token-1", got)
		})
	})

	t.Run("set overwrites", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			kv := NewKV(tx, "user-1")
			require.NoError(t, kv.Set(t.Context(), "access_token", "token-1"))

			err := kv.Set(t.Context(), "access_token", "token-2")
			require.NoError(t, err)

			got, err := kv.Get(t.Context(), "access_token")
			require.NoError(t, err)
			require.Equal(t, "token-2", got, "second set must overwrite value")
		})
	})

	t.Run("get missing key fail", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			kv := NewKV(tx, "user-1")

			_, err := kv.Get(t.Context(), "not-existed")

			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrKeyNotFound)
		})
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			first := NewKV(tx, "user-1")
			second := NewKV(tx, "user-2")
			require.NoError(t, first.Set(t.Context(), "refresh_token", "first"))

			_, err := second.Get(t.Context(), "refresh_token")

			require.ErrorIs(t, err, apperrors.ErrKeyNotFound, "value from other namespace must not be visible")
		})
	})

	t.Run("delete several keys", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			kv := NewKV(tx, "")
			require.NoError(t, kv.Set(t.Context(), "access_token", "a"))
			require.NoError(t, kv.Set(t.Context(), "refresh_token", "r"))
			require.NoError(t, kv.Set(t.Context(), "auth_user", "{}"))

			err := kv.Delete(t.Context(), "access_token", "refresh_token", "not-existed")
			require.NoError(t, err)

			_, err = kv.Get(t.Context(), "access_token")
			require.ErrorIs(t, err, apperrors.ErrKeyNotFound)
			_, err = kv.Get(t.Context(), "refresh_token")
			require.ErrorIs(t, err, apperrors.ErrKeyNotFound)
			got, err := kv.Get(t.Context(), "auth_user")
			require.NoError(t, err, "not deleted key must survive")
			require.Equal(t, "{}", got)
		})
	})
}
