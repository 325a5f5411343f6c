package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/testutil"
)

func Test_AccountRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	firstSeen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	user := models.User{ID: 777, FirstName: "Ada", LastName: "Lovelace", Username: "ada", LanguageCode: "en", IsPremium: true}

	t.Run("create ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}

			account, err := repo.Upsert(t.Context(), user, firstSeen)

			require.NoError(t, err)
			require.Equal(t, user, account.User)
			require.True(t, account.CreatedAt.Equal(firstSeen))
			require.True(t, account.LastSeen.Equal(firstSeen))
		})
	})

	t.Run("upsert updates profile keeping created at", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}
			_, err := repo.Upsert(t.Context(), user, firstSeen)
			require.NoError(t, err)

			renamed := user
			renamed.Username = "countess"
			renamed.IsPremium = false
			_, err = repo.Upsert(t.Context(), renamed, firstSeen.Add(time.Hour))
			require.NoError(t, err)

			account, err := repo.GetAccount(t.Context(), user.ID)

			require.NoError(t, err)
			require.Equal(t, renamed, account.User)
			require.True(t, account.CreatedAt.Equal(firstSeen), "created at must be kept")
			require.True(t, account.LastSeen.Equal(firstSeen.Add(time.Hour)))
		})
	})

	t.Run("get not existed fail", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := AccountRepo{DB: tx}

			_, err := repo.GetAccount(t.Context(), 404)

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
