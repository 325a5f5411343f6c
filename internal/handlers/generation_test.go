package handlers

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/repository"
	"github.com/nkiryanov/pixelforge/internal/service/auth"
	"github.com/nkiryanov/pixelforge/internal/service/delivery"
	"github.com/nkiryanov/pixelforge/internal/service/generation"
	"github.com/nkiryanov/pixelforge/internal/tokenstore"
)

// Client core talking to the dev backend
func newClient(t *testing.T, srv testServer) (*auth.Session, *generation.Client) {
	t.Helper()

	session, err := auth.NewSession(t.Context(), auth.Config{BaseURL: srv.URL, Now: srv.Clock.Now}, tokenstore.New(repository.NewMemoryKV()), nil)
	require.NoError(t, err)

	_, err = session.Authenticate(t.Context(), signedInitData(t, srv.Clock.Now()))
	require.NoError(t, err, "client has to authenticate against dev backend")

	return session, generation.NewClient(session, nil)
}

func Test_GenerationHandlers(t *testing.T) {
	t.Parallel()

	t.Run("generate and list history", func(t *testing.T) {
		srv := startServer(t)
		_, client := newClient(t, srv)

		first, err := client.Generate(t.Context(), "a cat in a hat", "anime")
		require.NoError(t, err)
		require.Len(t, first, 4)

		second, err := client.Generate(t.Context(), "a dog", "")
		require.NoError(t, err)

		history, err := client.History(t.Context())
		require.NoError(t, err)
		require.Len(t, history, 2)
		require.Equal(t, second, history[0].Images, "newest generation first")
		require.Equal(t, first, history[1].Images)
		require.True(t, history[0].Timestamp.Equal(srv.Clock.Now()))
	})

	t.Run("unknown style rejected", func(t *testing.T) {
		srv := startServer(t)
		_, client := newClient(t, srv)

		_, err := client.Generate(t.Context(), "a cat", "baroque")

		require.Error(t, err)
		require.Equal(t, apperrors.Code("VALIDATION_FAILED"), apperrors.CodeOf(err), "server code is kept")
		require.Equal(t, "Request validation failed", apperrors.MessageOf(err))
	})

	t.Run("deliver enqueues job for user chat", func(t *testing.T) {
		srv := startServer(t)
		_, client := newClient(t, srv)
		images, err := client.Generate(t.Context(), "a cat", "none")
		require.NoError(t, err)

		message, err := client.DeliverToChat(t.Context(), images[2].ID)

		require.NoError(t, err)
		require.Equal(t, "Image has been sent to your Telegram chat.", message)

		jobs := srv.Queue.Jobs()
		require.Len(t, jobs, 1)
		require.Equal(t, testUser.ID, jobs[0].ChatID)
		require.Equal(t, images[2], jobs[0].Image)
	})

	t.Run("deliver unknown image fail", func(t *testing.T) {
		srv := startServer(t)
		_, client := newClient(t, srv)

		_, err := client.DeliverToChat(t.Context(), 42)

		require.ErrorIs(t, err, apperrors.ErrDownloadFailed)
		require.Equal(t, "Image not found", apperrors.MessageOf(err))
		require.Empty(t, srv.Queue.Jobs())
	})

	t.Run("deliver when queue is full", func(t *testing.T) {
		srv := startServer(t)
		srv.Queue.err = delivery.ErrQueueFull
		_, client := newClient(t, srv)
		images, err := client.Generate(t.Context(), "a cat", "none")
		require.NoError(t, err)

		_, err = client.DeliverToChat(t.Context(), images[0].ID)

		require.ErrorIs(t, err, apperrors.ErrDownloadFailed)
	})

	t.Run("profile", func(t *testing.T) {
		srv := startServer(t)
		_, client := newClient(t, srv)

		user, err := client.Profile(t.Context())

		require.NoError(t, err)
		require.Equal(t, testUser, user)
	})

	t.Run("expired access token is refreshed", func(t *testing.T) {
		srv := startServer(t)
		session, client := newClient(t, srv)
		before := session.Tokens()

		srv.Clock.Advance(16 * time.Minute)
		require.True(t, session.IsExpired())

		_, err := client.Generate(t.Context(), "a cat", "none")

		require.NoError(t, err)
		after := session.Tokens()
		require.NotEqual(t, before.AccessToken, after.AccessToken)
		require.NotEqual(t, before.RefreshToken, after.RefreshToken, "dev backend rotates refresh token")
		require.False(t, session.IsExpired())
	})

	t.Run("requests without token are 401", func(t *testing.T) {
		srv := startServer(t)

		for _, path := range []string{"/history", "/profile", "/download-image?image_id=1"} {
			resp, err := http.Get(srv.URL + path)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			_ = resp.Body.Close()

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
			require.True(t, strings.Contains(string(body), "AUTH_FAILED"), path)
		}
	})
}
