package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/handlers"
	"github.com/nkiryanov/pixelforge/internal/initdata"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/repository"
	"github.com/nkiryanov/pixelforge/internal/repository/memstore"
	"github.com/nkiryanov/pixelforge/internal/service/accounts"
	"github.com/nkiryanov/pixelforge/internal/service/delivery"
	"github.com/nkiryanov/pixelforge/internal/service/gallery"
	"github.com/nkiryanov/pixelforge/internal/service/telegram"
	"github.com/nkiryanov/pixelforge/internal/service/tokenmanager"
)

const botToken = "123456:test-bot-token"

// Dev backend wired the way cmd/devbackend does it, delivery queue is not consumed
func startBackend(t *testing.T) string {
	t.Helper()

	storage := memstore.New()
	tm, err := tokenmanager.New(tokenmanager.Config{SecretKey: "secret"}, storage)
	require.NoError(t, err)
	accountService, err := accounts.NewService(accounts.Config{BotToken: botToken}, tm, storage, nil)
	require.NoError(t, err)
	galleryService := gallery.NewService(gallery.Config{}, storage.Generations(), nil)
	queue := delivery.New(delivery.Config{}, telegram.NewClient("", "", nil), nil)

	srv := httptest.NewServer(handlers.NewRouter(accountService, galleryService, queue, logger.NewNoOpLogger()))
	t.Cleanup(srv.Close)
	return srv.URL
}

func Test_run(t *testing.T) {
	noenv := func(string) string { return "" }
	wd := func() (string, error) { return t.TempDir(), nil }

	user := models.User{ID: 777, FirstName: "Ada", LastName: "Lovelace", Username: "ada"}
	initData, err := initdata.Sign(user, "", time.Now(), botToken)
	require.NoError(t, err)

	t.Run("session flow", func(t *testing.T) {
		backend := startBackend(t)
		storePath := filepath.Join(t.TempDir(), "session.json")

		cli := func(t *testing.T, args ...string) (string, error) {
			var out bytes.Buffer
			flags := []string{"--backend", backend, "--store", "file", "--store-path", storePath, "--init-data", initData, "--log-level", "error"}
			err := run(t.Context(), &out, noenv, wd, append(flags, args...))
			return out.String(), err
		}

		out, err := cli(t, "login")
		require.NoError(t, err)
		require.Contains(t, out, "Logged in as Ada Lovelace (id 777)")

		out, err = cli(t, "--style", "anime", "generate", "a", "cat", "in", "a", "hat")
		require.NoError(t, err)
		require.Contains(t, out, "#1 ")
		require.Contains(t, out, "#4 ")
		require.Contains(t, out, "[success] Images Generated!: Successfully created 4 images.")

		out, err = cli(t, "history")
		require.NoError(t, err)
		require.Contains(t, out, "#2 ")

		out, err = cli(t, "view", "2", "next", "next", "next", "prev")
		require.NoError(t, err)
		require.Contains(t, out, "2 / 4  #2 ")
		require.Contains(t, out, "3 / 4  #3 ")
		require.Contains(t, out, "4 / 4  #4 ")
		require.Equal(t, 2, bytes.Count([]byte(out), []byte("4 / 4  #4 ")), "swipe past the last image keeps it")
		require.Contains(t, out, "3 / 4  #3 ")

		out, err = cli(t, "send", "3")
		require.NoError(t, err)
		require.Contains(t, out, "[success] Image Sent!: Image has been sent to your Telegram chat.")

		out, err = cli(t, "send", "99")
		require.ErrorIs(t, err, apperrors.ErrDownloadFailed)
		require.Contains(t, out, "[error] Download Failed: Image not found")

		out, err = cli(t, "profile")
		require.NoError(t, err)
		require.Contains(t, out, "@ada")

		_, err = cli(t, "logout")
		require.NoError(t, err)

		kv, err := repository.NewFileKV(storePath)
		require.NoError(t, err)
		_, err = kv.Get(t.Context(), "access_token")
		require.ErrorIs(t, err, apperrors.ErrKeyNotFound, "logout clears stored tokens")
	})

	t.Run("dev mode", func(t *testing.T) {
		var out bytes.Buffer

		err := run(t.Context(), &out, noenv, wd, []string{"--dev", "--store", "memory", "--backend", "http://127.0.0.1:1", "login"})

		require.NoError(t, err)
		require.Contains(t, out.String(), "Logged in as Test User (id 123456789)")
	})

	t.Run("styles", func(t *testing.T) {
		var out bytes.Buffer

		err := run(t.Context(), &out, noenv, wd, []string{"styles"})

		require.NoError(t, err)
		require.Contains(t, out.String(), "cyberpunk")
	})

	t.Run("usage errors", func(t *testing.T) {
		for _, args := range [][]string{
			{},
			{"--store", "memory", "--dev", "dance"},
			{"--store", "memory", "--dev", "send", "one"},
		} {
			err := run(t.Context(), &bytes.Buffer{}, noenv, wd, args)
			require.ErrorIs(t, err, errUsage, "args: %v", args)
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		err := run(t.Context(), &bytes.Buffer{}, noenv, wd, []string{"--store", "redis", "login"})

		require.Error(t, err)
	})
}
