package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
)

func Test_KV(t *testing.T) {
	implementations := []struct {
		name string
		new  func(t *testing.T) KV
	}{
		{
			name: "memory",
			new:  func(t *testing.T) KV { return NewMemoryKV() },
		},
		{
			name: "file",
			new: func(t *testing.T) KV {
				kv, err := NewFileKV(filepath.Join(t.TempDir(), "state", "session.json"))
				require.NoError(t, err)
				return kv
			},
		},
	}

	for _, impl := range implementations {
		t.Run(impl.name, func(t *testing.T) {
			t.Run("set and get ok", func(t *testing.T) {
				kv := impl.new(t)

				require.NoError(t, kv.Set(t.Context(), "access_token", "token"))
				got, err := kv.Get(t.Context(), "access_token")

				require.NoError(t, err)
				require.Equal(t, "token", got)
			})

			t.Run("missing key", func(t *testing.T) {
				kv := impl.new(t)

				_, err := kv.Get(t.Context(), "access_token")

				require.ErrorIs(t, err, apperrors.ErrKeyNotFound)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				kv := impl.new(t)
				require.NoError(t, kv.Set(t.Context(), "access_token", "token"))

				require.NoError(t, kv.Delete(t.Context(), "access_token"))
				require.NoError(t, kv.Delete(t.Context(), "access_token"), "second delete must not fail")

				_, err := kv.Get(t.Context(), "access_token")
				require.ErrorIs(t, err, apperrors.ErrKeyNotFound)
			})
		})
	}
}

func Test_FileKV(t *testing.T) {
	t.Run("values survive reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		kv, err := NewFileKV(path)
		require.NoError(t, err)
		require.NoError(t, kv.Set(t.Context(), "token_expiry", "1700000000000"))

		reopened, err := NewFileKV(path)
		require.NoError(t, err)
		got, err := reopened.Get(t.Context(), "token_expiry")

		require.NoError(t, err)
		require.Equal(t, "1700000000000", got)
	})

	t.Run("file is private", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		kv, err := NewFileKV(path)
		require.NoError(t, err)
		require.NoError(t, kv.Set(t.Context(), "refresh_token", "secret"))

		info, err := os.Stat(path)

		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "tokens must be readable by owner only")
	})

	t.Run("corrupted file fail", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		require.NoError(t, os.WriteFile(path, []byte("not-json"), 0o600))
		kv, err := NewFileKV(path)
		require.NoError(t, err)

		_, err = kv.Get(t.Context(), "access_token")

		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrKeyNotFound)
	})

	t.Run("empty path fail", func(t *testing.T) {
		_, err := NewFileKV("")

		require.Error(t, err)
	})
}
