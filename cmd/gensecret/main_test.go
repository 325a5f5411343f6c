package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	t.Run("default length", func(t *testing.T) {
		var out bytes.Buffer

		err := run(&out, nil)

		require.NoError(t, err)
		require.Len(t, strings.TrimSpace(out.String()), 64, "32 bytes hex encoded")
	})

	t.Run("env line", func(t *testing.T) {
		var out bytes.Buffer

		err := run(&out, []string{"-e", "-n", "16"})

		require.NoError(t, err)
		line := strings.TrimSpace(out.String())
		require.True(t, strings.HasPrefix(line, "SECRET_KEY="), line)
		require.Len(t, strings.TrimPrefix(line, "SECRET_KEY="), 32)
	})

	t.Run("short key fail", func(t *testing.T) {
		require.Error(t, run(&bytes.Buffer{}, []string{"--bytes", "8"}))
	})
}
