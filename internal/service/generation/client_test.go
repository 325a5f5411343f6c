package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/models"
)

// stubSession sends requests as is, or fails with err
type stubSession struct {
	baseURL string
	err     error
	calls   int
}

func (s *stubSession) BaseURL() string { return s.baseURL }

func (s *stubSession) AuthorizedRequest(ctx context.Context, method string, url string, body []byte) (*http.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *stubSession) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := &stubSession{baseURL: srv.URL}
	return NewClient(s, nil), s
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func Test_Client_Generate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		var got generateRequest
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/generate-image", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			respond(w, http.StatusOK, `{"success":true,"image_urls":[{"id":1,"url":"https://img/1.png"},{"id":2,"url":"https://img/2.png"}]}`)
		})

		images, err := c.Generate(t.Context(), "  a red fox  ", "anime")

		require.NoError(t, err)
		require.Equal(t, []models.ImageRef{{ID: 1, URL: "https://img/1.png"}, {ID: 2, URL: "https://img/2.png"}}, images)
		require.Equal(t, generateRequest{Prompt: "a red fox", Style: "anime"}, got)
	})

	t.Run("empty style means no style", func(t *testing.T) {
		var got generateRequest
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			respond(w, http.StatusOK, `{"success":true,"image_urls":[]}`)
		})

		images, err := c.Generate(t.Context(), "fox", "")

		require.NoError(t, err)
		require.Empty(t, images)
		require.Equal(t, "none", got.Style)
	})

	t.Run("empty prompt not sent", func(t *testing.T) {
		c, s := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("must not be called")
		})

		_, err := c.Generate(t.Context(), " \n\t ", "anime")

		require.ErrorIs(t, err, apperrors.ErrEmptyPrompt)
		require.Equal(t, 0, s.calls)
	})

	tests := []struct {
		name    string
		status  int
		body    string
		code    apperrors.Code
		message string
	}{
		{
			name:    "server code and message",
			status:  http.StatusUnprocessableEntity,
			body:    `{"success":false,"error":"CONTENT_POLICY","message":"Prompt was rejected"}`,
			code:    "CONTENT_POLICY",
			message: "Prompt was rejected",
		},
		{
			name:    "defaults on bare failure",
			status:  http.StatusInternalServerError,
			body:    `<html>bad gateway</html>`,
			code:    apperrors.CodeGenerationFailed,
			message: MessageGenerationFailed,
		},
		{
			name:    "success false on 200",
			status:  http.StatusOK,
			body:    `{"success":false}`,
			code:    apperrors.CodeGenerationFailed,
			message: MessageGenerationFailed,
		},
		{
			name:    "no images in success",
			status:  http.StatusOK,
			body:    `{"success":true}`,
			code:    apperrors.CodeInvalidResponse,
			message: MessageGenerationFailed,
		},
		{
			name:    "malformed success",
			status:  http.StatusOK,
			body:    `{"success":tru`,
			code:    apperrors.CodeInvalidResponse,
			message: MessageGenerationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				respond(w, tt.status, tt.body)
			})

			_, err := c.Generate(t.Context(), "fox", "none")

			require.Error(t, err)
			require.Equal(t, tt.code, apperrors.CodeOf(err))
			require.Equal(t, tt.message, apperrors.MessageOf(err))
		})
	}

	t.Run("session expired", func(t *testing.T) {
		c, s := newClient(t, nil)
		s.err = errors.Join(apperrors.ErrSessionExpired, errors.New("refresh rejected"))

		_, err := c.Generate(t.Context(), "fox", "none")

		require.ErrorIs(t, err, apperrors.ErrNetwork)
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
		require.Equal(t, MessageSessionExpired, apperrors.MessageOf(err))
	})

	t.Run("network failure", func(t *testing.T) {
		c, s := newClient(t, nil)
		s.err = apperrors.New(apperrors.CodeNetworkError, "Network error", errors.New("connection refused"))

		_, err := c.Generate(t.Context(), "fox", "none")

		require.ErrorIs(t, err, apperrors.ErrNetwork)
		require.Equal(t, MessageNetworkError, apperrors.MessageOf(err))
	})
}

func Test_Client_DeliverToChat(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			require.Equal(t, "/download-image", r.URL.Path)
			require.Equal(t, "17", r.URL.Query().Get("image_id"))
			respond(w, http.StatusOK, `{"success":true,"message":"Sent!"}`)
		})

		msg, err := c.DeliverToChat(t.Context(), 17)

		require.NoError(t, err)
		require.Equal(t, "Sent!", msg)
	})

	t.Run("default message", func(t *testing.T) {
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusOK, `{"success":true}`)
		})

		msg, err := c.DeliverToChat(t.Context(), 1)

		require.NoError(t, err)
		require.Equal(t, MessageImageSent, msg)
	})

	t.Run("failure defaults", func(t *testing.T) {
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusBadGateway, ``)
		})

		_, err := c.DeliverToChat(t.Context(), 1)

		require.ErrorIs(t, err, apperrors.ErrDownloadFailed)
		require.Equal(t, MessageDownloadFailed, apperrors.MessageOf(err))
	})

	t.Run("server reason kept", func(t *testing.T) {
		c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusNotFound, `{"success":false,"error":"IMAGE_NOT_FOUND","message":"Image not found"}`)
		})

		_, err := c.DeliverToChat(t.Context(), 1)

		require.Equal(t, apperrors.Code("IMAGE_NOT_FOUND"), apperrors.CodeOf(err))
		require.Equal(t, "Image not found", apperrors.MessageOf(err))
	})
}

func Test_Client_HistoryAndProfile(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/history":
			respond(w, http.StatusOK, `{"success":true,"generations":[
				{"id":"g2","images":[{"id":3,"url":"u3"}],"timestamp":"2025-06-01T12:00:00Z"},
				{"id":"g1","images":[{"id":1,"url":"u1"},{"id":2,"url":"u2"}],"timestamp":"2025-05-31T12:00:00Z"}
			]}`)
		case "/profile":
			respond(w, http.StatusOK, `{"success":true,"user":{"id":42,"first_name":"Ada"}}`)
		default:
			respond(w, http.StatusNotFound, `{"success":false}`)
		}
	})

	t.Run("history", func(t *testing.T) {
		records, err := c.History(t.Context())

		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, "g2", records[0].ID)
		require.False(t, records[0].Pending)
		require.True(t, records[0].Timestamp.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
		require.Len(t, models.FlattenImages(records), 3)
	})

	t.Run("profile", func(t *testing.T) {
		user, err := c.Profile(t.Context())

		require.NoError(t, err)
		require.Equal(t, int64(42), user.ID)
	})
}

func Test_Client_ProfileFailure(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, `{"success":true}`)
	})

	_, err := c.Profile(t.Context())

	require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
}
