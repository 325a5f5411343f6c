package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/pixelforge/internal/logger"
)

const (
	CodeRetryAfter = "retry-after"
	CodeForbidden  = "forbidden"
	CodeUnknown    = "unknown"

	defaultAPIURL     = "https://api.telegram.org"
	defaultRetryAfter = 60
)

type Error struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code string, retryAfter int, err error) *Error {
	return &Error{
		Code:       code,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        err,
	}
}

// Bot API response envelope
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sendPhotoRequest struct {
	ChatID  int64  `json:"chat_id"`
	Photo   string `json:"photo"`
	Caption string `json:"caption,omitempty"`
}

// Client talks to Telegram Bot API on behalf of the bot
type Client struct {
	APIURL string

	token  string
	client *http.Client
	logger logger.Logger
}

// NewClient returns Bot API client, empty apiURL means the public Telegram endpoint
func NewClient(apiURL string, token string, l logger.Logger) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		APIURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		client: &http.Client{},
		logger: l,
	}
}

// SendPhoto posts the photo by url to the chat
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL string, caption string) error {
	if c.token == "" {
		c.logger.Info("Bot token is not set, photo is not sent", "chat_id", chatID, "photo", photoURL)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := json.Marshal(sendPhotoRequest{ChatID: chatID, Photo: photoURL, Caption: caption})
	if err != nil {
		return NewError(CodeUnknown, 0, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/bot"+c.token+"/sendPhoto", bytes.NewReader(body))
	if err != nil {
		return NewError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// url contains bot token, never log or return it
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return NewError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	var r apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		c.logger.Warn("Failed to decode response", "status_code", resp.StatusCode, "error", err)
		return NewError(CodeUnknown, 0, fmt.Errorf("failed to decode response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK && r.OK:
		c.logger.Debug("Photo sent", "chat_id", chatID)
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return c.processTooManyRequest(resp, r)
	case resp.StatusCode == http.StatusForbidden:
		c.logger.Info("Bot is blocked by user", "chat_id", chatID)
		return NewError(CodeForbidden, 0, fmt.Errorf("forbidden: %s", r.Description))
	default:
		c.logger.Warn("Failed to send photo", "status_code", resp.StatusCode, "chat_id", chatID, "description", r.Description)
		return NewError(CodeUnknown, 0, fmt.Errorf("unknown status code %d: %s", resp.StatusCode, r.Description))
	}
}

func (c *Client) processTooManyRequest(resp *http.Response, r apiResponse) error {
	retryAfter := r.Parameters.RetryAfter
	if retryAfter <= 0 {
		header := resp.Header.Get("Retry-After")
		n, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil || n <= 0 {
			n = defaultRetryAfter
		}
		retryAfter = n
	}

	c.logger.Warn("Bot API throttled", "retry_after", retryAfter)
	return NewError(CodeRetryAfter, retryAfter, fmt.Errorf("retry after %d seconds", retryAfter))
}
