package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
)

const (
	MessageGenerationFailed = "Server error occurred while generating images. Please try again later."
	MessageDownloadFailed   = "Server error occurred while sending image. Please try again later."
	MessageSessionExpired   = "Session expired. Please refresh the app and try again."
	MessageNetworkError     = "Unable to connect to the server. Please check your internet connection and try again."
	MessageRequestFailed    = "Server error occurred. Please try again later."
	MessageImageSent        = "Image has been sent to your Telegram chat."
)

type requester interface {
	AuthorizedRequest(ctx context.Context, method string, url string, body []byte) (*http.Response, error)
	BaseURL() string
}

// Client calls generation endpoints of the backend on behalf of the session
// Calls are not retried here; the session retries once on 401
type Client struct {
	session requester
	logger  logger.Logger
}

func NewClient(session requester, l logger.Logger) *Client {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &Client{
		session: session,
		logger:  l.WithGroup("generation"),
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
}

type historyItem struct {
	ID        string            `json:"id"`
	Images    []models.ImageRef `json:"images"`
	Timestamp time.Time         `json:"timestamp"`
}

// response is the common envelope of generation endpoints
type response struct {
	Success     bool              `json:"success"`
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	ImageURLs   []models.ImageRef `json:"image_urls"`
	Generations []historyItem     `json:"generations"`
	User        *models.User      `json:"user"`
}

// failure describes how a failed call is reported
type failure struct {
	code    apperrors.Code
	message string
}

// Generate asks backend for images. Prompt is trimmed and must not be empty
func (c *Client) Generate(ctx context.Context, prompt string, style string) ([]models.ImageRef, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperrors.ErrEmptyPrompt
	}
	if style == "" {
		style = models.DefaultStyle
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt, Style: style})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	c.logger.Info("Generating images", "style", style, "prompt_length", len(prompt))

	var r response
	err = c.do(ctx, http.MethodPost, "/generate-image", body, &r, failure{apperrors.CodeGenerationFailed, MessageGenerationFailed})
	if err != nil {
		return nil, err
	}
	if r.ImageURLs == nil {
		return nil, apperrors.New(apperrors.CodeInvalidResponse, MessageGenerationFailed, errors.New("image_urls missing"))
	}

	c.logger.Info("Images generated", "count", len(r.ImageURLs))
	return r.ImageURLs, nil
}

// DeliverToChat asks backend to send the image to the user's chat, returns server message
func (c *Client) DeliverToChat(ctx context.Context, imageID int64) (string, error) {
	query := url.Values{"image_id": {strconv.FormatInt(imageID, 10)}}

	c.logger.Info("Sending image to chat", "image_id", imageID)

	var r response
	err := c.do(ctx, http.MethodGet, "/download-image?"+query.Encode(), nil, &r, failure{apperrors.CodeDownloadFailed, MessageDownloadFailed})
	if err != nil {
		return "", err
	}

	if r.Message == "" {
		return MessageImageSent, nil
	}
	return r.Message, nil
}

// History returns user's generations, newest first
func (c *Client) History(ctx context.Context) ([]models.GenerationRecord, error) {
	var r response
	if err := c.do(ctx, http.MethodGet, "/history", nil, &r, failure{apperrors.CodeRequestFailed, MessageRequestFailed}); err != nil {
		return nil, err
	}

	records := make([]models.GenerationRecord, 0, len(r.Generations))
	for _, g := range r.Generations {
		records = append(records, models.GenerationRecord{ID: g.ID, Images: g.Images, Timestamp: g.Timestamp})
	}
	return records, nil
}

// Profile returns the authenticated user as backend knows it
func (c *Client) Profile(ctx context.Context) (models.User, error) {
	var r response
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &r, failure{apperrors.CodeRequestFailed, MessageRequestFailed}); err != nil {
		return models.User{}, err
	}
	if r.User == nil {
		return models.User{}, apperrors.New(apperrors.CodeInvalidResponse, MessageRequestFailed, errors.New("user missing"))
	}
	return *r.User, nil
}

// do sends authorized request and decodes the envelope into out
// Non-2xx or success:false become coded error, server code and message take precedence over f
func (c *Client) do(ctx context.Context, method string, path string, body []byte, out *response, f failure) error {
	resp, err := c.session.AuthorizedRequest(ctx, method, c.session.BaseURL()+path, body)
	if err != nil {
		c.logger.Warn("Request failed", "path", path, "error", err)
		return transportError(err)
	}
	defer resp.Body.Close() // nolint:errcheck

	decodeErr := json.NewDecoder(resp.Body).Decode(out)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if ok && decodeErr != nil {
		c.logger.Warn("Malformed response", "path", path, "error", decodeErr)
		return apperrors.New(apperrors.CodeInvalidResponse, f.message, decodeErr)
	}

	if !ok || !out.Success {
		code := f.code
		if out.Error != "" {
			code = apperrors.Code(out.Error)
		}
		message := f.message
		if out.Message != "" {
			message = out.Message
		}
		c.logger.Info("Backend reported failure", "path", path, "status_code", resp.StatusCode, "code", code)
		return apperrors.New(code, message, nil)
	}

	return nil
}

// transportError maps session and network failures to NETWORK_ERROR with a user facing message
func transportError(err error) error {
	if errors.Is(err, apperrors.ErrSessionExpired) {
		return apperrors.New(apperrors.CodeNetworkError, MessageSessionExpired, err)
	}
	return apperrors.New(apperrors.CodeNetworkError, MessageNetworkError, err)
}
