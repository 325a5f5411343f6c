package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
)

const (
	authPath    = "/auth/telegram"
	refreshPath = "/auth/refresh"

	defaultExpiryBuffer   = 30 * time.Second
	defaultRequestTimeout = 15 * time.Second
	defaultHTTPTimeout    = 2 * time.Minute // image generation is slow

	refreshKey = "refresh"
)

// Persistence used by the session: tokens and the cached user
type tokenStore interface {
	LoadTokens(ctx context.Context) (models.TokenSet, error)
	SaveTokens(ctx context.Context, tokens models.TokenSet) error
	ClearTokens(ctx context.Context) error
	LoadUser(ctx context.Context) (models.User, bool, error)
	SaveUser(ctx context.Context, user models.User) error
	ClearUser(ctx context.Context) error
	Clear(ctx context.Context) error
}

// Session config with sensible defaults
type Config struct {
	// Backend base url, paths from the HTTP contract are appended to it
	// Required to be set
	BaseURL string

	// Access token is treated as expired this long before its real expiry
	ExpiryBuffer time.Duration

	// Timeout of authenticate and refresh calls
	RequestTimeout time.Duration

	// Client to send requests with. Default has a generous timeout
	HTTPClient *http.Client

	// Clock, time.Now if not set
	Now func() time.Time
}

// Session owns the token lifecycle: authentication, expiry, refresh and authorized requests
// Safe for concurrent use
type Session struct {
	baseURL        string
	expiryBuffer   time.Duration
	requestTimeout time.Duration
	client         *http.Client
	now            func() time.Time

	store  tokenStore
	logger logger.Logger

	mu     sync.RWMutex
	tokens models.TokenSet
	user   *models.User
	epoch  uint64 // bumped on every login and clear, so a refresh racing with them is dropped

	// Storage writes never interleave, a write from an older epoch is skipped
	storeMu sync.Mutex

	// At most one refresh request in flight, concurrent callers share its result
	refreshGroup singleflight.Group
}

// NewSession creates session and restores tokens persisted by a previous run
func NewSession(ctx context.Context, cfg Config, store tokenStore, l logger.Logger) (*Session, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base url must not be empty")
	}
	if store == nil {
		return nil, errors.New("token store must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.ExpiryBuffer, defaultExpiryBuffer)
	setDefaultDuration(&cfg.RequestTimeout, defaultRequestTimeout)

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Session{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		expiryBuffer:   cfg.ExpiryBuffer,
		requestTimeout: cfg.RequestTimeout,
		client:         cfg.HTTPClient,
		now:            cfg.Now,
		store:          store,
		logger:         l.WithGroup("session"),
	}

	tokens, err := store.LoadTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't restore tokens. Err: %w", err)
	}
	s.tokens = tokens

	user, ok, err := store.LoadUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't restore user. Err: %w", err)
	}
	if ok {
		s.user = &user
	}

	return s, nil
}

// BaseURL the session talks to
func (s *Session) BaseURL() string {
	return s.baseURL
}

// Tokens returns a copy of the current token set
func (s *Session) Tokens() models.TokenSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func (s *Session) AccessToken() string {
	return s.Tokens().AccessToken
}

// CachedUser returns the user of the last successful authentication
func (s *Session) CachedUser() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// IsExpired is true if no expiry known or the expiry is within the buffer
func (s *Session) IsExpired() bool {
	return s.isExpired(s.Tokens())
}

func (s *Session) isExpired(tokens models.TokenSet) bool {
	if tokens.ExpiresAt.IsZero() {
		return true
	}
	return !s.now().Before(tokens.ExpiresAt.Add(-s.expiryBuffer))
}

// HasValidSession is true when both tokens are present and the access token is not expired
func (s *Session) HasValidSession() bool {
	tokens := s.Tokens()
	return tokens.AccessToken != "" && tokens.RefreshToken != "" && !s.isExpired(tokens)
}

type authRequest struct {
	InitData string `json:"initData"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	Success      bool         `json:"success"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *models.User `json:"user"`
	Error        string       `json:"error"`
	Message      string       `json:"message"`
}

// Authenticate exchanges host init data for a token set
// Returned error is always *apperrors.Error with AUTH_FAILED, INVALID_RESPONSE or NETWORK_ERROR code
func (s *Session) Authenticate(ctx context.Context, initData string) (models.AuthResult, error) {
	r, err := s.call(ctx, authPath, authRequest{InitData: initData})
	if err != nil {
		s.logger.Warn("Authentication request failed", "error", err)
		return models.AuthResult{}, apperrors.New(apperrors.CodeNetworkError, "Network error during authentication", err)
	}

	if !isSuccessStatus(r.status) {
		s.logger.Info("Authentication rejected", "status_code", r.status, "error", r.data.Error)
		message := orDefault(r.data.Message, fmt.Sprintf("Authentication failed (Status: %d)", r.status))
		return models.AuthResult{}, apperrors.New(apperrors.CodeAuthFailed, message, nil)
	}

	if r.malformed || !r.data.Success || r.data.AccessToken == "" || r.data.RefreshToken == "" {
		s.logger.Warn("Unexpected authentication response", "status_code", r.status, "malformed", r.malformed)
		return models.AuthResult{}, apperrors.New(apperrors.CodeInvalidResponse, orDefault(r.data.Message, "Invalid response from server"), nil)
	}

	tokens := models.TokenSet{
		AccessToken:  r.data.AccessToken,
		RefreshToken: r.data.RefreshToken,
		ExpiresAt:    s.now().Add(time.Duration(r.data.ExpiresIn) * time.Second),
	}

	// New token chain: a refresh still in flight belongs to the old one
	s.mu.Lock()
	s.tokens = tokens
	s.user = r.data.User
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	s.persist(ctx, tokens, epoch)
	s.cacheUser(ctx, r.data.User, epoch)

	var user models.User
	if r.data.User != nil {
		user = *r.data.User
	}

	s.logger.Info("Authenticated", "user_id", user.ID, "expires_at", tokens.ExpiresAt)
	return models.AuthResult{User: user, Tokens: tokens}, nil
}

// refresh rotates tokens; stale is the access token the caller found unusable
// If a flight already replaced it, the current set is returned without a request
func (s *Session) refresh(ctx context.Context, stale string) (models.TokenSet, error) {
	ch := s.refreshGroup.DoChan(refreshKey, func() (any, error) {
		// The flight is shared: it must not die with the first caller's context
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.requestTimeout)
		defer cancel()
		return s.doRefresh(flightCtx, stale)
	})

	select {
	case <-ctx.Done():
		return models.TokenSet{}, apperrors.New(apperrors.CodeNetworkError, "Token refresh cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return models.TokenSet{}, res.Err
		}
		return res.Val.(models.TokenSet), nil
	}
}

func (s *Session) doRefresh(ctx context.Context, stale string) (models.TokenSet, error) {
	s.mu.RLock()
	current, epoch := s.tokens, s.epoch
	s.mu.RUnlock()

	if current.AccessToken != "" && current.AccessToken != stale && !s.isExpired(current) {
		s.logger.Debug("Tokens were already refreshed")
		return current, nil
	}

	if !current.CanRefresh() {
		return models.TokenSet{}, apperrors.New(apperrors.CodeNoRefreshToken, "No refresh token available", nil)
	}

	s.logger.Debug("Refreshing access token")
	r, err := s.call(ctx, refreshPath, refreshRequest{RefreshToken: current.RefreshToken})
	if err != nil {
		s.logger.Warn("Refresh request failed", "error", err)
		return models.TokenSet{}, apperrors.New(apperrors.CodeNetworkError, "Network error during token refresh", err)
	}

	if !isSuccessStatus(r.status) {
		if tokens, ok := s.replacedSince(epoch); ok {
			s.logger.Info("Refresh rejected after a new login, keeping new tokens", "status_code", r.status)
			return tokens, nil
		}
		s.logger.Info("Refresh rejected, dropping session", "status_code", r.status, "error", r.data.Error)
		s.clearTokens(ctx, epoch)
		return models.TokenSet{}, apperrors.New(apperrors.CodeRefreshFailed, orDefault(r.data.Message, "Token refresh failed"), nil)
	}

	if r.malformed || !r.data.Success || r.data.AccessToken == "" {
		s.logger.Warn("Unexpected refresh response", "status_code", r.status, "malformed", r.malformed)
		return models.TokenSet{}, apperrors.New(apperrors.CodeInvalidResponse, orDefault(r.data.Message, "Invalid response from server"), nil)
	}

	tokens := models.TokenSet{
		AccessToken:  r.data.AccessToken,
		RefreshToken: current.RefreshToken,
		ExpiresAt:    s.now().Add(time.Duration(r.data.ExpiresIn) * time.Second),
	}
	if r.data.RefreshToken != "" {
		tokens.RefreshToken = r.data.RefreshToken
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		if current, ok := s.replacedSince(epoch); ok {
			s.logger.Info("New login while refreshing, refreshed tokens dropped")
			return current, nil
		}
		s.logger.Info("Session closed while refreshing, new tokens dropped")
		return models.TokenSet{}, apperrors.New(apperrors.CodeRefreshFailed, "Session was closed", nil)
	}
	s.tokens = tokens
	s.mu.Unlock()

	s.persist(ctx, tokens, epoch)
	s.logger.Info("Access token refreshed", "expires_at", tokens.ExpiresAt)
	return tokens, nil
}

// AuthorizedRequest sends request with the bearer token
// Expired token is refreshed before sending. A 401 answer triggers exactly one refresh and retry;
// if the refresh fails or the retry is rejected again the error wraps apperrors.ErrSessionExpired
// Caller must close the body of the returned response
func (s *Session) AuthorizedRequest(ctx context.Context, method string, url string, body []byte) (*http.Response, error) {
	token, err := s.ensureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.send(ctx, method, url, body, token)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeNetworkError, "Network error", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	discard(resp)

	s.logger.Info("Access token rejected, refreshing once", "url", url)
	tokens, err := s.refresh(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
	}

	resp, err = s.send(ctx, method, url, body, tokens.AccessToken)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeNetworkError, "Network error", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		s.logger.Warn("Refreshed token rejected too", "url", url)
		return nil, fmt.Errorf("%w: refreshed token rejected", apperrors.ErrSessionExpired)
	}

	return resp, nil
}

// ensureValidToken returns a usable access token, refreshing it if expired
func (s *Session) ensureValidToken(ctx context.Context) (string, error) {
	tokens := s.Tokens()
	if !s.isExpired(tokens) && tokens.AccessToken != "" {
		return tokens.AccessToken, nil
	}

	if !tokens.CanRefresh() {
		noRefresh := apperrors.New(apperrors.CodeNoRefreshToken, "No refresh token available", nil)
		return "", fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, noRefresh)
	}

	tokens, err := s.refresh(ctx, tokens.AccessToken)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
	}
	return tokens.AccessToken, nil
}

// Logout drops tokens and the cached user, in memory and in storage
// Idempotent
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.tokens = models.TokenSet{}
	s.user = nil
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	if err := s.writeStore(epoch, func() error { return s.store.Clear(ctx) }); err != nil {
		s.logger.Error("Failed to clear stored session", "error", err)
		return fmt.Errorf("can't clear stored session. Err: %w", err)
	}

	s.logger.Info("Logged out")
	return nil
}

// replacedSince returns tokens of a login made after epoch, if they are usable
func (s *Session) replacedSince(epoch uint64) (models.TokenSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.epoch == epoch || s.tokens.AccessToken == "" || s.isExpired(s.tokens) {
		return models.TokenSet{}, false
	}
	return s.tokens, true
}

// clearTokens drops tokens unless the session was already reset since epoch
func (s *Session) clearTokens(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.tokens = models.TokenSet{}
	s.epoch++
	epoch = s.epoch
	s.mu.Unlock()

	if err := s.writeStore(epoch, func() error { return s.store.ClearTokens(ctx) }); err != nil {
		s.logger.Error("Failed to clear stored tokens", "error", err)
	}
}

// cacheUser stores the user, a response without one leaves nothing cached
func (s *Session) cacheUser(ctx context.Context, user *models.User, epoch uint64) {
	if user == nil {
		s.logger.Warn("Authentication response has no user")
	}
	err := s.writeStore(epoch, func() error {
		if user == nil {
			return s.store.ClearUser(ctx)
		}
		return s.store.SaveUser(ctx, *user)
	})
	if err != nil {
		s.logger.Error("Failed to cache user", "error", err)
	}
}

// persist mirrors tokens to storage. In-memory state stays authoritative if storage fails
func (s *Session) persist(ctx context.Context, tokens models.TokenSet, epoch uint64) {
	if err := s.writeStore(epoch, func() error { return s.store.SaveTokens(ctx, tokens) }); err != nil {
		s.logger.Error("Failed to persist tokens", "error", err)
	}
}

// writeStore runs write unless the session moved past epoch
func (s *Session) writeStore(epoch uint64, write func() error) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	s.mu.RLock()
	current := s.epoch
	s.mu.RUnlock()

	if current != epoch {
		return nil
	}
	return write()
}

type reply struct {
	status    int
	data      tokenResponse
	malformed bool
}

// call posts JSON to an auth endpoint; error means the request itself failed
func (s *Session) call(ctx context.Context, path string, payload any) (reply, error) {
	var r reply

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return r, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return r, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return r, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	r.status = resp.StatusCode
	if err := json.NewDecoder(resp.Body).Decode(&r.data); err != nil {
		r.malformed = true
	}
	return r, nil
}

func (s *Session) send(ctx context.Context, method string, url string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	return s.client.Do(req)
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

func orDefault(value string, def string) string {
	if value == "" {
		return def
	}
	return value
}
