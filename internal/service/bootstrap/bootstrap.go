package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/hostbridge"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
)

const (
	defaultMaxRetries   = 3
	defaultBackoffStep  = time.Second
	defaultReadyTimeout = 5 * time.Second

	MessageEnvironmentUnavailable = "Telegram data not available - please open in Telegram"
	MessageRetriesExhausted       = "Unable to connect to authentication server. Please check your internet connection and try again."

	failureToastTitle    = "Authentication Failed"
	failureToastDuration = 8 * time.Second
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateAuthenticated
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is what the UI observes
// User is set only when Authenticated, Err only when Errored
type Snapshot struct {
	State State
	User  models.User
	Err   error
}

// ErrorMessage is user facing text for Errored state
func (s Snapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	if msg := apperrors.MessageOf(s.Err); msg != "" {
		return msg
	}
	return s.Err.Error()
}

type session interface {
	Authenticate(ctx context.Context, initData string) (models.AuthResult, error)
	HasValidSession() bool
	CachedUser() (models.User, bool)
	Logout(ctx context.Context) error
}

// Notifier receives toasts the bootstrapper wants shown
type Notifier interface {
	Notify(toast models.Toast)
}

// Fixed identity used in development mode
var DevUser = models.User{
	ID:           123456789,
	FirstName:    "Test",
	LastName:     "User",
	Username:     "testuser",
	LanguageCode: "en",
}

type Config struct {
	// Authentication retries after the first failed attempt, negative disables retries
	MaxRetries int

	// Retry n waits n*BackoffStep
	BackoffStep time.Duration

	// How long to wait for the host to deliver init data
	ReadyTimeout time.Duration

	// Skip network and authenticate as DevUser
	DevMode bool

	// Sleep used between retries, context aware. Default waits on a timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// Bootstrapper drives the app from launch to an authenticated (or errored) session
type Bootstrapper struct {
	cfg      Config
	session  session
	bridge   hostbridge.Bridge
	notifier Notifier
	logger   logger.Logger

	mu      sync.Mutex
	snap    Snapshot
	running bool
	subs    map[chan Snapshot]struct{}
}

func New(cfg Config, s session, bridge hostbridge.Bridge, notifier Notifier, l logger.Logger) (*Bootstrapper, error) {
	if s == nil {
		return nil, errors.New("session must not be nil")
	}
	if bridge == nil {
		bridge = hostbridge.NewUnavailable()
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffStep == 0 {
		cfg.BackoffStep = defaultBackoffStep
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}

	return &Bootstrapper{
		cfg:      cfg,
		session:  s,
		bridge:   bridge,
		notifier: notifier,
		logger:   l.WithGroup("bootstrap"),
		snap:     Snapshot{State: StateLoading},
		subs:     make(map[chan Snapshot]struct{}),
	}, nil
}

// Snapshot returns current state
func (b *Bootstrapper) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Subscribe returns channel receiving every state change and a func to stop receiving
// Slow subscribers miss intermediate snapshots, never the latest one
func (b *Bootstrapper) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Run bootstraps session and returns the final snapshot
// If a run is already in progress the current snapshot is returned immediately
func (b *Bootstrapper) Run(ctx context.Context) Snapshot {
	if !b.begin() {
		return b.Snapshot()
	}
	defer b.end()

	b.bridge.Ready()
	b.bridge.Expand()

	if b.cfg.DevMode {
		b.logger.Warn("Development mode, authentication skipped", "user_id", DevUser.ID)
		return b.set(Snapshot{State: StateAuthenticated, User: DevUser})
	}

	if b.session.HasValidSession() {
		if user, ok := b.session.CachedUser(); ok {
			b.logger.Info("Restored stored session", "user_id", user.ID)
			return b.set(Snapshot{State: StateAuthenticated, User: user})
		}
	}

	initData, err := b.waitInitData(ctx)
	if err != nil {
		b.logger.Warn("Host environment not available", "error", err)
		return b.set(Snapshot{State: StateErrored, Err: err})
	}

	return b.authenticate(ctx, initData)
}

// RetryConnection reruns bootstrap, used from Errored or Idle state
func (b *Bootstrapper) RetryConnection(ctx context.Context) Snapshot {
	b.logger.Info("Retrying connection")
	return b.Run(ctx)
}

// Logout clears session and moves to Idle
func (b *Bootstrapper) Logout(ctx context.Context) error {
	err := b.session.Logout(ctx)
	b.set(Snapshot{State: StateIdle})
	return err
}

func (b *Bootstrapper) waitInitData(ctx context.Context) (string, error) {
	timer := time.NewTimer(b.cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-b.bridge.Initialized():
	case <-timer.C:
		return "", apperrors.New(apperrors.CodeEnvironmentUnavailable, MessageEnvironmentUnavailable, nil)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	initData := b.bridge.InitData()
	if initData == "" {
		return "", apperrors.New(apperrors.CodeEnvironmentUnavailable, MessageEnvironmentUnavailable, nil)
	}
	return initData, nil
}

func (b *Bootstrapper) authenticate(ctx context.Context, initData string) Snapshot {
	var lastErr error

	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * b.cfg.BackoffStep
			b.logger.Info("Retrying authentication", "attempt", attempt, "delay", delay)
			if err := b.cfg.Sleep(ctx, delay); err != nil {
				return b.set(Snapshot{State: StateErrored, Err: err})
			}
		}

		res, err := b.session.Authenticate(ctx, initData)
		if err == nil {
			b.logger.Info("Authenticated", "user_id", res.User.ID, "attempts", attempt+1)
			return b.set(Snapshot{State: StateAuthenticated, User: res.User})
		}

		lastErr = err
		b.logger.Warn("Authentication attempt failed", "attempt", attempt, "code", apperrors.CodeOf(err), "error", err)
	}

	code := apperrors.CodeOf(lastErr)
	if code == "" {
		code = apperrors.CodeAuthFailed
	}
	err := apperrors.New(code, MessageRetriesExhausted, lastErr)
	snap := b.set(Snapshot{State: StateErrored, Err: err})

	if b.notifier != nil {
		b.notifier.Notify(models.Toast{
			Type:     models.ToastError,
			Title:    failureToastTitle,
			Message:  MessageRetriesExhausted,
			Duration: failureToastDuration,
		})
	}
	return snap
}

func (b *Bootstrapper) begin() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return false
	}
	b.running = true
	b.setLocked(Snapshot{State: StateLoading})
	return true
}

func (b *Bootstrapper) end() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

func (b *Bootstrapper) set(s Snapshot) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(s)
	return s
}

func (b *Bootstrapper) setLocked(s Snapshot) {
	b.snap = s
	for ch := range b.subs {
		// Drop stale value so the latest always fits
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
