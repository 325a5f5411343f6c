package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nkiryanov/pixelforge/internal/app"
	"github.com/nkiryanov/pixelforge/internal/carousel"
	"github.com/nkiryanov/pixelforge/internal/db"
	"github.com/nkiryanov/pixelforge/internal/hostbridge"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/repository"
	"github.com/nkiryanov/pixelforge/internal/repository/postgres"
	"github.com/nkiryanov/pixelforge/internal/service/auth"
	"github.com/nkiryanov/pixelforge/internal/service/bootstrap"
	"github.com/nkiryanov/pixelforge/internal/service/generation"
	"github.com/nkiryanov/pixelforge/internal/tokenstore"
)

// ClientApp is the mini app core assembled for a terminal
type ClientApp struct {
	Session   *auth.Session
	Bootstrap *bootstrap.Bootstrapper
	State     *app.State
	Client    *generation.Client

	out    io.Writer
	logger logger.Logger
	close  func()
}

func NewClientApp(ctx context.Context, c *Config, out io.Writer) (*ClientApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	kv, closeKV, err := openKV(ctx, c)
	if err != nil {
		return nil, err
	}

	session, err := auth.NewSession(ctx, auth.Config{BaseURL: c.BackendURL}, tokenstore.New(kv), l.WithGroup("session"))
	if err != nil {
		closeKV()
		return nil, fmt.Errorf("error while restoring session. Err: %w", err)
	}

	// Init data plays the host: without it the bridge never initializes
	var bridge hostbridge.Bridge = hostbridge.NewUnavailable()
	if c.InitData != "" {
		bridge = hostbridge.NewStatic(c.InitData, l)
	}

	client := generation.NewClient(session, l)
	state := app.New(client, bridge, l)

	boot, err := bootstrap.New(bootstrap.Config{DevMode: c.DevMode}, session, bridge, state, l)
	if err != nil {
		closeKV()
		return nil, fmt.Errorf("error while creating bootstrapper. Err: %w", err)
	}

	return &ClientApp{
		Session:   session,
		Bootstrap: boot,
		State:     state,
		Client:    client,
		out:       out,
		logger:    l,
		close:     closeKV,
	}, nil
}

func (a *ClientApp) Close() {
	a.close()
}

// Authenticate runs bootstrap and publishes the user to app state
func (a *ClientApp) Authenticate(ctx context.Context) error {
	snap := a.Bootstrap.Run(ctx)
	if snap.State != bootstrap.StateAuthenticated {
		return fmt.Errorf("not authenticated: %s", snap.ErrorMessage())
	}
	a.State.SetUser(snap.User)
	return nil
}

// Toasts are flushed to output newest last
func (a *ClientApp) PrintToasts() {
	toasts := a.State.Toasts()
	for i := len(toasts) - 1; i >= 0; i-- {
		t := toasts[i]
		fmt.Fprintf(a.out, "[%s] %s: %s\n", t.Type, t.Title, t.Message)
		a.State.DismissToast(t.ID)
	}
}

// NewViewer opens carousel over the flattened history
// Settle timers are run by Settle so a scripted swipe sequence does not wait on the clock
func (a *ClientApp) NewViewer() (*carousel.Controller, *settler) {
	s := &settler{}
	v := carousel.New(carousel.Config{AfterFunc: s.AfterFunc}, a.State.Images())
	return v, s
}

type settler struct {
	pending []func()
}

func (s *settler) AfterFunc(_ time.Duration, f func()) func() bool {
	s.pending = append(s.pending, f)
	return func() bool { return false }
}

func (s *settler) Settle() {
	pending := s.pending
	s.pending = nil
	for _, f := range pending {
		f()
	}
}

func openKV(ctx context.Context, c *Config) (repository.KV, func(), error) {
	noop := func() {}

	switch c.Store {
	case StoreMemory:
		return repository.NewMemoryKV(), noop, nil

	case StoreFile:
		kv, err := repository.NewFileKV(c.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("error while opening session file. Err: %w", err)
		}
		return kv, noop, nil

	case StorePostgres:
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		return postgres.NewKV(pool, "pixelforge"), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", c.Store)
	}
}
