package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/pixelforge/internal/db"
	"github.com/nkiryanov/pixelforge/internal/domain"
	"github.com/nkiryanov/pixelforge/internal/handlers"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/repository/memstore"
	"github.com/nkiryanov/pixelforge/internal/repository/postgres"
	"github.com/nkiryanov/pixelforge/internal/service/accounts"
	"github.com/nkiryanov/pixelforge/internal/service/delivery"
	"github.com/nkiryanov/pixelforge/internal/service/gallery"
	"github.com/nkiryanov/pixelforge/internal/service/telegram"
	"github.com/nkiryanov/pixelforge/internal/service/tokenmanager"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	dispatcher *delivery.Dispatcher
	logger     logger.Logger
	close      func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Initialize repositories
	storage, closeStorage, err := openStorage(ctx, c, l)
	if err != nil {
		return nil, err
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage.Refresh())
	if err != nil {
		closeStorage()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	accountService, err := accounts.NewService(accounts.Config{BotToken: c.BotToken}, tokenManager, storage.Accounts(), l.WithGroup("accounts"))
	if err != nil {
		closeStorage()
		return nil, fmt.Errorf("error while creating accounts service. Err: %w", err)
	}
	if c.BotToken == "" {
		l.Warn("Bot token is not set: init data is not verified and images are not sent")
	}
	galleryService := gallery.NewService(gallery.Config{ImageBaseURL: c.ImageBaseURL}, storage.Generations(), l.WithGroup("gallery"))

	botClient := telegram.NewClient(c.TelegramAPIURL, c.BotToken, l.WithGroup("telegram"))
	dispatcher := delivery.New(delivery.Config{}, botClient, l.WithGroup("delivery"))

	mux := handlers.NewRouter(accountService, galleryService, dispatcher, l)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		dispatcher: dispatcher,
		logger:     l,
		close:      closeStorage,
	}, nil
}

// openStorage connects to postgres and migrates it when DSN is set, otherwise keeps data in memory
func openStorage(ctx context.Context, c *Config, l logger.Logger) (domain.Storage, func(), error) {
	if c.DatabaseDSN == "" {
		l.Info("Database is not set, data is kept in memory")
		return memstore.New(), func() {}, nil
	}

	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	return postgres.NewStorage(pool), pool.Close, nil
}

// Run starts http server and delivery workers, closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	dispatcherStopped := s.dispatcher.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-dispatcherStopped
	s.close()

	return err
}
