package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/pixelforge/internal/domain"
	"github.com/nkiryanov/pixelforge/internal/handlers/middleware"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/service/accounts"
	"github.com/nkiryanov/pixelforge/internal/service/delivery"
	"github.com/nkiryanov/pixelforge/internal/service/tokenmanager"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// NewRouter serves the mini app webhook contract
func NewRouter(
	accountService accountService,
	galleryService galleryService,
	deliveryQueue deliveryQueue,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(accountService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	mux := http.NewServeMux()

	mux.Handle("POST /auth/telegram", handleTelegramAuth(accountService, logger))
	mux.Handle("POST /auth/refresh", handleTokenRefresh(accountService, logger))

	mux.Handle("POST /generate-image", withAuth(handleGenerate(galleryService, logger)))
	mux.Handle("GET /download-image", withAuth(handleDownload(galleryService, deliveryQueue, logger)))
	mux.Handle("GET /history", withAuth(handleHistory(galleryService, logger)))
	mux.Handle("GET /profile", withAuth(handleProfile()))

	handler := chain(mux,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type accountService interface {
	// Login user with Telegram init data
	// Has to return apperrors.ErrInitDataInvalid if payload could not be trusted
	Login(ctx context.Context, initData string) (accounts.Session, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	Refresh(ctx context.Context, refresh string) (tokenmanager.TokenPair, error)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type galleryService interface {
	Generate(ctx context.Context, userID int64, prompt string, style string) (domain.Generation, error)
	History(ctx context.Context, userID int64) ([]domain.Generation, error)
	Image(ctx context.Context, userID int64, imageID int64) (models.ImageRef, error)
}

type deliveryQueue interface {
	Enqueue(job delivery.Job) error
}
