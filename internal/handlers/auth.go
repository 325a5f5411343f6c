package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/handlers/render"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/service/tokenmanager"
)

const tokenType = "Bearer"

type tokenResponse struct {
	Success      bool         `json:"success"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *models.User `json:"user,omitempty"`
}

func newTokenResponse(pair tokenmanager.TokenPair) tokenResponse {
	return tokenResponse{
		Success:      true,
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		TokenType:    tokenType,
		ExpiresIn:    int64(pair.AccessTTL.Seconds()),
	}
}

func handleTelegramAuth(accountService accountService, logger logger.Logger) http.Handler {
	type request struct {
		InitData string `json:"initData" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := accountService.Login(r.Context(), data.InitData)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInitDataInvalid):
				render.ServiceError(w, apperrors.CodeAuthFailed, "Invalid Telegram init data", http.StatusUnauthorized)
			default:
				logger.Error("Login failed", "error", err)
				render.ServiceError(w, apperrors.CodeAuthFailed, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		res := newTokenResponse(session.Pair)
		res.User = &session.User
		render.JSON(w, res)
	})
}

func handleTokenRefresh(accountService accountService, logger logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := accountService.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRefreshTokenExpired):
				render.ServiceError(w, apperrors.CodeRefreshFailed, "Refresh token expired", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrRefreshTokenIsUsed), errors.Is(err, apperrors.ErrRefreshTokenNotFound):
				render.ServiceError(w, apperrors.CodeRefreshFailed, "Refresh token not found", http.StatusUnauthorized)
			default:
				logger.Error("Refresh failed", "error", err)
				render.ServiceError(w, apperrors.CodeRefreshFailed, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, newTokenResponse(pair))
	})
}
