package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/domain"
	"github.com/nkiryanov/pixelforge/internal/initdata"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/service/tokenmanager"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"
	defaultInitDataMaxAge   = 24 * time.Hour
)

type tokenManager interface {
	GeneratePair(ctx context.Context, userID int64) (tokenmanager.TokenPair, error)
	UseRefresh(ctx context.Context, refresh string) (domain.RefreshToken, error)
	ParseAccess(ctx context.Context, access string) (int64, error)
}

type Config struct {
	// Bot token to verify init data signature
	// If empty the signature is not checked, only for local development
	BotToken string

	// Init data older than this is rejected, default is used if not set
	InitDataMaxAge time.Duration

	// Header and scheme to read access token from
	AccessHeaderName string
	AccessAuthScheme string

	Now func() time.Time
}

// Login result: the pair to hand out and the user it was issued for
type Session struct {
	Pair tokenmanager.TokenPair
	User models.User
}

type Service struct {
	botToken       string
	initDataMaxAge time.Duration

	accessHeaderName string
	accessAuthScheme string

	now func() time.Time

	token    tokenManager
	accounts domain.AccountRepo
	logger   logger.Logger
}

func NewService(cfg Config, token tokenManager, accounts domain.AccountRepo, l logger.Logger) (*Service, error) {
	if cfg.InitDataMaxAge == 0 {
		cfg.InitDataMaxAge = defaultInitDataMaxAge
	}
	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		botToken:         cfg.BotToken,
		initDataMaxAge:   cfg.InitDataMaxAge,
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
		now:              cfg.Now,
		token:            token,
		accounts:         accounts,
		logger:           l,
	}, nil
}

// Login user with Telegram init data
// Has to return apperrors.ErrInitDataInvalid if payload could not be trusted
func (s *Service) Login(ctx context.Context, raw string) (Session, error) {
	var (
		data initdata.Data
		err  error
	)

	if s.botToken == "" {
		data, err = initdata.Parse(raw)
	} else {
		data, err = initdata.Validate(raw, s.botToken, s.initDataMaxAge, s.now())
	}
	if err != nil {
		s.logger.Info("Init data rejected", "error", err)
		return Session{}, err
	}

	account, err := s.accounts.Upsert(ctx, data.User, s.now())
	if err != nil {
		return Session{}, fmt.Errorf("can't save account. Err: %w", err)
	}

	pair, err := s.token.GeneratePair(ctx, account.User.ID)
	if err != nil {
		return Session{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	s.logger.Debug("User logged in", "user_id", account.User.ID)
	return Session{Pair: pair, User: account.User}, nil
}

// Rotate tokens: refresh token is single use
// If token expired: returns apperrors.ErrRefreshTokenExpired
// If token not found or used: returns apperrors.ErrRefreshTokenNotFound or apperrors.ErrRefreshTokenIsUsed
func (s *Service) Refresh(ctx context.Context, refresh string) (tokenmanager.TokenPair, error) {
	token, err := s.token.UseRefresh(ctx, refresh)
	if err != nil {
		return tokenmanager.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, token.UserID)
	if err != nil {
		return tokenmanager.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Auth returns user the request access token belongs to
func (s *Service) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, access, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || access == "" {
		return models.User{}, errors.New("access token not found")
	}

	userID, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	return s.Profile(ctx, userID)
}

// Profile of known user
// Has to return apperrors.ErrUserNotFound if user never logged in
func (s *Service) Profile(ctx context.Context, userID int64) (models.User, error) {
	account, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("can't get account. Err: %w", err)
	}
	return account.User, nil
}
