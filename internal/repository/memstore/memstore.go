// Package memstore keeps dev backend data in process memory
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/domain"
	"github.com/nkiryanov/pixelforge/internal/models"
)

// Storage implements every dev backend repository
type Storage struct {
	mu          sync.Mutex
	refresh     map[string]domain.RefreshToken
	accounts    map[int64]domain.Account
	generations []domain.Generation // oldest first
	lastImageID int64
}

func New() *Storage {
	return &Storage{
		refresh:  make(map[string]domain.RefreshToken),
		accounts: make(map[int64]domain.Account),
	}
}

func (s *Storage) Create(ctx context.Context, token domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refresh[token.Token]; ok {
		return fmt.Errorf("repo error: refresh token already exists")
	}
	s.refresh[token.Token] = token
	return nil
}

func (s *Storage) GetAndMarkUsed(ctx context.Context, tokenString string, usedAt time.Time) (domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refresh[tokenString]
	if !ok {
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}
	if !token.UsedAt.IsZero() {
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenIsUsed)
	}

	token.UsedAt = usedAt
	s.refresh[tokenString] = token
	return token, nil
}

func (s *Storage) Upsert(ctx context.Context, user models.User, seenAt time.Time) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[user.ID]
	if !ok {
		account.CreatedAt = seenAt
	}
	account.User = user
	account.LastSeen = seenAt
	s.accounts[user.ID] = account
	return account, nil
}

func (s *Storage) GetAccount(ctx context.Context, userID int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return account, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	}
	return account, nil
}

// GenerationRepo methods live on a view so names do not clash with RefreshTokenRepo
type Generations struct {
	s *Storage
}

func (s *Storage) Accounts() domain.AccountRepo {
	return s
}

func (s *Storage) Refresh() domain.RefreshTokenRepo {
	return s
}

func (s *Storage) Generations() domain.GenerationRepo {
	return Generations{s: s}
}

func (g Generations) Create(ctx context.Context, gen domain.Generation) (domain.Generation, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	images := make([]models.ImageRef, len(gen.Images))
	for i, img := range gen.Images {
		g.s.lastImageID++
		images[i] = models.ImageRef{ID: g.s.lastImageID, URL: img.URL}
	}
	gen.Images = images

	g.s.generations = append(g.s.generations, gen)
	return gen, nil
}

func (g Generations) ListByUser(ctx context.Context, userID int64) ([]domain.Generation, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	var out []domain.Generation
	for _, gen := range slices.Backward(g.s.generations) {
		if gen.UserID == userID {
			out = append(out, gen)
		}
	}
	return out, nil
}

func (g Generations) GetImage(ctx context.Context, userID int64, imageID int64) (models.ImageRef, error) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	for _, gen := range g.s.generations {
		if gen.UserID != userID {
			continue
		}
		for _, img := range gen.Images {
			if img.ID == imageID {
				return img, nil
			}
		}
	}
	return models.ImageRef{}, fmt.Errorf("repo error: %w", apperrors.ErrImageNotFound)
}

var (
	_ domain.RefreshTokenRepo = (*Storage)(nil)
	_ domain.AccountRepo      = (*Storage)(nil)
	_ domain.GenerationRepo   = Generations{}
	_ domain.Storage          = (*Storage)(nil)
)
