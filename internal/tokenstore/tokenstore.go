package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/repository"
)

// Stable keys of the persisted session
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenExpiry  = "token_expiry" // unix milliseconds
	KeyUser         = "auth_user"    // JSON
)

// Store persists the token set and the cached user record
// It holds no logic beyond load, save and clear
type Store struct {
	kv repository.KV
}

func New(kv repository.KV) *Store {
	return &Store{kv: kv}
}

// LoadTokens returns whatever is persisted. Missing keys leave fields empty
func (s *Store) LoadTokens(ctx context.Context) (models.TokenSet, error) {
	var tokens models.TokenSet
	var err error

	if tokens.AccessToken, err = s.get(ctx, KeyAccessToken); err != nil {
		return models.TokenSet{}, err
	}
	if tokens.RefreshToken, err = s.get(ctx, KeyRefreshToken); err != nil {
		return models.TokenSet{}, err
	}

	expiry, err := s.get(ctx, KeyTokenExpiry)
	if err != nil {
		return models.TokenSet{}, err
	}
	if expiry != "" {
		ms, err := strconv.ParseInt(expiry, 10, 64)
		if err != nil {
			return models.TokenSet{}, fmt.Errorf("stored token expiry is malformed. Err: %w", err)
		}
		tokens.ExpiresAt = time.UnixMilli(ms)
	}

	return tokens, nil
}

// SaveTokens writes the access token and the expiry
// The refresh token is written only when set, so a refresh response without one keeps the stored value
func (s *Store) SaveTokens(ctx context.Context, tokens models.TokenSet) error {
	if err := s.kv.Set(ctx, KeyAccessToken, tokens.AccessToken); err != nil {
		return fmt.Errorf("can't save access token. Err: %w", err)
	}
	if tokens.ExpiresAt.IsZero() {
		if err := s.kv.Delete(ctx, KeyTokenExpiry); err != nil {
			return fmt.Errorf("can't reset token expiry. Err: %w", err)
		}
	} else if err := s.kv.Set(ctx, KeyTokenExpiry, strconv.FormatInt(tokens.ExpiresAt.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("can't save token expiry. Err: %w", err)
	}
	if tokens.RefreshToken != "" {
		if err := s.kv.Set(ctx, KeyRefreshToken, tokens.RefreshToken); err != nil {
			return fmt.Errorf("can't save refresh token. Err: %w", err)
		}
	}
	return nil
}

func (s *Store) ClearTokens(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyTokenExpiry)
}

// LoadUser returns the cached user; ok is false if nothing cached
func (s *Store) LoadUser(ctx context.Context) (user models.User, ok bool, err error) {
	raw, err := s.get(ctx, KeyUser)
	if err != nil || raw == "" {
		return user, false, err
	}

	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return models.User{}, false, fmt.Errorf("stored user is malformed. Err: %w", err)
	}
	return user, true, nil
}

func (s *Store) SaveUser(ctx context.Context, user models.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, KeyUser, string(raw))
}

func (s *Store) ClearUser(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyUser)
}

// Clear removes tokens and the cached user together
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyTokenExpiry, KeyUser)
}

// get hides ErrKeyNotFound: a missing key is an empty value here
func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, apperrors.ErrKeyNotFound):
		return "", nil
	default:
		return "", fmt.Errorf("can't read %s. Err: %w", key, err)
	}
}
