package models

import (
	"time"
)

// TokenSet is the pair of credentials issued by the backend
// ExpiresAt refers to the access token and is computed as issue time + expires_in
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // zero if unknown
}

// IsZero reports whether no credentials are held
func (t TokenSet) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == "" && t.ExpiresAt.IsZero()
}

// CanRefresh reports whether the set may be refreshed without user interaction
func (t TokenSet) CanRefresh() bool {
	return t.RefreshToken != ""
}

// AuthResult is the successful outcome of authentication
type AuthResult struct {
	User   User
	Tokens TokenSet
}
