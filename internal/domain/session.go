package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// Credentials is the access/refresh token pair held in auth cookies.
// A refresh replaces both tokens at once.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether neither token is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// TokenRefresher exchanges a refresh token for a new credential pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
}
