package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/domain"
)

// LoginRequest carries an email or phone number and a password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the registration form payload.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// VerifyEmailRequest confirms an address with the emailed code.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResetPasswordRequest sets a new password using a reset token.
type ResetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// User is the account summary returned with tokens.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
}

// AuthResult is a token pair plus the authenticated user.
type AuthResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
	User         User   `json:"user"`
}

// Credentials returns the token pair.
func (a AuthResult) Credentials() domain.Credentials {
	return domain.Credentials{AccessToken: a.AccessToken, RefreshToken: a.RefreshToken}
}

// authEnvelope accepts both {"result":{...}} and a bare AuthResult.
type authEnvelope struct {
	Result *AuthResult `json:"result"`
	AuthResult
}

func (e authEnvelope) unwrap() *AuthResult {
	if e.Result != nil {
		return e.Result
	}
	r := e.AuthResult
	return &r
}

// Login exchanges credentials for tokens.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	var env authEnvelope
	err := c.doRequest(ctx, call{method: http.MethodPost, path: "auth/login", endpoint: "auth_login", body: req}, &env)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			return nil, fmt.Errorf("upstream.Login: %w: %w", domain.ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("upstream.Login: %w", err)
	}
	result := env.unwrap()
	if result.AccessToken == "" {
		return nil, fmt.Errorf("upstream.Login: %w", domain.ErrInvalidToken)
	}
	return result, nil
}

// Register creates an account. Tokens are returned when the backend logs the
// new user in straight away.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	var env authEnvelope
	err := c.doRequest(ctx, call{method: http.MethodPost, path: "auth/register", endpoint: "auth_register", body: req}, &env)
	if err != nil {
		return nil, fmt.Errorf("upstream.Register: %w", err)
	}
	return env.unwrap(), nil
}

// Refresh mints a new token pair from a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.Credentials, error) {
	var creds domain.Credentials
	err := c.doRequest(ctx, call{
		method:   http.MethodPost,
		path:     "auth/refresh-token",
		endpoint: "auth_refresh",
		body:     map[string]string{"refreshToken": refreshToken},
	}, &creds)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			return domain.Credentials{}, fmt.Errorf("upstream.Refresh: %w: %w", domain.ErrRefreshFailed, err)
		}
		return domain.Credentials{}, fmt.Errorf("upstream.Refresh: %w", err)
	}
	if creds.AccessToken == "" {
		return domain.Credentials{}, fmt.Errorf("upstream.Refresh: %w: empty access token", domain.ErrRefreshFailed)
	}
	return creds, nil
}

// VerifyEmail confirms the user's email address.
func (c *Client) VerifyEmail(ctx context.Context, token string, req VerifyEmailRequest) error {
	err := c.doRequest(ctx, call{method: http.MethodPost, path: "auth/verify-email", endpoint: "auth_verify_email", token: token, body: req}, nil)
	if err != nil {
		return fmt.Errorf("upstream.VerifyEmail: %w", err)
	}
	return nil
}

// ForgotPassword asks the backend to send a reset link.
func (c *Client) ForgotPassword(ctx context.Context, emailOrPhone string) error {
	err := c.doRequest(ctx, call{
		method:   http.MethodPost,
		path:     "auth/forgot-password",
		endpoint: "auth_forgot_password",
		body:     map[string]string{"emailOrPhone": emailOrPhone},
	}, nil)
	if err != nil {
		return fmt.Errorf("upstream.ForgotPassword: %w", err)
	}
	return nil
}

// ResetPassword sets a new password.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	err := c.doRequest(ctx, call{method: http.MethodPost, path: "auth/reset-password", endpoint: "auth_reset_password", body: req}, nil)
	if err != nil {
		return fmt.Errorf("upstream.ResetPassword: %w", err)
	}
	return nil
}
