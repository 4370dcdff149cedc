package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/observability"
	"storefront/internal/session"
	"storefront/internal/upstream"
)

// AuthAPI is the part of the backend the auth endpoints proxy to.
type AuthAPI interface {
	Login(ctx context.Context, req upstream.LoginRequest) (*upstream.AuthResult, error)
	Register(ctx context.Context, req upstream.RegisterRequest) (*upstream.AuthResult, error)
	VerifyEmail(ctx context.Context, token string, req upstream.VerifyEmailRequest) error
	ForgotPassword(ctx context.Context, emailOrPhone string) error
	ResetPassword(ctx context.Context, req upstream.ResetPasswordRequest) error
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	api     AuthAPI
	gate    *session.Gate
	cookies session.Cookies
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(api AuthAPI, gate *session.Gate, cookies session.Cookies) *AuthHandler {
	return &AuthHandler{
		api:     api,
		gate:    gate,
		cookies: cookies,
	}
}

// SessionResponse is returned when tokens were written to cookies.
type SessionResponse struct {
	User      *upstream.User `json:"user,omitempty"`
	ExpiresIn int            `json:"expiresIn"`
}

// MeResponse describes the current access token.
type MeResponse struct {
	UserID     string     `json:"userId"`
	Email      string     `json:"email,omitempty"`
	Role       string     `json:"role"`
	IsVerified bool       `json:"isVerified"`
	IsAdmin    bool       `json:"isAdmin"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req upstream.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	errs := FieldErrors{}
	checkEmailOrPhone(errs, "email", req.Email)
	if req.Password == "" {
		errs.add("password", "Password is required")
	}
	if !errs.empty() {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "Invalid input", Fields: errs})
		return
	}

	result, err := h.api.Login(r.Context(), req)
	if err != nil {
		observability.FromContext(r.Context()).Info("login failed", slog.String("error", err.Error()))
		writeUpstreamError(w, err)
		return
	}

	h.cookies.Set(w, result.Credentials())
	writeJSON(w, http.StatusOK, h.sessionResponse(result))
}

// Register handles user registration. The backend may log the new user in
// straight away, in which case the tokens are set like on login.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req upstream.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	errs := FieldErrors{}
	checkEmailOrPhone(errs, "email", req.Email)
	checkNewPassword(errs, req.Password, req.ConfirmPassword)
	if !errs.empty() {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "Invalid input", Fields: errs})
		return
	}

	result, err := h.api.Register(r.Context(), req)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	if result.AccessToken != "" {
		h.cookies.Set(w, result.Credentials())
	}
	writeJSON(w, http.StatusCreated, h.sessionResponse(result))
}

// Logout clears the auth cookies. Tokens are stateless so there is nothing to
// revoke here.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh trades the refresh_token cookie for a new pair. It shares in-flight
// refreshes with the page gate.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	creds := session.ReadCredentials(r)
	if creds.RefreshToken == "" {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	fresh, err := h.gate.Refresh(r.Context(), creds.RefreshToken, time.Now())
	if err != nil {
		observability.FromContext(r.Context()).Info("api refresh failed", slog.String("error", err.Error()))
		h.cookies.Clear(w)
		if errors.Is(err, domain.ErrRefreshFailed) {
			http.Error(w, `{"error":"Session expired"}`, http.StatusUnauthorized)
			return
		}
		writeUpstreamError(w, err)
		return
	}

	h.cookies.Set(w, fresh)
	writeJSON(w, http.StatusOK, SessionResponse{ExpiresIn: int(h.cookies.AccessMaxAge.Seconds())})
}

// Me returns the claims of the current access token
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	resp := MeResponse{
		UserID:     string(claims.UserID),
		Email:      claims.Email,
		Role:       claims.Role,
		IsVerified: claims.IsVerified,
		IsAdmin:    h.gate.Policy().IsAdmin(claims),
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}

// VerifyEmail confirms an address with the emailed code. The caller's access
// token is forwarded when there is one.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req upstream.VerifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	errs := FieldErrors{}
	checkEmailOrPhone(errs, "email", req.Email)
	if req.Code == "" {
		errs.add("code", "Verification code is required")
	}
	if !errs.empty() {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "Invalid input", Fields: errs})
		return
	}

	token := session.ReadCredentials(r).AccessToken
	if err := h.api.VerifyEmail(r.Context(), token, req); err != nil {
		writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type forgotPasswordRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
}

// ForgotPassword always answers 202 once the backend accepted the request,
// whether or not the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.EmailOrPhone = strings.TrimSpace(req.EmailOrPhone)
	errs := FieldErrors{}
	checkEmailOrPhone(errs, "emailOrPhone", req.EmailOrPhone)
	if !errs.empty() {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "Invalid input", Fields: errs})
		return
	}

	if err := h.api.ForgotPassword(r.Context(), req.EmailOrPhone); err != nil {
		if upstream.IsStatus(err, http.StatusNotFound) {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetPassword sets a new password using a reset token
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req upstream.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	errs := FieldErrors{}
	if strings.TrimSpace(req.Token) == "" {
		errs.add("token", "Reset token is required")
	}
	checkNewPassword(errs, req.Password, req.ConfirmPassword)
	if !errs.empty() {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "Invalid input", Fields: errs})
		return
	}

	if err := h.api.ResetPassword(r.Context(), req); err != nil {
		writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) sessionResponse(result *upstream.AuthResult) SessionResponse {
	resp := SessionResponse{ExpiresIn: result.ExpiresIn}
	if result.User.ID != "" || result.User.Email != "" {
		user := result.User
		resp.User = &user
	}
	if resp.ExpiresIn == 0 && result.AccessToken != "" {
		resp.ExpiresIn = int(h.cookies.AccessMaxAge.Seconds())
	}
	return resp
}
