package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/session"
	"storefront/internal/testutil"
	"storefront/internal/upstream"
)

func newTestAuthHandler(api *testutil.MockAuthAPI) *AuthHandler {
	decoder := session.NewDecoder(testutil.TestJWTSecret, session.DefaultExpiryBuffer)
	policy := session.NewPolicy(decoder, session.NewLocales([]string{"en", "vi"}), session.DefaultAdminRole)
	cookies := session.NewCookies(false, session.DefaultAccessMaxAge, session.DefaultRefreshMaxAge)
	return NewAuthHandler(api, session.NewGate(policy, api), cookies)
}

func loginResult() *upstream.AuthResult {
	return &upstream.AuthResult{
		AccessToken:  testutil.NewTestToken(),
		RefreshToken: "refresh-1",
		ExpiresIn:    900,
		User:         upstream.User{ID: "42", Username: "alice", Email: "alice@example.com"},
	}
}

func TestAuthHandler_Login(t *testing.T) {
	result := loginResult()
	api := &testutil.MockAuthAPI{
		LoginFunc: func(ctx context.Context, req upstream.LoginRequest) (*upstream.AuthResult, error) {
			assert.Equal(t, "alice@example.com", req.Email)
			assert.Equal(t, "secret", req.Password)
			return result, nil
		},
	}
	h := newTestAuthHandler(api)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": " alice@example.com ", "password": "secret"})
	w := httptest.NewRecorder()
	h.Login(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	access := testutil.AssertCookie(t, w, session.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, result.AccessToken, access.Value)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	refresh := testutil.AssertCookie(t, w, session.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh-1", refresh.Value)

	resp := testutil.DecodeJSON[SessionResponse](t, w)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, 900, resp.ExpiresIn)
}

func TestAuthHandler_LoginWithPhone(t *testing.T) {
	api := &testutil.MockAuthAPI{
		LoginFunc: func(ctx context.Context, req upstream.LoginRequest) (*upstream.AuthResult, error) {
			return loginResult(), nil
		},
	}
	h := newTestAuthHandler(api)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "+84901234567", "password": "secret"})
	w := httptest.NewRecorder()
	h.Login(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]string
		wantField string
	}{
		{"missing email", map[string]string{"password": "x"}, "email"},
		{"bad email", map[string]string{"email": "not-an-email", "password": "x"}, "email"},
		{"bad phone", map[string]string{"email": "012", "password": "x"}, "email"},
		{"missing password", map[string]string{"email": "a@example.com"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &testutil.MockAuthAPI{}
			h := newTestAuthHandler(api)

			w := httptest.NewRecorder()
			h.Login(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/login", tt.body))

			testutil.AssertStatusCode(t, w, http.StatusBadRequest)
			resp := testutil.DecodeJSON[validationResponse](t, w)
			assert.Contains(t, resp.Fields, tt.wantField)
			testutil.AssertNoCookie(t, w, session.AccessTokenCookie)
		})
	}
}

func TestAuthHandler_LoginInvalidBody(t *testing.T) {
	h := newTestAuthHandler(&testutil.MockAuthAPI{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	w := httptest.NewRecorder()
	h.Login(w, req)

	testutil.AssertJSONError(t, w, http.StatusBadRequest, "Invalid request body")
}

func TestAuthHandler_LoginErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"invalid credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
		{"backend client error", &upstream.HTTPError{StatusCode: http.StatusTooManyRequests, Message: "Slow down"}, http.StatusTooManyRequests, "Slow down"},
		{"backend down", &upstream.HTTPError{StatusCode: http.StatusInternalServerError, Message: "boom"}, http.StatusBadGateway, "Upstream service unavailable"},
		{"network", testutil.ErrMockUnavailable, http.StatusBadGateway, "Upstream service unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &testutil.MockAuthAPI{
				LoginFunc: func(ctx context.Context, req upstream.LoginRequest) (*upstream.AuthResult, error) {
					return nil, tt.err
				},
			}
			h := newTestAuthHandler(api)

			w := httptest.NewRecorder()
			h.Login(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/login",
				map[string]string{"email": "a@example.com", "password": "x"}))

			testutil.AssertJSONError(t, w, tt.wantStatus, tt.wantMsg)
			testutil.AssertNoCookie(t, w, session.AccessTokenCookie)
		})
	}
}

func TestAuthHandler_Register(t *testing.T) {
	api := &testutil.MockAuthAPI{
		RegisterFunc: func(ctx context.Context, req upstream.RegisterRequest) (*upstream.AuthResult, error) {
			assert.Equal(t, "Passw0rd", req.ConfirmPassword)
			return loginResult(), nil
		},
	}
	h := newTestAuthHandler(api)

	w := httptest.NewRecorder()
	h.Register(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "bob@example.com", "password": "Passw0rd", "confirmPassword": "Passw0rd",
	}))

	testutil.AssertStatusCode(t, w, http.StatusCreated)
	testutil.AssertCookie(t, w, session.AccessTokenCookie)
}

func TestAuthHandler_RegisterWithoutTokens(t *testing.T) {
	api := &testutil.MockAuthAPI{
		RegisterFunc: func(ctx context.Context, req upstream.RegisterRequest) (*upstream.AuthResult, error) {
			return &upstream.AuthResult{User: upstream.User{ID: "7", Email: req.Email}}, nil
		},
	}
	h := newTestAuthHandler(api)

	w := httptest.NewRecorder()
	h.Register(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "bob@example.com", "password": "Passw0rd", "confirmPassword": "Passw0rd",
	}))

	testutil.AssertStatusCode(t, w, http.StatusCreated)
	testutil.AssertNoCookie(t, w, session.AccessTokenCookie)
	resp := testutil.DecodeJSON[SessionResponse](t, w)
	require.NotNil(t, resp.User)
	assert.Equal(t, "7", resp.User.ID)
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		confirm   string
		wantField string
	}{
		{"too short", "Ab1", "Ab1", "password"},
		{"no uppercase", "password1", "password1", "password"},
		{"no digit", "Password", "Password", "password"},
		{"no lowercase", "PASSWORD1", "PASSWORD1", "password"},
		{"missing confirmation", "Passw0rd", "", "confirmPassword"},
		{"mismatch", "Passw0rd", "Passw0rd!", "confirmPassword"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAuthHandler(&testutil.MockAuthAPI{})

			w := httptest.NewRecorder()
			h.Register(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
				"email": "bob@example.com", "password": tt.password, "confirmPassword": tt.confirm,
			}))

			testutil.AssertStatusCode(t, w, http.StatusBadRequest)
			resp := testutil.DecodeJSON[validationResponse](t, w)
			assert.Contains(t, resp.Fields, tt.wantField)
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	h := newTestAuthHandler(&testutil.MockAuthAPI{})

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))

	testutil.AssertStatusCode(t, w, http.StatusNoContent)
	testutil.AssertCookieCleared(t, w, session.AccessTokenCookie)
	testutil.AssertCookieCleared(t, w, session.RefreshTokenCookie)
}

func TestAuthHandler_RefreshWithoutCookie(t *testing.T) {
	api := &testutil.MockAuthAPI{}
	h := newTestAuthHandler(api)

	w := httptest.NewRecorder()
	h.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))

	testutil.AssertJSONError(t, w, http.StatusUnauthorized, "Not authenticated")
	assert.Zero(t, api.Calls.Load())
}

func TestAuthHandler_Refresh(t *testing.T) {
	fresh := testutil.NewTestToken()
	api := &testutil.MockAuthAPI{}
	api.RefreshFunc = func(ctx context.Context, refreshToken string) (domain.Credentials, error) {
		assert.Equal(t, "rt-old", refreshToken)
		return domain.Credentials{AccessToken: fresh, RefreshToken: "rt-new"}, nil
	}
	h := newTestAuthHandler(api)

	req := testutil.WithCookies(httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil),
		session.RefreshTokenCookie, "rt-old")
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	access := testutil.AssertCookie(t, w, session.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, fresh, access.Value)
	refresh := testutil.AssertCookie(t, w, session.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "rt-new", refresh.Value)
	assert.Equal(t, int(session.DefaultAccessMaxAge.Seconds()), testutil.DecodeJSON[SessionResponse](t, w).ExpiresIn)
}

func TestAuthHandler_RefreshFailureClearsCookies(t *testing.T) {
	api := &testutil.MockAuthAPI{}
	api.RefreshFunc = func(ctx context.Context, refreshToken string) (domain.Credentials, error) {
		return domain.Credentials{}, domain.ErrRefreshFailed
	}
	h := newTestAuthHandler(api)

	req := testutil.WithCookies(httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil),
		session.RefreshTokenCookie, "rt-old")
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	testutil.AssertJSONError(t, w, http.StatusUnauthorized, "Session expired")
	testutil.AssertCookieCleared(t, w, session.AccessTokenCookie)
	testutil.AssertCookieCleared(t, w, session.RefreshTokenCookie)
}

func TestAuthHandler_Me(t *testing.T) {
	h := newTestAuthHandler(&testutil.MockAuthAPI{})
	decoder := session.NewDecoder(testutil.TestJWTSecret, session.DefaultExpiryBuffer)
	claims, err := decoder.Validate(testutil.NewTestToken(
		testutil.WithRole("admin"),
		testutil.WithTokenEmail("root@example.com"),
	), time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	w := httptest.NewRecorder()
	h.Me(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[MeResponse](t, w)
	assert.Equal(t, "root@example.com", resp.Email)
	assert.True(t, resp.IsAdmin, "role match is case-insensitive")
	assert.True(t, resp.IsVerified)
	require.NotNil(t, resp.ExpiresAt)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
}

func TestAuthHandler_MeWithoutClaims(t *testing.T) {
	h := newTestAuthHandler(&testutil.MockAuthAPI{})

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))

	testutil.AssertJSONError(t, w, http.StatusUnauthorized, "Not authenticated")
}

func TestAuthHandler_VerifyEmailForwardsToken(t *testing.T) {
	token := testutil.NewTestToken(testutil.WithUnverified())
	api := &testutil.MockAuthAPI{
		VerifyEmailFunc: func(ctx context.Context, got string, req upstream.VerifyEmailRequest) error {
			assert.Equal(t, token, got)
			assert.Equal(t, "123456", req.Code)
			return nil
		},
	}
	h := newTestAuthHandler(api)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/verify-email",
		map[string]string{"email": "a@example.com", "code": " 123456 "})
	testutil.WithCookies(req, session.AccessTokenCookie, token)
	w := httptest.NewRecorder()
	h.VerifyEmail(w, req)

	testutil.AssertStatusCode(t, w, http.StatusNoContent)
}

func TestAuthHandler_VerifyEmailValidation(t *testing.T) {
	h := newTestAuthHandler(&testutil.MockAuthAPI{})

	w := httptest.NewRecorder()
	h.VerifyEmail(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/verify-email",
		map[string]string{"email": "a@example.com"}))

	testutil.AssertStatusCode(t, w, http.StatusBadRequest)
	assert.Contains(t, testutil.DecodeJSON[validationResponse](t, w).Fields, "code")
}

func TestAuthHandler_ForgotPassword(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"accepted", nil},
		{"unknown account is not revealed", &upstream.HTTPError{StatusCode: http.StatusNotFound, Message: "no such user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &testutil.MockAuthAPI{
				ForgotPasswordFunc: func(ctx context.Context, emailOrPhone string) error {
					assert.Equal(t, "a@example.com", emailOrPhone)
					return tt.err
				},
			}
			h := newTestAuthHandler(api)

			w := httptest.NewRecorder()
			h.ForgotPassword(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/forgot-password",
				map[string]string{"emailOrPhone": "a@example.com"}))

			testutil.AssertStatusCode(t, w, http.StatusAccepted)
		})
	}
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	called := false
	api := &testutil.MockAuthAPI{
		ResetPasswordFunc: func(ctx context.Context, req upstream.ResetPasswordRequest) error {
			called = true
			assert.Equal(t, "reset-tok", req.Token)
			return nil
		},
	}
	h := newTestAuthHandler(api)

	w := httptest.NewRecorder()
	h.ResetPassword(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"token": "reset-tok", "password": "N3wPassword", "confirmPassword": "N3wPassword",
	}))
	testutil.AssertStatusCode(t, w, http.StatusNoContent)
	assert.True(t, called)

	w = httptest.NewRecorder()
	h.ResetPassword(w, testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/auth/reset-password", map[string]string{
		"password": "N3wPassword", "confirmPassword": "N3wPassword",
	}))
	testutil.AssertStatusCode(t, w, http.StatusBadRequest)
	assert.Contains(t, testutil.DecodeJSON[validationResponse](t, w).Fields, "token")
}
