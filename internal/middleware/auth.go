package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/observability"
	"storefront/internal/session"
)

type contextKey string

const (
	ClaimsKey contextKey = "claims"
	TokenKey  contextKey = "access_token"
)

// Auth guards API routes. The access token comes from the access_token
// cookie or an Authorization: Bearer header; expired or undecodable tokens
// get a 401 and the client is expected to call the refresh endpoint.
func Auth(decoder *session.Decoder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessToken(r)
			if token == "" {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			claims, err := decoder.Validate(token, time.Now())
			if err != nil {
				http.Error(w, `{"error":"Invalid or expired session"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = context.WithValue(ctx, TokenKey, token)
			ctx = observability.WithUserID(ctx, string(claims.UserID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return session.ReadCredentials(r).AccessToken
}

func GetClaims(ctx context.Context) (*session.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*session.Claims)
	return claims, ok
}

func WithClaims(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetAccessToken returns the raw token Auth accepted for this request.
func GetAccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
