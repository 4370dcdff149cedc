package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"storefront/internal/security"
)

const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// CSRF validates double-submit tokens on state-changing requests: the
// csrf_token cookie must match the X-CSRF-Token header (or the csrf_token
// form field). Tokens are issued by the /api/v1/csrf-token endpoint.
func CSRF(tokens *security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			var cookieToken string
			if ck, err := r.Cookie(CSRFCookie); err == nil {
				cookieToken = ck.Value
			}
			submittedToken := extractCSRFToken(r)

			if err := tokens.Verify(cookieToken, submittedToken); err != nil {
				reason := "invalid token"
				if cookieToken == "" || submittedToken == "" {
					reason = "missing token"
				}
				logCSRFFailure(r, reason)
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IssueCSRFCookie sets a fresh token cookie and returns its value. The cookie
// is readable by scripts so the client can echo it in the header.
func IssueCSRFCookie(w http.ResponseWriter, tokens *security.TokenManager, secure bool) (string, error) {
	token, err := tokens.Generate()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	exemptPaths := []string{
		"/health",
		"/metrics",
	}

	for _, exemptPath := range exemptPaths {
		if strings.HasPrefix(path, exemptPath) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get(CSRFHeader); token != "" {
		return token
	}
	if token := r.Header.Get("X-XSRF-Token"); token != "" {
		return token
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return r.FormValue("csrf_token")
	}
	return ""
}

func logCSRFFailure(r *http.Request, reason string) {
	slog.Warn("CSRF validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
