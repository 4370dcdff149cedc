package middleware

import (
	"net/http"
	"time"

	"storefront/internal/observability"
	"storefront/internal/session"
)

// SessionGate applies the page-level session policy. Allowed requests reach
// next with the decoded claims in context; everything else is answered with
// a 307 redirect, after writing refreshed cookies or clearing stale ones.
func SessionGate(gate *session.Gate, cookies session.Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := gate.Resolve(r.Context(), session.Input{
				Path:        r.URL.Path,
				RawQuery:    r.URL.RawQuery,
				Credentials: session.ReadCredentials(r),
				Now:         time.Now(),
			})

			if out.Credentials != nil {
				cookies.Set(w, *out.Credentials)
			} else if out.ClearCredentials {
				cookies.Clear(w)
			}

			if out.Action != session.ActionAllow {
				observability.FromContext(r.Context()).Debug("session gate redirect",
					"path", r.URL.Path,
					"class", out.Class.String(),
					"reason", out.Reason,
					"location", out.Location)
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, out.Location, http.StatusTemporaryRedirect)
				return
			}

			ctx := r.Context()
			if out.Claims != nil {
				ctx = WithClaims(ctx, out.Claims)
				ctx = observability.WithUserID(ctx, string(out.Claims.UserID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
