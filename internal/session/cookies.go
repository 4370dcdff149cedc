package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"storefront/internal/domain"
)

// Cookie names shared with the storefront pages.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	// authDataCookie is the combined JSON blob some older clients still send.
	authDataCookie = "authData"

	DefaultAccessMaxAge  = 15 * time.Minute
	DefaultRefreshMaxAge = 7 * 24 * time.Hour
)

// Cookies writes and clears the credential cookies.
type Cookies struct {
	Secure        bool
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

func NewCookies(secure bool, accessMaxAge, refreshMaxAge time.Duration) Cookies {
	if accessMaxAge <= 0 {
		accessMaxAge = DefaultAccessMaxAge
	}
	if refreshMaxAge <= 0 {
		refreshMaxAge = DefaultRefreshMaxAge
	}
	return Cookies{Secure: secure, AccessMaxAge: accessMaxAge, RefreshMaxAge: refreshMaxAge}
}

// Set replaces both credential cookies.
func (c Cookies) Set(w http.ResponseWriter, creds domain.Credentials) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, creds.AccessToken, int(c.AccessMaxAge.Seconds())))
	if creds.RefreshToken != "" {
		http.SetCookie(w, c.cookie(RefreshTokenCookie, creds.RefreshToken, int(c.RefreshMaxAge.Seconds())))
	}
}

// Clear expires every credential cookie, including the legacy blob.
func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, authDataCookie} {
		http.SetCookie(w, c.cookie(name, "", -1))
	}
}

func (c Cookies) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ReadCredentials collects tokens from the request cookies. The separate
// cookies win over the legacy authData blob.
func ReadCredentials(r *http.Request) domain.Credentials {
	var creds domain.Credentials
	if ck, err := r.Cookie(AccessTokenCookie); err == nil {
		creds.AccessToken = ck.Value
	}
	if ck, err := r.Cookie(RefreshTokenCookie); err == nil {
		creds.RefreshToken = ck.Value
	}
	if creds.AccessToken != "" && creds.RefreshToken != "" {
		return creds
	}

	ck, err := r.Cookie(authDataCookie)
	if err != nil || ck.Value == "" {
		return creds
	}
	raw, err := url.QueryUnescape(ck.Value)
	if err != nil {
		return creds
	}
	var legacy domain.Credentials
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		return creds
	}
	if creds.AccessToken == "" {
		creds.AccessToken = legacy.AccessToken
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = legacy.RefreshToken
	}
	return creds
}
