//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
	"time"

	"storefront/internal/cart"
	"storefront/internal/middleware"
	"storefront/internal/session"
)

// TestClient is one browser: a cookie jar, no automatic redirects and the
// CSRF token echoed on writes.
type TestClient struct {
	*http.Client
	t         *testing.T
	csrfToken string
}

// NewTestClient creates a new test client with cookie jar
func NewTestClient(t *testing.T) *TestClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &TestClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		t: t,
	}
}

// FetchCSRF obtains a double-submit token for later writes.
func (tc *TestClient) FetchCSRF() {
	tc.t.Helper()
	resp, err := tc.Get(baseURL + "/api/v1/csrf-token")
	if err != nil {
		tc.t.Fatalf("csrf-token request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		tc.t.Fatalf("failed to decode csrf-token response: %v", err)
	}
	tc.csrfToken = body["csrf_token"]
}

// Do sends a request with a JSON body and the CSRF header when one is held.
func (tc *TestClient) Do(method, path string, body interface{}) *http.Response {
	tc.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			tc.t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		tc.t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.csrfToken != "" {
		req.Header.Set(middleware.CSRFHeader, tc.csrfToken)
	}

	resp, err := tc.Client.Do(req)
	if err != nil {
		tc.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// Login posts credentials and fails the test unless it succeeds.
func (tc *TestClient) Login(email, password string) {
	tc.t.Helper()
	resp := tc.Do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		tc.t.Fatalf("login failed with status %d: %s", resp.StatusCode, b)
	}
}

// Cart reads the current cart.
func (tc *TestClient) Cart() cart.Summary {
	tc.t.Helper()
	resp := tc.Do(http.MethodGet, "/api/v1/cart", nil)
	defer resp.Body.Close()

	var sum cart.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		tc.t.Fatalf("failed to decode cart: %v", err)
	}
	return sum
}

// Cookie returns the jar's value for name, or "".
func (tc *TestClient) Cookie(name string) string {
	u, _ := url.Parse(baseURL)
	for _, c := range tc.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// SetCookie puts a cookie in the jar as if the server had set it.
func (tc *TestClient) SetCookie(name, value string) {
	u, _ := url.Parse(baseURL)
	tc.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// SetCredentials installs a token pair directly.
func (tc *TestClient) SetCredentials(access, refresh string) {
	if access != "" {
		tc.SetCookie(session.AccessTokenCookie, access)
	}
	if refresh != "" {
		tc.SetCookie(session.RefreshTokenCookie, refresh)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(b)
}

func locationOf(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("bad Location %q: %v", resp.Header.Get("Location"), err)
	}
	return loc
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal(fmt.Sprintf("timed out after %s: %s", timeout, msg))
}
