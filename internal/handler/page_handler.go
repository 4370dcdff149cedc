package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"storefront/internal/middleware"
	"storefront/internal/security"
)

// PageHandler serves the storefront's built assets. Requests that do not
// name a file get index.html so that client-side routes render; the session
// gate in front of it has already decided whether the page may be shown.
type PageHandler struct {
	root  string
	files http.Handler
}

func NewPageHandler(staticDir string) *PageHandler {
	return &PageHandler{
		root:  staticDir,
		files: http.FileServer(http.Dir(staticDir)),
	}
}

func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if info, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(name))); err == nil && !info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}

	index := filepath.Join(h.root, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	// Gate decisions depend on cookies, so pages must not be cached.
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, index)
}

// CSRFToken issues a double-submit token as a cookie and in the body.
func CSRFToken(tokens *security.TokenManager, secureCookies bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := middleware.IssueCSRFCookie(w, tokens, secureCookies)
		if err != nil {
			http.Error(w, `{"error":"Failed to issue CSRF token"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
	}
}
