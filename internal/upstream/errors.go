package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError represents a non-2xx response from the storefront API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err wraps an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// errorMessage extracts the most useful message from an error body:
// "message", then "error", then the raw text, then the status text.
func errorMessage(status int, body []byte) string {
	var apiErr struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		if msg := rawMessage(apiErr.Message); msg != "" {
			return msg
		}
		if apiErr.Error != "" {
			return apiErr.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}

// rawMessage accepts "message" as a string or as a list of strings, which
// validation errors from the API use.
func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}
	return ""
}
