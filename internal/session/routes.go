// Package session decides, per page request, whether the caller may see the
// page, must be redirected, or needs its credentials refreshed first.
package session

import "strings"

// RouteClass is the access category of a page path.
type RouteClass int

const (
	RouteOther RouteClass = iota
	RoutePublic
	RouteAuthPage
	RouteProtected
	RouteAdmin
	RouteCheckout
	RouteWelcome
)

func (c RouteClass) String() string {
	switch c {
	case RoutePublic:
		return "public"
	case RouteAuthPage:
		return "auth_page"
	case RouteProtected:
		return "protected"
	case RouteAdmin:
		return "admin"
	case RouteCheckout:
		return "checkout"
	case RouteWelcome:
		return "welcome"
	default:
		return "other"
	}
}

// RequiresAuth reports whether the class needs a valid access token.
func (c RouteClass) RequiresAuth() bool {
	return c == RouteProtected || c == RouteAdmin || c == RouteCheckout
}

var (
	publicPrefixes    = []string{"/products", "/product/"}
	authPagePrefixes  = []string{"/login", "/register", "/verify-email", "/forgot-password", "/reset-password"}
	protectedPrefixes = []string{"/profile", "/account", "/orders", "/wishlist", "/dashboard"}
	adminPrefixes     = []string{"/admin"}
	checkoutPrefixes  = []string{"/checkout", "/payment", "/cart/checkout"}
	welcomePrefixes   = []string{"/welcome", "/introduction", "/policy-terms"}
)

// Classify maps a locale-free path to its RouteClass using prefix checks only.
func Classify(path string) RouteClass {
	switch {
	case path == "/" || path == "" || hasAnyPrefix(path, publicPrefixes):
		return RoutePublic
	case hasAnyPrefix(path, adminPrefixes):
		return RouteAdmin
	case hasAnyPrefix(path, checkoutPrefixes):
		return RouteCheckout
	case hasAnyPrefix(path, protectedPrefixes):
		return RouteProtected
	case hasAnyPrefix(path, authPagePrefixes):
		return RouteAuthPage
	case hasAnyPrefix(path, welcomePrefixes):
		return RouteWelcome
	default:
		return RouteOther
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Locales strips and restores the optional leading locale segment (/vi/...).
type Locales struct {
	supported map[string]struct{}
}

// NewLocales builds a Locales set from codes such as "en", "vi".
func NewLocales(codes []string) *Locales {
	l := &Locales{supported: make(map[string]struct{}, len(codes))}
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code != "" {
			l.supported[code] = struct{}{}
		}
	}
	return l
}

// Split separates a leading supported locale from the rest of the path.
// "/vi/checkout" -> ("vi", "/checkout"); "/checkout" -> ("", "/checkout").
func (l *Locales) Split(path string) (string, string) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	segment, rest, _ := strings.Cut(path[1:], "/")
	if _, ok := l.supported[strings.ToLower(segment)]; !ok || segment == "" {
		return "", path
	}
	return segment, "/" + rest
}

// Join prefixes path with locale when one is set.
func (l *Locales) Join(locale, path string) string {
	if locale == "" {
		return path
	}
	if path == "/" {
		return "/" + locale
	}
	return "/" + locale + path
}
