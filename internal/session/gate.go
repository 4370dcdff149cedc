package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront/internal/domain"
	"storefront/internal/observability"
)

// Action is what the gate wants done with a request.
type Action int

const (
	ActionAllow Action = iota
	ActionRedirect
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionRedirect:
		return "redirect"
	case ActionRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Query parameter names shared with the login pages.
const (
	RedirectParam         = "redirect"
	ActionParam           = "action"
	ErrorParam            = "error"
	ErrorSessionExpired   = "session_expired"
	checkoutActionValue   = "checkout"
	DefaultAdminRole      = "ADMIN"
	defaultRefreshTimeout = 10 * time.Second
)

// Input is everything the gate needs to decide about one page request.
type Input struct {
	Path        string // request path, including any locale prefix
	RawQuery    string
	Credentials domain.Credentials
	Now         time.Time
}

func (in Input) originalURL() string {
	if in.RawQuery == "" {
		return in.Path
	}
	return in.Path + "?" + in.RawQuery
}

// Decision is the side-effect free result of Evaluate.
type Decision struct {
	Action           Action
	Class            RouteClass
	Location         string // redirect target for ActionRedirect
	ReturnTo         string // where to send the user after a successful refresh
	ClearCredentials bool
	Claims           *Claims // set when the access token is valid
	Reason           string
}

// Policy holds the rules. Evaluate performs no I/O.
type Policy struct {
	decoder   *Decoder
	locales   *Locales
	adminRole string
}

func NewPolicy(decoder *Decoder, locales *Locales, adminRole string) *Policy {
	if adminRole == "" {
		adminRole = DefaultAdminRole
	}
	if locales == nil {
		locales = NewLocales(nil)
	}
	return &Policy{decoder: decoder, locales: locales, adminRole: adminRole}
}

// IsAdmin reports whether claims carry the admin role.
func (p *Policy) IsAdmin(claims *Claims) bool {
	return claims != nil && strings.EqualFold(claims.Role, p.adminRole)
}

// Evaluate classifies the request and decides allow, redirect or refresh.
func (p *Policy) Evaluate(in Input) Decision {
	locale, path := p.locales.Split(in.Path)
	class := Classify(path)
	access := p.decoder.Inspect(in.Credentials.AccessToken, in.Now)

	d := Decision{Class: class, Claims: access.Claims}

	if class == RoutePublic || class == RouteOther {
		d.Action = ActionAllow
		d.Reason = "public"
		return d
	}

	if class.RequiresAuth() && !access.Valid {
		refresh := p.decoder.InspectRefresh(in.Credentials.RefreshToken, in.Now)
		if refresh.Valid {
			d.Action = ActionRefresh
			d.ReturnTo = in.originalURL()
			d.Reason = "access_expired"
			return d
		}
		d.Action = ActionRedirect
		d.Location = p.loginURL(locale, in.originalURL(), class == RouteCheckout, "")
		d.ClearCredentials = access.Present || refresh.Present
		d.Reason = "unauthenticated"
		return d
	}

	switch class {
	case RouteAdmin:
		if !p.IsAdmin(access.Claims) {
			return p.redirect(d, p.locales.Join(locale, "/"), "forbidden")
		}
	case RouteProtected, RouteCheckout:
		if !access.Claims.IsVerified {
			return p.redirect(d, p.verifyURL(locale, in.originalURL(), ""), "unverified")
		}
	case RouteAuthPage:
		if access.Valid {
			return p.authenticatedOnAuthPage(d, locale, path, in.RawQuery)
		}
	case RouteWelcome:
		if access.Valid {
			if p.IsAdmin(access.Claims) {
				return p.redirect(d, p.locales.Join(locale, "/admin"), "authenticated")
			}
			return p.redirect(d, p.locales.Join(locale, "/"), "authenticated")
		}
	}

	d.Action = ActionAllow
	d.Reason = "authorized"
	return d
}

func (p *Policy) authenticatedOnAuthPage(d Decision, locale, path, rawQuery string) Decision {
	claims := d.Claims
	onVerifyPage := strings.HasPrefix(path, "/verify-email")

	query, _ := url.ParseQuery(rawQuery)
	if target := LocalRedirect(query.Get(RedirectParam)); target != "" {
		if claims.IsVerified {
			return p.redirect(d, target, "authenticated")
		}
		if onVerifyPage {
			d.Action = ActionAllow
			d.Reason = "unverified"
			return d
		}
	}

	if p.IsAdmin(claims) {
		return p.redirect(d, p.locales.Join(locale, "/admin"), "authenticated")
	}
	if !claims.IsVerified {
		if onVerifyPage {
			d.Action = ActionAllow
			d.Reason = "unverified"
			return d
		}
		return p.redirect(d, p.verifyURL(locale, "", claims.Email), "unverified")
	}
	return p.redirect(d, p.locales.Join(locale, "/"), "authenticated")
}

func (p *Policy) redirect(d Decision, location, reason string) Decision {
	d.Action = ActionRedirect
	d.Location = location
	d.Reason = reason
	return d
}

// LoginURL builds the login redirect for a locale-prefixed original URL.
func (p *Policy) LoginURL(originalPath, errMarker string) string {
	locale, path := p.locales.Split(originalPath)
	return p.loginURL(locale, originalPath, Classify(stripQuery(path)) == RouteCheckout, errMarker)
}

func (p *Policy) loginURL(locale, original string, checkout bool, errMarker string) string {
	q := url.Values{}
	q.Set(RedirectParam, original)
	if checkout {
		q.Set(ActionParam, checkoutActionValue)
	}
	if errMarker != "" {
		q.Set(ErrorParam, errMarker)
	}
	return p.locales.Join(locale, "/login") + "?" + q.Encode()
}

func (p *Policy) verifyURL(locale, original, email string) string {
	q := url.Values{}
	if original != "" {
		q.Set(RedirectParam, original)
	}
	if email != "" {
		q.Set("email", email)
	}
	target := p.locales.Join(locale, "/verify-email")
	if len(q) == 0 {
		return target
	}
	return target + "?" + q.Encode()
}

func stripQuery(path string) string {
	p, _, _ := strings.Cut(path, "?")
	return p
}

// LocalRedirect returns target when it is a same-site absolute path and ""
// otherwise.
func LocalRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}
	if strings.ContainsAny(target, "\\\r\n") {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return target
}

// Outcome is a Decision after any refresh has been carried out.
type Outcome struct {
	Decision
	// Credentials is non-nil when a refresh minted new tokens to persist.
	Credentials *domain.Credentials
}

// Gate runs the Policy and performs the refresh call a Decision asks for.
type Gate struct {
	policy         *Policy
	refresher      domain.TokenRefresher
	refreshTimeout time.Duration
	group          singleflight.Group
}

func NewGate(policy *Policy, refresher domain.TokenRefresher) *Gate {
	return &Gate{
		policy:         policy,
		refresher:      refresher,
		refreshTimeout: defaultRefreshTimeout,
	}
}

func (g *Gate) Policy() *Policy {
	return g.policy
}

// Resolve evaluates in and, for a refresh decision, makes exactly one refresh
// attempt. Concurrent requests carrying the same refresh token share that
// attempt. Refresh failures become a login redirect, never an error.
func (g *Gate) Resolve(ctx context.Context, in Input) Outcome {
	d := g.policy.Evaluate(in)
	if d.Action != ActionRefresh {
		observability.SessionDecisionsTotal.WithLabelValues(d.Class.String(), d.Action.String()).Inc()
		return Outcome{Decision: d}
	}

	creds, err := g.Refresh(ctx, in.Credentials.RefreshToken, in.Now)
	if err != nil {
		observability.FromContext(ctx).Info("session refresh failed",
			slog.String("path", in.Path),
			slog.String("error", err.Error()))
		observability.SessionDecisionsTotal.WithLabelValues(d.Class.String(), ActionRedirect.String()).Inc()

		failed := d
		failed.Action = ActionRedirect
		failed.Location = g.policy.LoginURL(in.originalURL(), ErrorSessionExpired)
		failed.ClearCredentials = true
		failed.Reason = "refresh_failed"
		return Outcome{Decision: failed}
	}

	observability.SessionDecisionsTotal.WithLabelValues(d.Class.String(), ActionRedirect.String()).Inc()

	refreshed := d
	refreshed.Action = ActionRedirect
	refreshed.Location = d.ReturnTo
	refreshed.Reason = "refreshed"
	return Outcome{Decision: refreshed, Credentials: &creds}
}

// Refresh exchanges refreshToken for a new pair whose access token is valid at
// now. Callers holding the same refresh token share one upstream call.
func (g *Gate) Refresh(ctx context.Context, refreshToken string, now time.Time) (domain.Credentials, error) {
	creds, err := g.refresh(ctx, refreshToken, now)
	if err != nil {
		observability.TokenRefreshTotal.WithLabelValues("failure").Inc()
		return domain.Credentials{}, err
	}
	observability.TokenRefreshTotal.WithLabelValues("success").Inc()
	return creds, nil
}

func (g *Gate) refresh(ctx context.Context, refreshToken string, now time.Time) (domain.Credentials, error) {
	if g.refresher == nil || refreshToken == "" {
		return domain.Credentials{}, domain.ErrRefreshFailed
	}

	v, err, shared := g.group.Do(refreshToken, func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
		defer cancel()
		return g.refresher.Refresh(rctx, refreshToken)
	})
	if shared {
		observability.TokenRefreshShared.Inc()
	}
	if err != nil {
		if errors.Is(err, domain.ErrRefreshFailed) {
			return domain.Credentials{}, err
		}
		return domain.Credentials{}, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}

	creds, ok := v.(domain.Credentials)
	if !ok || creds.AccessToken == "" {
		return domain.Credentials{}, fmt.Errorf("%w: empty access token", domain.ErrRefreshFailed)
	}
	// A token that is already unusable would bounce the user straight back here.
	if _, err := g.policy.decoder.Validate(creds.AccessToken, now); err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	return creds, nil
}
