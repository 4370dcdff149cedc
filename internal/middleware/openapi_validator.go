package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"storefront/internal/observability"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	Enabled  bool
	SpecPath string
	// PathPrefix limits validation to requests under this prefix
	PathPrefix string
	// SkipPaths are prefixes under PathPrefix that are never validated.
	// "/" only matches the root itself.
	SkipPaths []string
}

// DefaultOpenAPIValidatorConfig validates request bodies of the JSON API.
// Pages, static assets and probes are outside /api/ and pass through.
func DefaultOpenAPIValidatorConfig(specPath string, enabled bool) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		Enabled:    enabled,
		SpecPath:   specPath,
		PathPrefix: "/api/",
	}
}

type apiValidator struct {
	router     routers.Router
	prefix     string
	skipPaths  []string
	filterOpts *openapi3filter.Options
}

// OpenAPIValidator rejects API requests that do not match the documented
// operations with 400. A spec that cannot be loaded disables validation
// instead of failing startup.
func OpenAPIValidator(config *OpenAPIValidatorConfig) func(next http.Handler) http.Handler {
	passThrough := func(next http.Handler) http.Handler { return next }

	if config == nil || !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return passThrough
	}

	v, err := loadValidator(config)
	if err != nil {
		slog.Error("OpenAPI validation unavailable",
			slog.String("path", config.SpecPath),
			slog.String("error", err.Error()))
		return passThrough
	}

	slog.Info("OpenAPI validation enabled",
		slog.String("spec_path", config.SpecPath),
		slog.String("prefix", config.PathPrefix))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.applies(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if msg, reason := v.check(r); msg != "" {
				observability.APIValidationRejectsTotal.WithLabelValues(reason).Inc()
				observability.FromContext(r.Context()).Warn("request rejected by schema",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", reason),
					slog.String("error", msg))
				writeValidationError(w, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loadValidator(config *OpenAPIValidatorConfig) (*apiValidator, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(config.SpecPath)
	if err != nil {
		return nil, fmt.Errorf("load spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	return &apiValidator{
		router:    router,
		prefix:    config.PathPrefix,
		skipPaths: config.SkipPaths,
		// Session and CSRF checks run in their own middleware.
		filterOpts: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}, nil
}

func (v *apiValidator) applies(path string) bool {
	return strings.HasPrefix(path, v.prefix) && !shouldSkipPath(path, v.skipPaths)
}

// check returns an empty message when r matches a documented operation.
func (v *apiValidator) check(r *http.Request) (msg, reason string) {
	route, pathParams, err := v.router.FindRoute(r)
	if err != nil {
		return fmt.Sprintf("Path not found in OpenAPI spec: %s %s", r.Method, r.URL.Path), "undocumented"
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options:    v.filterOpts,
	}
	if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
		return "Request validation failed: " + err.Error(), "invalid"
	}
	return "", ""
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if skipPath == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

func writeValidationError(w http.ResponseWriter, message string) {
	body, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(body)
}
