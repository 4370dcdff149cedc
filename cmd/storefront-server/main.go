package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/handler"
	"storefront/internal/messaging"
	"storefront/internal/middleware"
	"storefront/internal/observability"
	"storefront/internal/repository/memory"
	"storefront/internal/repository/postgres"
	"storefront/internal/repository/redisstore"
	"storefront/internal/security"
	"storefront/internal/session"
	"storefront/internal/upstream"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// How often expired postgres carts are purged
const purgeInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting storefront server",
		slog.String("environment", cfg.Environment),
		slog.String("cart_storage", cfg.CartStorage))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, closeStorage, err := openCartStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to open cart storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStorage()

	var cartOpts []cart.Option
	if cfg.CartStorage != config.StorageMemory {
		cartOpts = append(cartOpts, cart.WithSharedStorage())
	}
	carts := cart.NewService(storage, cfg.CartIdleTTL, cartOpts...)
	defer carts.Stop()

	api := upstream.New(cfg.APIBaseURL)

	var secret []byte
	if cfg.JWTSecret != "" {
		secret = []byte(cfg.JWTSecret)
	}
	decoder := session.NewDecoder(secret, cfg.TokenExpiryBuffer)
	policy := session.NewPolicy(decoder, session.NewLocales(cfg.SupportedLocales), cfg.AdminRole)
	gate := session.NewGate(policy, api)
	cookies := session.NewCookies(cfg.IsProduction(), cfg.AccessTokenMaxAge, cfg.RefreshTokenMaxAge)
	csrfTokens := security.NewTokenManager()

	checks := map[string]handler.Pinger{"cart_storage": storage}

	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		if err := messaging.NewCheckoutConsumer(rmq, carts).Start(ctx); err != nil {
			slog.Error("failed to start checkout consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		checks["rabbitmq"] = rmq
		slog.Info("checkout consumer started")
	} else {
		slog.Info("RABBITMQ_URL not set; carts are not cleared on checkout events")
	}

	authHandler := handler.NewAuthHandler(api, gate, cookies)
	cartHandler := handler.NewCartHandler(carts, api, cfg.IsProduction())
	productHandler := handler.NewProductHandler(api)
	pages := handler.NewPageHandler(cfg.StaticDir)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Origins()))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPISpecPath, cfg.OpenAPIValidation)))
		r.Use(middleware.CSRF(csrfTokens))

		authLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

		r.Get("/csrf-token", handler.CSRFToken(csrfTokens, cfg.IsProduction()))

		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware())
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/refresh", authHandler.Refresh)
			r.Post("/auth/verify-email", authHandler.VerifyEmail)
			r.Post("/auth/forgot-password", authHandler.ForgotPassword)
			r.Post("/auth/reset-password", authHandler.ResetPassword)
		})
		r.Post("/auth/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(decoder))
			r.Get("/auth/me", authHandler.Me)
		})

		r.Get("/products", productHandler.List)
		r.Get("/products/{type}/{id}", productHandler.Get)

		r.Get("/cart", cartHandler.Get)
		r.Delete("/cart", cartHandler.Clear)
		r.Post("/cart/items", cartHandler.AddItem)
		r.Put("/cart/items/{productId}", cartHandler.UpdateQuantity)
		r.Delete("/cart/items/{productId}", cartHandler.RemoveItem)
	})

	// Everything else is a storefront page or asset behind the session gate.
	r.With(middleware.SessionGate(gate, cookies)).Handle("/*", pages)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("storefront server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	slog.Info("server stopped gracefully")
}

// openCartStorage builds the configured backend. The returned func releases
// its connections.
func openCartStorage(ctx context.Context, cfg *config.Config) (domain.CartStorage, func(), error) {
	switch cfg.CartStorage {
	case config.StoragePostgres:
		db, err := config.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		storage, err := postgres.NewCartStorage(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		go storage.RunPurger(ctx, cfg.CartTTL, purgeInterval)
		slog.Info("connected to postgresql")
		return storage, func() {
			storage.Close()
			db.Close()
		}, nil

	case config.StorageRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("connected to redis")
		return redisstore.NewCartStorage(client, cfg.CartTTL), func() { client.Close() }, nil

	default:
		slog.Warn("using in-memory cart storage; carts are lost on restart")
		return memory.NewCartStorage(), func() {}, nil
	}
}
