package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/postmaster/postmaster-backend/internal/accounts"
	"github.com/postmaster/postmaster-backend/internal/api"
	"github.com/postmaster/postmaster-backend/internal/auth"
	"github.com/postmaster/postmaster-backend/internal/config"
	"github.com/postmaster/postmaster-backend/internal/dashboard"
	gdb "github.com/postmaster/postmaster-backend/internal/db"
	"github.com/postmaster/postmaster-backend/internal/events"
	"github.com/postmaster/postmaster-backend/internal/generator"
	"github.com/postmaster/postmaster-backend/internal/jobs"
	"github.com/postmaster/postmaster-backend/internal/linkedin"
	"github.com/postmaster/postmaster-backend/internal/log"
	"github.com/postmaster/postmaster-backend/internal/metrics"
	"github.com/postmaster/postmaster-backend/internal/posts"
	"github.com/postmaster/postmaster-backend/internal/repository"
	"github.com/postmaster/postmaster-backend/internal/storage"
	"github.com/postmaster/postmaster-backend/internal/store"
	"github.com/postmaster/postmaster-backend/internal/tracing"
	"github.com/postmaster/postmaster-backend/internal/ws"
	"github.com/postmaster/postmaster-backend/pkg/retry"
)

const serviceName = "postmaster-api"

// pingFunc adapts a health probe to api.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting Postmaster API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"db", cfg.Database.Type,
	)

	if cfg.Observability.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Observability.SentryDSN,
			Environment: cfg.Env,
		}); err != nil {
			logger.Warnw("Sentry disabled", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := tracing.Setup(rootCtx, serviceName, cfg.Env, cfg.Observability.OTLPEndpoint)
	if err != nil {
		logger.Fatalw("Failed to setup tracing", "error", err)
	}

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup(serviceName)
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Database
	database, err := gdb.NewDatabase(&gdb.Config{
		Type:   cfg.Database.Type,
		DSN:    cfg.Database.PostgresDSN,
		Logger: log.Named(logger, "db"),
	})
	if err != nil {
		logger.Fatalw("Failed to create database", "error", err)
	}
	dbCtx, cancel := context.WithTimeout(rootCtx, time.Minute)
	err = gdb.ConnectAndMigrate(dbCtx, database, gdb.AllSchemas(), logger, retry.DefaultConfig())
	cancel()
	if err != nil {
		logger.Fatalw("Failed to initialize database", "error", err)
	}
	defer database.Disconnect(context.Background())
	logger.Infow("Database initialized")
	repo := repository.NewRepository(database, log.Named(logger, "repository"))

	// Cache, pub/sub and leases. Falls back to memory when Redis is down.
	cache, err := store.NewCache(cfg.Cache.RedisAddr, log.Named(logger, "cache"), metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()
	logger.Infow("Cache ready", "in_memory", cache.IsInMemoryMode())

	bus := events.NewBus(cache, log.Named(logger, "events"))
	httpClient := tracing.NewHTTPClient(cfg.HTTPClientTimeout)

	// LinkedIn
	linkedinClient := linkedin.NewClient(cfg.LinkedIn.APIURL, httpClient, log.Named(logger, "linkedin"))
	oauth := linkedin.NewOAuth(linkedin.OAuthConfig{
		ClientID:     cfg.LinkedIn.ClientID,
		ClientSecret: cfg.LinkedIn.ClientSecret,
		RedirectURI:  cfg.LinkedIn.RedirectURI,
		AuthURL:      cfg.LinkedIn.AuthURL,
		TokenURL:     cfg.LinkedIn.TokenURL,
	}, httpClient)
	if err := oauth.Check(); err != nil {
		logger.Warnw("LinkedIn connect disabled", "error", err)
	}

	// Services
	dash := dashboard.NewService(repo, cache, dashboard.DefaultTTL, log.Named(logger, "dashboard"))
	accountSvc := accounts.NewService(repo, linkedinClient, oauth, log.Named(logger, "accounts"),
		accounts.WithNotifier(bus),
		accounts.WithInvalidator(dash),
	)
	publisher := posts.NewPublisher(repo, accountSvc, posts.NewAssembler(httpClient), linkedinClient, log.Named(logger, "publisher"),
		posts.WithNotifier(bus),
		posts.WithInvalidator(dash),
		posts.WithMetrics(metricsObj),
	)
	postSvc := posts.NewService(repo, dash, log.Named(logger, "posts"))

	var completer generator.Completer
	if cfg.GeminiConfigured() {
		completer = generator.NewGemini(cfg.Gemini.APIURL, cfg.Gemini.APIKey, cfg.Gemini.Model, httpClient)
	}
	gen, err := generator.New(completer, log.Named(logger, "generator"), generator.WithMetrics(metricsObj))
	if err != nil {
		logger.Fatalw("Failed to load prompt catalogue", "error", err)
	}
	logger.Infow("Generator ready", "demo", gen.DemoMode())

	var putter storage.Putter
	if cfg.StorageConfigured() {
		objects := storage.NewObjectStore(cfg.Storage.URL, cfg.Storage.ServiceKey, cfg.Storage.Bucket, httpClient)
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		if err := objects.EnsureBucket(ctx); err != nil {
			logger.Warnw("Failed to ensure storage bucket", "bucket", objects.Bucket(), "error", err)
		}
		cancel()
		putter = objects
	}
	uploader := storage.NewUploader(putter, log.Named(logger, "upload"), storage.WithMetrics(metricsObj))

	sweeper := jobs.NewSweeper(repo, publisher, cache.KV(), bus, metricsObj, log.Named(logger, "sweeper"), jobs.SweeperConfig{
		Interval: cfg.Sweeper.Interval,
		Delay:    cfg.Sweeper.Delay,
		LeaseTTL: cfg.Sweeper.LeaseTTL,
	})
	if cfg.Sweeper.Enabled {
		if err := sweeper.Start(rootCtx); err != nil {
			logger.Fatalw("Failed to start sweeper", "error", err)
		}
		defer sweeper.Stop()
	}

	// Setup WebSocket hub and SSE handler
	wsHub := ws.NewHub(cache, cfg.Security.CORSAllowedOrigins, log.Named(logger, "ws"), metricsObj)
	sseHandler := ws.NewSSEHandler(cache, log.Named(logger, "sse"))
	go wsHub.Run(rootCtx)

	if cfg.Auth.JWTSecret == "" {
		logger.Warnw("PM_AUTH_JWT_SECRET is empty; every authenticated route will return 401")
	}

	// Setup API handler and middleware
	handler := api.NewHandler(api.Deps{
		Posts:      postSvc,
		Publisher:  publisher,
		Accounts:   accountSvc,
		Generator:  gen,
		Uploader:   uploader,
		Dashboard:  dash,
		Sweeper:    sweeper,
		LinkedIn:   linkedinClient,
		WSHub:      wsHub,
		SSEHandler: sseHandler,
		Verifier:   auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience, cfg.Auth.CookieName),
		Checks: map[string]api.Pinger{
			"database": pingFunc(func(ctx context.Context) error {
				if !database.IsHealthy(ctx) {
					return errors.New("database unhealthy")
				}
				return nil
			}),
			"cache": cache,
		},
		PublicOrigin: cfg.PublicURL,
	}, log.Named(logger, "api"))
	middleware := api.NewMiddleware(log.Named(logger, "http"), metricsObj)

	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM, metricsHandler)
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// WriteTimeout stays zero: SSE and websocket responses are long lived and
	// the timeout middleware bounds everything else.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("Server startup failed", "error", err)
		}
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			_ = server.Close()
		}
		if err := shutdownTracing(ctx); err != nil {
			logger.Warnw("Tracing shutdown failed", "error", err)
		}

		logger.Infow("Server stopped")
	}
	stop()
}
