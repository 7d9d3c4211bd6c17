package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/api"
	"github.com/replypilot/replypilot/internal/audit"
	"github.com/replypilot/replypilot/internal/auth"
	"github.com/replypilot/replypilot/internal/billing"
	"github.com/replypilot/replypilot/internal/config"
	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/generation"
	mw "github.com/replypilot/replypilot/internal/middleware"
	inats "github.com/replypilot/replypilot/internal/nats"
	"github.com/replypilot/replypilot/internal/plans"
	iredis "github.com/replypilot/replypilot/internal/redis"
	"github.com/replypilot/replypilot/internal/server"
	"github.com/replypilot/replypilot/internal/usage"
	"github.com/replypilot/replypilot/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	if cfg.DB.AutoMigrate {
		if err := database.RunMigrations(cfg.DB.DSN()); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var (
		natsClient *inats.Client
		publisher  *inats.Publisher
	)
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	} else {
		slog.Warn("NATS_URL not set, audit events are written directly")
	}

	registry := plans.Default(cfg.Stripe)

	// Audit
	auditRepo := audit.NewRepository(pool)
	var recorder *audit.Recorder
	if publisher != nil {
		recorder = audit.NewRecorder(publisher, auditRepo)
		consumer := audit.NewConsumer(auditRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	} else {
		recorder = audit.NewRecorder(nil, auditRepo)
	}
	auditHandler := audit.NewHandler(auditRepo)

	// Identity
	userSvc := users.NewService(users.NewRepository(pool), registry.FallbackID())
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret)
	authSvc := auth.NewService(jwtManager, userSvc, redisClient)
	authHandler := auth.NewHandler(authSvc, userSvc, recorder)

	// Usage + generation
	ledger := usage.NewLedger(usage.NewRepository(pool))
	provider := generation.NewOpenAIProvider(cfg.OpenAI)
	genSvc := generation.NewService(provider, ledger, registry, generation.Options{
		DefaultModel: cfg.OpenAI.DefaultModel,
		MaxTokens:    cfg.OpenAI.MaxTokens,
		Temperature:  cfg.OpenAI.Temperature,
	})
	genHandler := generation.NewHandler(genSvc, registry)

	// Billing
	syncOpts := []billing.SyncOption{
		billing.WithActivity(recorder),
		billing.WithReplayGuard(redisClient),
	}
	if publisher != nil {
		syncOpts = append(syncOpts, billing.WithNotifier(publisher))
	}
	subSync := billing.NewSync(cfg.Stripe.WebhookSecret, registry, userSvc, syncOpts...)
	var gateway billing.Gateway
	if cfg.Stripe.Enabled() {
		gateway = billing.NewStripeGateway(cfg.Stripe.SecretKey, nil)
	}
	billingHandler := billing.NewHandler(subSync, gateway, registry, userSvc, recorder, cfg.Stripe.DashboardURL)

	accountHandler := account.NewHandler(registry, ledger)

	// Router
	healthChecks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error { return database.HealthCheck(ctx, pool) },
		"redis":    func(ctx context.Context) error { return iredis.HealthCheck(ctx, redisClient) },
		"nats":     nil,
	}
	if natsClient != nil {
		healthChecks["nats"] = func(context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}

	limiter := mw.NewRateLimiter(redisClient, "api", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimiter:        limiter.Middleware,
		HealthChecks:       healthChecks,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Me:       authHandler.Me,
		Logout:   authHandler.Logout,

		GenerateResponse: genHandler.GenerateResponse,
		Usage:            genHandler.Usage,
		Models:           genHandler.Models,

		CheckoutSession: billingHandler.CheckoutSession,
		PortalSession:   billingHandler.PortalSession,
		Webhook:         billingHandler.Webhook,
		Plans:           billingHandler.Plans,

		Profile:      accountHandler.Profile,
		Subscription: accountHandler.Subscription,
		Activity:     auditHandler.ListActivity,

		AuthMiddleware:         auth.Middleware(authSvc),
		OptionalAuthMiddleware: auth.OptionalMiddleware(authSvc),
	})

	srv := server.New(cfg.Server, cfg.OpenAI.Timeout, router)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
