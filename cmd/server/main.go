package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fernwood/payform/internal"
	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/captcha"
	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/forms"
	"github.com/fernwood/payform/internal/handler/payments"
	"github.com/fernwood/payform/internal/middleware"
	"github.com/fernwood/payform/internal/postgres"
	"github.com/fernwood/payform/internal/router"
	"github.com/fernwood/payform/internal/telemetry"
)

// formSaver is the write side shared by the postgres and in-memory stores,
// used only for startup seeding.
type formSaver interface {
	domain.FormRepository
	Save(ctx context.Context, form *domain.PaymentForm) error
}

type memorySaver struct{ *forms.MemoryStore }

func (s memorySaver) Save(_ context.Context, form *domain.PaymentForm) error {
	s.PutForm(form)
	return nil
}

type postgresSaver struct{ *postgres.FormStore }

func (s postgresSaver) Save(ctx context.Context, form *domain.PaymentForm) error {
	return s.SaveForm(ctx, form)
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize Prometheus metrics
	metrics := telemetry.InitPaymentMetrics("payform")

	// Initialize Stripe gateway
	gateway, err := billing.NewStripeGateway(cfg.Stripe.SecretKey, logger, metrics.ObserveStripeCall)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe gateway: %w", err)
	}
	logger.Info("Stripe gateway initialized")

	// Initialize CAPTCHA verifier
	verifier, err := captcha.NewVerifier(cfg.Captcha.Provider, cfg.Captcha.SecretKey, cfg.Captcha.ScoreThreshold, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize CAPTCHA verifier: %w", err)
	}
	if cfg.Captcha.Provider != "" {
		logger.Info("CAPTCHA verification enabled", "provider", cfg.Captcha.Provider)
	} else {
		logger.Warn("CAPTCHA verification disabled")
	}

	// Select the form store: Postgres when configured, in-memory otherwise.
	var store formSaver
	if cfg.DatabaseUrl != "" {
		logger.Info("Connecting to database...")
		sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer sqlDB.Close()
		if err := sqlDB.Ping(); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}

		logger.Info("Running database migrations...")
		if err := internal.RunMigrations(sqlDB); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Database migrations completed successfully")

		pool, err := postgres.Connect(ctx, cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()
		store = postgresSaver{postgres.NewFormStore(pool)}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory form store")
		store = memorySaver{forms.NewMemoryStore()}
	}

	// Seed payment forms from disk
	if cfg.SeedFormsPath != "" {
		n, err := seedForms(ctx, store, cfg.SeedFormsPath)
		if err != nil {
			return fmt.Errorf("failed to seed payment forms: %w", err)
		}
		logger.Info("Payment forms seeded", "count", n, "path", cfg.SeedFormsPath)
	}

	// Initialize payment handler
	paymentHandler := payments.New(payments.Config{
		Gateway:  gateway,
		Forms:    store,
		Captcha:  verifier,
		Metrics:  metrics,
		Logger:   logger,
		BaseURL:  cfg.BaseURL,
		Advanced: cfg.Advanced,
	})

	// Configure rate limiting for the payment routes
	rateLimitConfig := middleware.PaymentRateLimiterConfig()
	rateLimitConfig.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
	rateLimitConfig.BurstSize = cfg.RateLimit.BurstSize
	rateLimitConfig.ExemptHeader = cfg.RateLimit.ExemptHeader
	rateLimitConfig.ExemptToken = cfg.RateLimit.ExemptToken
	rateLimitConfig.OnReject = func(string) { metrics.RateLimitRejections.Inc() }
	rateLimiter := middleware.NewRateLimiter(rateLimitConfig)
	defer rateLimiter.Stop()

	// Build the router
	r := router.New(
		router.Recovery(logger),
		middleware.WithClientIP(),
		router.CORS([]string{"*"}),
		router.Logger(logger),
	)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	paymentHandler.RegisterRoutes(r, rateLimiter.Middleware)

	// Start the server with graceful shutdown
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting payment server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// seedForms loads payment forms from a JSON file, reconciling each form's
// price lists across modes before saving.
func seedForms(ctx context.Context, store formSaver, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var seeded []*domain.PaymentForm
	if err := json.Unmarshal(data, &seeded); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, form := range seeded {
		if form.Prices != nil {
			form.Prices.Sync()
		}
		if err := store.Save(ctx, form); err != nil {
			return 0, fmt.Errorf("saving form %s: %w", form.ID, err)
		}
	}
	return len(seeded), nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
