package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/MrJamesThe3rd/paycore/internal/audit"
	"github.com/MrJamesThe3rd/paycore/internal/config"
	"github.com/MrJamesThe3rd/paycore/internal/database"
	paycoreHttp "github.com/MrJamesThe3rd/paycore/internal/http"
	paymentHandler "github.com/MrJamesThe3rd/paycore/internal/http/payment"
	txHandler "github.com/MrJamesThe3rd/paycore/internal/http/transaction"
	"github.com/MrJamesThe3rd/paycore/internal/payment"
	"github.com/MrJamesThe3rd/paycore/internal/provider"
	"github.com/MrJamesThe3rd/paycore/internal/provider/stripe"
	"github.com/MrJamesThe3rd/paycore/internal/retry"
	"github.com/MrJamesThe3rd/paycore/internal/transaction"
	"github.com/MrJamesThe3rd/paycore/internal/transaction/memory"
	txStore "github.com/MrJamesThe3rd/paycore/internal/transaction/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, closeRepo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	auditor, err := newAuditor(ctx, cfg, logger)
	if err != nil {
		return err
	}

	paymentService := payment.NewService(repo, newGateway(cfg), payment.Config{
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Jitter:      cfg.Retry.Jitter,
		},
		OperationTimeout: cfg.OperationTimeout,
		Auditor:          auditor,
		Logger:           logger,
	})

	router := paycoreHttp.New(
		paycoreHttp.Options{JWTSecret: cfg.Auth.JWTSecret, AllowedOrigins: cfg.CORS.AllowedOrigins},
		paymentHandler.NewHandler(paymentService),
		txHandler.NewHandler(paymentService),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("starting server", "port", srv.Addr, "store", cfg.Store, "provider", cfg.Provider.Kind)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// In-flight operations get the full operation budget to record their outcome.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.OperationTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func newRepository(ctx context.Context, cfg *config.Config) (transaction.Repository, func(), error) {
	if cfg.Store == config.StoreMemory {
		return memory.New(), func() {}, nil
	}

	db, err := database.New(ctx, cfg.ConnectionString(), database.Pool{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	store := txStore.New(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}

	return store, func() { db.Close() }, nil
}

func newGateway(cfg *config.Config) payment.Gateway {
	if cfg.Provider.Kind == config.ProviderStripe {
		return stripe.New(stripe.Config{
			SecretKey: cfg.Provider.APIKey,
			URL:       cfg.Provider.URL,
			Timeout:   cfg.Provider.Timeout,
		})
	}

	var limiter *rate.Limiter
	if cfg.Provider.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Provider.Rate), max(cfg.Provider.Burst, 1))
	}

	return provider.NewClient(provider.ClientConfig{
		BaseURL: cfg.Provider.URL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.Provider.Timeout,
		Limiter: limiter,
	})
}

func newAuditor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (audit.Sink, error) {
	sinks := audit.Multi{audit.NewLogSink(logger.With("component", "audit"))}

	if cfg.Audit.SNSTopicARN == "" {
		return sinks, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	snsSink, err := audit.NewSNSSinkFromConfig(awsCfg, cfg.Audit.SNSTopicARN)
	if err != nil {
		return nil, fmt.Errorf("creating SNS audit sink: %w", err)
	}

	return append(sinks, snsSink), nil
}
