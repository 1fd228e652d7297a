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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/MrJamesThe3rd/autoescrow/internal/audit"
	auditStore "github.com/MrJamesThe3rd/autoescrow/internal/audit/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/config"
	"github.com/MrJamesThe3rd/autoescrow/internal/database"
	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	disputeStore "github.com/MrJamesThe3rd/autoescrow/internal/dispute/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	eventStore "github.com/MrJamesThe3rd/autoescrow/internal/event/store"
	escrowHttp "github.com/MrJamesThe3rd/autoescrow/internal/http"
	disputeHandler "github.com/MrJamesThe3rd/autoescrow/internal/http/dispute"
	paymentHandler "github.com/MrJamesThe3rd/autoescrow/internal/http/payment"
	txHandler "github.com/MrJamesThe3rd/autoescrow/internal/http/transaction"
	"github.com/MrJamesThe3rd/autoescrow/internal/logging"
	"github.com/MrJamesThe3rd/autoescrow/internal/memstore"
	"github.com/MrJamesThe3rd/autoescrow/internal/metrics"
	"github.com/MrJamesThe3rd/autoescrow/internal/notify"
	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	paymentStore "github.com/MrJamesThe3rd/autoescrow/internal/payment/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	txStore "github.com/MrJamesThe3rd/autoescrow/internal/transaction/store"
)

type backend struct {
	transactions transaction.Repository
	payments     payment.Repository
	disputes     dispute.Repository
	activity     audit.Repository
	outbox       event.Outbox
	close        func() error
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := metrics.New(reg)

	store, err := newBackend(ctx, cfg, reg)
	if err != nil {
		logger.Error("failed to set up storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer store.close()

	deduper, err := newDeduper(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	var (
		transactionService = transaction.NewService(store.transactions, transaction.WithObserver(m))
		paymentService     = payment.NewService(store.payments)
		disputeService     = dispute.NewService(store.disputes)
		auditService       = audit.NewService(store.activity)
		webhook            = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, deduper, cfg.Notify.DedupeTTL)
	)

	relay := event.NewRelay(store.outbox, []event.Handler{auditService, webhook}, event.RelayConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		Workers:      cfg.Outbox.Workers,
		PollInterval: cfg.Outbox.PollInterval,
		Observer:     m,
	})

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)

		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox relay stopped", "error", err)
		}
	}()

	var (
		transactionH = txHandler.NewHandler(transactionService, auditService)
		paymentH     = paymentHandler.NewHandler(paymentService, transactionService)
		disputeH     = disputeHandler.NewHandler(disputeService, transactionService)
	)

	router := escrowHttp.New(escrowHttp.Config{
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        m,
	}, transactionH, paymentH, disputeH)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "app", cfg.App.Name, "addr", srv.Addr, "storage", cfg.Storage.Driver)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	cancel()
	<-relayDone
}

func newBackend(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*backend, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		slog.Warn("using in-memory storage, data is lost on exit")

		s := memstore.New()

		return &backend{
			transactions: s,
			payments:     s,
			disputes:     s,
			activity:     s,
			outbox:       s,
			close:        func() error { return nil },
		}, nil
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	reg.MustRegister(collectors.NewDBStatsCollector(db, cfg.DB.Name))

	return &backend{
		transactions: txStore.New(db),
		payments:     paymentStore.New(db),
		disputes:     disputeStore.New(db),
		activity:     auditStore.New(db),
		outbox:       eventStore.New(db),
		close:        db.Close,
	}, nil
}

func newDeduper(ctx context.Context, cfg *config.Config) (notify.Deduper, error) {
	if cfg.Notify.RedisURL == "" {
		return notify.NewMemoryDeduper(), nil
	}

	opts, err := redis.ParseURL(cfg.Notify.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return notify.NewRedisDeduper(client), nil
}
