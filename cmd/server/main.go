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

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/batchsettle/internal/auth"
	"github.com/mmynk/batchsettle/internal/config"
	"github.com/mmynk/batchsettle/internal/events"
	"github.com/mmynk/batchsettle/internal/metrics"
	"github.com/mmynk/batchsettle/internal/service"
	"github.com/mmynk/batchsettle/internal/settlement"
	"github.com/mmynk/batchsettle/internal/storage/sqlite"
	"github.com/mmynk/batchsettle/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	m := metrics.New()
	roles := auth.NewStoreAuthorizer(store)
	engine, err := settlement.New(store, settlement.Options{
		Authorizer:         roles,
		Metrics:            m,
		Logger:             logger,
		ClaimWhileDisputed: cfg.ClaimWhileDisputed,
		DistributorAccount: cfg.DistributorAccount,
	})
	if err != nil {
		return err
	}

	if cfg.PolicyFile != "" {
		policy, err := config.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return err
		}
		if err := policy.Apply(ctx, engine, roles); err != nil {
			return err
		}
		slog.Info("Policy applied", "file", cfg.PolicyFile, "assets", len(policy.Assets), "grants", len(policy.Roles))
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	relay := events.NewRelay(store, publisher,
		events.WithInterval(cfg.RelayInterval),
		events.WithMetrics(m),
	)

	mux := http.NewServeMux()
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	service.Register(mux, engine, roles, jwtManager, m)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	handler := h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{})
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Connect server starting", "address", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// publish whatever the last requests wrote
		if _, err := relay.Flush(shutdownCtx); err != nil {
			slog.Warn("Final event flush failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		slog.Info("NATS_URL not set, events are logged only")
		return events.LogPublisher{Logger: logger}, nil
	}
	p, err := events.NewNATSPublisher(events.NATSConfig{
		URL:           cfg.NATSURL,
		Name:          "batchsettle",
		SubjectPrefix: cfg.NATSSubject,
		MaxReconnects: -1,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Publishing events to NATS", "url", cfg.NATSURL, "prefix", cfg.NATSSubject)
	return p, nil
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
