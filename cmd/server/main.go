package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/cisse-224/clappybackend/internal/auth"
	"github.com/cisse-224/clappybackend/internal/config"
	"github.com/cisse-224/clappybackend/internal/fleet"
	"github.com/cisse-224/clappybackend/internal/geo"
	"github.com/cisse-224/clappybackend/internal/httpapi"
	"github.com/cisse-224/clappybackend/internal/ingest"
	"github.com/cisse-224/clappybackend/internal/logging"
	"github.com/cisse-224/clappybackend/internal/match"
	"github.com/cisse-224/clappybackend/internal/notify"
	"github.com/cisse-224/clappybackend/internal/payments"
	"github.com/cisse-224/clappybackend/internal/presence"
	"github.com/cisse-224/clappybackend/internal/pricing"
	"github.com/cisse-224/clappybackend/internal/sms"
	"github.com/cisse-224/clappybackend/internal/trips"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if db, err := sql.Open("postgres", cfg.PGDSN); err == nil {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_schema.sql")); err == nil {
				if _, err := db.Exec(string(b)); err != nil {
					logger.Error("migration exec error", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_schema.sql")
				}
			}
			_ = db.Close()
		} else {
			logger.Error("migration db open error", "error", err)
		}
	}

	var store trips.CourseStore
	if cfg.PGDSN != "" {
		ps, err := trips.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable, falling back to memory store", "error", err)
		} else {
			store = ps
		}
	}
	if store == nil {
		store = trips.NewMemoryStore()
	}

	registry := fleet.NewRegistry()
	clients := fleet.NewDirectory()
	tarifs := pricing.DefaultTable(cfg.DefaultDistanceKm)
	hub := presence.NewHub(registry, logger)

	var smsSender notify.SMSSender
	if cfg.SMSEndpoint != "" {
		smsSender = sms.NewGateway(cfg.SMSEndpoint, cfg.SMSAPIKey, cfg.SMSSender)
	}
	dispatcher := notify.NewDispatcher(hub, smsSender, logger, notify.Options{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
		Attempts:  cfg.NotifyAttempts,
		Backoff:   cfg.NotifyBackoff,
	})
	defer dispatcher.Close()

	lifecycle := trips.NewLifecycle(store, registry, logger)

	var cards payments.CardProcessor
	if os.Getenv("STRIPE_API_KEY") != "" {
		cards = payments.NewStripeClient()
	}
	paySvc := payments.NewService(store, cards, logger)

	engine := match.NewEngine(lifecycle, registry, clients, dispatcher, tarifs, paySvc, logger)

	var kp *ingest.PositionProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewPositionProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
	}
	var positions *geo.PositionIndex
	if cfg.RedisAddr != "" {
		positions = geo.NewPositionIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer positions.Close()
	}

	api := httpapi.NewServer(httpapi.Deps{
		Engine:   engine,
		Payments: paySvc,
		Fleet:    registry,
		Clients:  clients,
		Hub:      hub,
		Pricing:  tarifs,
		Kafka:    kp,
		Geo:      positions,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("clappy dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
