package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-guestpass/internal/auth"
	"ms-guestpass/internal/config"
	"ms-guestpass/internal/database/migrations"
	"ms-guestpass/internal/kafka"
	"ms-guestpass/internal/logger"
	"ms-guestpass/internal/passes"
	passdb "ms-guestpass/internal/passes/db"
	"ms-guestpass/internal/passes/pass_api"
)

func openDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.Info("DATABASE", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("pass-service")
	defer log.Close()

	bunDB := openDatabase(cfg, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.Up(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		log.Info("DATABASE", "Migrations applied")
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{
			cfg.Kafka.Topics.TicketIssued,
			cfg.Kafka.Topics.TicketScanned,
		}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic setup failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketIssued, cfg.Kafka.Topics.TicketScanned)
		defer producer.Close()
	}

	verifier, err := auth.NewVerifier(context.Background(), cfg.Auth.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up verifier: %v", err))
	}
	if cfg.Auth.OIDCIssuer == "" {
		log.Warn("AUTH", "OIDC_ISSUER not set, running with unverified tokens")
	}

	service := passes.NewPassService(&passdb.DB{Bun: bunDB}, kafkaOrNil(producer), log)
	handler := pass_api.NewHandler(service)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		handler.Routes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Pass service on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "Pass service shutdown complete")
}

// kafkaOrNil keeps the service's publisher interface nil when Kafka is
// disabled, so a typed nil pointer never masquerades as a live publisher.
func kafkaOrNil(p *kafka.Producer) passes.KafkaPublisher {
	if p == nil {
		return nil
	}
	return p
}
