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

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-guestpass/internal/auth"
	"ms-guestpass/internal/cache"
	"ms-guestpass/internal/config"
	"ms-guestpass/internal/kafka"
	"ms-guestpass/internal/logger"
	"ms-guestpass/internal/scan"
	scandb "ms-guestpass/internal/scan/db"
	"ms-guestpass/internal/scan/scan_api"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("scan-service")
	defer log.Close()

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

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	var responseCache *cache.Cache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Redis unavailable, replay cache disabled: %v", err))
		} else {
			log.Info("REDIS", "Redis connection successful")
			responseCache = cache.New(rdb)
		}
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
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

	service := scan.NewScanService(&scandb.DB{Bun: bunDB}, cacheOrNil(responseCache), kafkaOrNil(producer), log)
	handler := scan_api.NewHandler(service)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", auth.GinMiddleware(verifier))
	handler.Routes(authed)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Scan service on %s", cfg.Server.Port))
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
	log.Info("SERVER", "Scan service shutdown complete")
}

func cacheOrNil(c *cache.Cache) scan.ResponseCache {
	if c == nil {
		return nil
	}
	return c
}

func kafkaOrNil(p *kafka.Producer) scan.KafkaPublisher {
	if p == nil {
		return nil
	}
	return p
}
