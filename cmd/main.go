/**
 * @description
 * This is the main entry point for the ledger service. It loads configuration, picks the
 * storage backend, connects Redis and RabbitMQ when configured, builds the ledger service
 * and serves the HTTP API until SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Distributed locks and rate limiting.
 * - internal/api, internal/app, internal/config, internal/lock, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nilijoski/banking-app/internal/api"
	"github.com/nilijoski/banking-app/internal/app"
	"github.com/nilijoski/banking-app/internal/config"
	"github.com/nilijoski/banking-app/internal/lock"
	"github.com/nilijoski/banking-app/internal/store"
	rmrabbit "github.com/nilijoski/banking-app/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting ledger-service\" port=%s storage=%s", cfg.ServerPort, cfg.StorageDriver)

	var (
		accounts     store.AccountStore
		transactions store.TransactionStore
	)
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}
		poolConfig.MaxConns = 20
		poolConfig.MinConns = 2
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()

		schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
		err = store.EnsureSchema(schemaCtx, dbpool)
		cancelSchema()
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"schema migration failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"database connected\"")

		accounts = store.NewPostgresAccountRepository(dbpool)
		transactions = store.NewPostgresTransactionRepository(dbpool)
	default:
		log.Println("level=warn component=bootstrap msg=\"using in-memory storage; data is lost on restart\"")
		accounts = store.NewMemoryAccountStore()
		transactions = store.NewMemoryTransactionStore()
	}

	var redisClient *redis.Client
	if cfg.RedisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-process locks and no rate limiting\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-process locks\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-process locks\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	var publisher rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		publisher = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	opts := []app.Option{app.WithPublisher(publisher, cfg.LedgerEventsExchange)}
	var rateLimit app.TransferRateLimit
	if redisClient != nil {
		opts = append(opts, app.WithLocker(lock.NewRedisLocker(redisClient, lock.RedisLockOptions{
			Expiry: time.Duration(cfg.AccountLockTTLSeconds) * time.Second,
		})))
		rateLimit = app.TransferRateLimit{
			Limiter: app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			Limit:   cfg.TransferRateLimitPerMinute,
			Window:  time.Minute,
		}
	}

	ledgerService := app.NewService(accounts, transactions, opts...)

	if rabbitProducer != nil {
		rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; cash movements disabled\" err=%v", err)
		} else {
			defer rabbitConsumer.Close()
			cashConsumer := app.NewCashMovementConsumer(ledgerService)
			if err := rabbitConsumer.ConsumeWithBindings(cfg.LedgerEventsExchange, cfg.LedgerCashQueue, cashConsumer.Bindings()); err != nil {
				log.Fatalf("level=fatal component=bootstrap msg=\"cash movement consumer start failed\" err=%v", err)
			}
		}
	}

	auditScheduler := app.NewAuditScheduler(ledgerService, cfg.LedgerAuditSchedule)
	if err := auditScheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"audit scheduler start failed\" err=%v", err)
	}

	handlers := api.NewHandlers(ledgerService, rateLimit)
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins(),
		JWTSecret:      cfg.JWTSecret,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	<-auditScheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
