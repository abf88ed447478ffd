/**
 * @description
 * This is the main entry point for the bitcoin adapter. It is responsible for
 * initializing all components of the service, including configuration,
 * database connection, external API clients, message brokers, repositories,
 * the confirmation engine, ledger sync, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Reconciliation schedule.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/blockcypher, pkg/rehiveclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/rehive/bitcoin-adapter/internal/api"
	"github.com/rehive/bitcoin-adapter/internal/app"
	"github.com/rehive/bitcoin-adapter/internal/config"
	"github.com/rehive/bitcoin-adapter/internal/store"
	"github.com/rehive/bitcoin-adapter/pkg/blockcypher"
	rmrabbit "github.com/rehive/bitcoin-adapter/pkg/rabbitmq"
	"github.com/rehive/bitcoin-adapter/pkg/rehiveclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting bitcoin adapter\" port=%s currency=%s", cfg.ServerPort, cfg.Currency)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// External service clients.
	rehiveClient := rehiveclient.NewClient(cfg.RehiveAPIURL, cfg.RehiveAPIToken)
	chainClient := blockcypher.NewClient(cfg.BlockCypherAPIURL, cfg.BlockCypherToken)

	// Redis is optional; without it webhook rate limiting degrades to off.
	var redisClient *redis.Client
	if cfg.WebhookRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; webhook rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; webhook rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; webhook rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Ledger sync retries on the hour-scale schedule expected for a
	// temporarily unreachable platform.
	retryRunner := app.NewRetryRunner(app.RetryPolicy{
		MaxAttempts: cfg.LedgerSyncMaxAttempts,
		Delay:       cfg.LedgerSyncRetryDelay,
		Retryable:   app.LedgerRetryable,
	})
	ledgerSync := app.NewLedgerSync(repository, rehiveClient, retryRunner)

	engine := app.NewEngine(repository, ledgerSync, cfg.ConfidenceThreshold, cfg.CoinPrecision, cfg.Currency, cfg.Issuer)
	adapterService := app.NewService(repository, chainClient, cfg.CoinPrecision, cfg.Currency, cfg.Issuer)

	// Webhook deliveries go through RabbitMQ when the broker is up; the
	// inline dispatcher keeps ingestion alive (without durability) when not.
	var dispatcher app.WebhookDispatcher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; processing webhooks inline\" err=%v", err)
		dispatcher = app.NewInlineDispatcher(engine)
	} else {
		defer rabbitProducer.Close()
		dispatcher = app.NewQueueDispatcher(rabbitProducer, cfg.WebhookEventQueue)
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")

		rabbitConsumer, consumerErr := rmrabbit.NewConsumer(cfg.RabbitMQURL)
		if consumerErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", consumerErr)
		}
		defer rabbitConsumer.Close()
		if err := rabbitConsumer.ConsumeQueue(cfg.WebhookEventQueue, engine.HandleMessage); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"webhook consumer start failed\" err=%v", err)
		}
	}

	var rateLimiter *app.RedisWebhookRateLimiter
	if redisClient != nil {
		rateLimiter = app.NewRedisWebhookRateLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.WebhookRateLimitPerMinute, time.Minute)
	}

	// Reconciliation sweep picks up receives that exhausted their retries.
	sweeper := app.NewSweeper(repository, ledgerSync, 2*cfg.LedgerSyncRetryDelay, 100)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ReconcileSchedule, sweeper.Run); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid reconcile schedule\" schedule=%q err=%v", cfg.ReconcileSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	handlers := api.NewAdapterHandlers(adapterService, dispatcher, rateLimiter)
	router := api.AdapterRoutes(handlers, cfg.AdapterSecretKey)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
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

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
