/**
 * @description
 * This is the main entry point for the subscription-service. It wires
 * together configuration, the PostgreSQL pool, the repositories, the event
 * consumers, the transactional outbox dispatcher, the year-end scheduler and
 * the HTTP server, then blocks until a termination signal arrives.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: For database connection pooling.
 * - github.com/joho/godotenv: To load .env files for local development.
 * - github.com/redis/go-redis/v9: Optional distributed rate limiting.
 * - github.com/projectshell/subscription-service/pkg/rabbitmq: The RabbitMQ gateway.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/projectshell/subscription-service/internal/api"
	"github.com/projectshell/subscription-service/internal/app"
	"github.com/projectshell/subscription-service/internal/config"
	"github.com/projectshell/subscription-service/internal/domain"
	"github.com/projectshell/subscription-service/internal/store"
	"github.com/projectshell/subscription-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Establish database connection pool
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	dbConfig.MaxConns = 20
	dbConfig.MinConns = 4
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to work with transaction pooling
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed ensuring schema", "error", err)
		os.Exit(1)
	}

	// Initialize application layers
	subRepo := store.NewSubscriptionRepository(dbpool)
	userRepo := store.NewUserRepository(dbpool)
	outboxRepo := store.NewOutboxRepository(dbpool)

	eventHandler := app.NewSubscriptionEventHandler(subRepo, userRepo)
	service := app.NewService(subRepo, userRepo)

	var limiter *app.RedisRateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse redis URL", "error", err)
			os.Exit(1)
		}
		limiter = app.NewRedisRateLimiter(redis.NewClient(opts), "subscription:rate_limit")
		logger.Info("redis rate limiter enabled")
	}

	handler := api.NewHandler(service)
	router := api.NewRouter(handler, cfg.AccessTokenSecret, limiter)

	// Start the outbox dispatcher so enqueued events leave the service.
	dispatcher := app.NewOutboxDispatcher(outboxRepo, cfg.RabbitMQURL)
	go dispatcher.Run(ctx)

	// Start the year-end rollover scheduler.
	jobs := app.NewJobs(subRepo, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.YearEndSchedule)
	scheduler.Start()

	// Set up and start the RabbitMQ consumers.
	membershipConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer membershipConsumer.Close()

	userConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer userConsumer.Close()

	go func() {
		queueName := "subscription-service.membership.events"
		log.Printf("Starting consumer for queue '%s'...", queueName)
		err := membershipConsumer.Consume(domain.MembershipExchange, queueName, map[string]rabbitmq.Handler{
			domain.EventSubscriptionUpsertRequested: eventHandler.HandleSubscriptionUpsertRequested,
		})
		if err != nil {
			log.Fatalf("Membership consumer error: %v", err)
		}
	}()

	go func() {
		queueName := "subscription-service.user.events"
		log.Printf("Starting consumer for queue '%s'...", queueName)
		err := userConsumer.Consume(domain.UserExchange, queueName, map[string]rabbitmq.Handler{
			domain.EventCrmUserCreated: eventHandler.HandleCrmUserCreated,
			domain.EventCrmUserUpdated: eventHandler.HandleCrmUserUpdated,
		})
		if err != nil {
			log.Fatalf("User consumer error: %v", err)
		}
	}()

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	cancel()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
