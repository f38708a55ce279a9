// main.go - Team hub API server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"teamhub/config"
	"teamhub/database"
	"teamhub/events"
	"teamhub/handlers"
	applog "teamhub/logger"
	"teamhub/middleware"
	"teamhub/services"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Interests offered when the aggregate store runs in memory.
var localInterests = []string{"Art", "Gaming", "Music", "Outdoors", "Programming", "Reading", "Sports", "Travel"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		applog.New("main", "").Fatal("invalid configuration", "error", err)
	}

	log := applog.New("main", cfg.AppEnv)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			log.Warn("sentry init failed", "error", err)
		}
	}

	err = run(cfg, log)
	if err != nil {
		log.Error("server exited", "error", err)
		sentry.CaptureException(err)
	}
	sentry.Flush(2 * time.Second)
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run owns every connection so that deferred cleanup happens on all exit paths.
func run(cfg *config.Config, log *applog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Relation store
	db, err := database.InitDB(cfg, log.Named("database"))
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			log.Warn("close database failed", "error", err)
		}
	}()
	relations := services.NewRelationStore(db)

	// Aggregate store
	var teams services.AggregateStore
	switch cfg.AggregateBackend {
	case config.BackendMemory:
		log.Warn("aggregate store running in memory, data is lost on restart")
		teams = services.NewMemoryStore(localInterests...)
	default:
		client, mdb, err := database.ConnectMongo(ctx, cfg, log.Named("mongo"))
		if err != nil {
			return fmt.Errorf("mongo init: %w", err)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("mongo disconnect failed", "error", err)
			}
		}()

		store := services.NewMongoStore(mdb)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		teams = store
	}

	// Cleanup task queue and limiter storage
	var (
		tasks       services.TaskQueue
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		tasks = services.NewRedisTaskQueue(redisClient)
	} else {
		tasks = services.NewMemoryTaskQueue()
	}

	// Events
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("amqp init: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	svc := services.NewMembershipService(teams, relations, tasks, publisher, log.Named("membership"))
	handlers.InitTeamHandlers(svc)

	reconciler := services.NewReconciler(teams, relations, tasks, cfg.ReconcileInterval, log.Named("reconciler"))
	reconciler.SetGracePeriod(cfg.ReconcileGrace)
	reconciler.Start(ctx)
	defer reconciler.Stop()

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.NewErrorHandler(log.Named("http"), cfg.IsProduction()),
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))
	app.Use(middleware.NewRateLimiter(middleware.RateLimitConfig{
		Max:    cfg.RateLimitMax,
		Window: cfg.RateLimitWindow,
		Redis:  redisClient,
	}))

	handlers.SetupRoutes(app, middleware.NewAuthMiddleware(cfg.JWTSecret))

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	log.Info("HTTP server starting",
		"port", cfg.Port,
		"env", cfg.AppEnv,
		"aggregate_backend", cfg.AggregateBackend,
		"redis", cfg.RedisAddr != "",
		"amqp", cfg.AMQPURL != "",
	)
	if err := app.Listen(":" + cfg.Port); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Port, err)
	}
	return nil
}
