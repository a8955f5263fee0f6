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
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-competitions/internal/analytics"
	analytics_api "ms-competitions/internal/analytics/api"
	"ms-competitions/internal/auth"
	"ms-competitions/internal/competition"
	"ms-competitions/internal/competition/competition_api"
	compdb "ms-competitions/internal/competition/db"
	"ms-competitions/internal/config"
	"ms-competitions/internal/database/migrations"
	"ms-competitions/internal/entry"
	entrydb "ms-competitions/internal/entry/db"
	"ms-competitions/internal/entry/entry_api"
	"ms-competitions/internal/entry/qr"
	rediswrap "ms-competitions/internal/entry/redis"
	"ms-competitions/internal/kafka"
	"ms-competitions/internal/leaderboard"
	"ms-competitions/internal/leaderboard/leaderboard_api"
	"ms-competitions/internal/logger"
	"ms-competitions/internal/models"
	"ms-competitions/internal/purchase"
	purchasedb "ms-competitions/internal/purchase/db"
	"ms-competitions/internal/purchase/purchase_api"
)

func connectDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Competition Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB := connectDatabase(cfg.Database, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		if err := runner.Close(); err != nil {
			log.Warn("DATABASE", fmt.Sprintf("Failed to close migrator: %v", err))
		}
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		requiredTopics := []string{
			cfg.Kafka.Topics.EntryCreated,
			cfg.Kafka.Topics.PaymentSucceeded,
			cfg.Kafka.Topics.PaymentFailed,
			cfg.Kafka.Topics.CompetitionUpdated,
			cfg.Kafka.Topics.DrawWins,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}

		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		defer producer.Close()
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, events will not be published")
	}

	gateway, err := purchase.NewStripeGateway(cfg.Stripe, log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Stripe initialization failed: %v", err))
	}

	competitionDB := compdb.NewDB(bunDB)
	entryDB := entrydb.NewDB(bunDB)
	purchaseDB := purchasedb.NewDB(bunDB)
	leaderboardDB := leaderboard.NewDB(bunDB)
	analyticsDB := analytics.NewDB(bunDB)

	locker := rediswrap.NewLocker(redisClient, cfg.Redis.LockTTL)

	// A nil producer interface would dodge the services' nil checks.
	var competitionPublisher competition.Publisher
	var entryPublisher entry.Publisher
	var purchasePublisher purchase.Publisher
	if producer != nil {
		competitionPublisher = producer
		entryPublisher = producer
		purchasePublisher = producer
	}

	competitionService := competition.NewService(competitionDB, competitionPublisher, cfg.Competitions)
	entryService := entry.NewService(entryDB, competitionDB, locker, entryPublisher)
	purchaseService := purchase.NewService(
		purchaseDB, competitionDB, entryDB, entryService, gateway, locker, purchasePublisher, cfg.Stripe)
	analyticsService := analytics.NewService(analyticsDB, competitionDB)
	qrGenerator := qr.NewGenerator(cfg.Competitions.QRSecret)

	// Draw results arrive over Kafka from the external draw process.
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.DrawWins, cfg.Kafka.GroupID)
		defer consumer.Close()
		go consumer.Start(ctx, func(win models.WinEvent) {
			if err := entryService.RecordWin(ctx, win, cfg.Competitions.ClaimWindow); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Failed to record win for user %s: %v", win.UserID, err))
			}
		})
		log.Info("KAFKA", fmt.Sprintf("Draw wins consumer started on topic %s", cfg.Kafka.Topics.DrawWins))
	}

	verifier, err := auth.NewVerifier(ctx, os.Getenv("OIDC_ISSUER"))
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("OIDC setup failed: %v", err))
	}
	identityCache := auth.NewIdentityCache(redisClient)

	competitionHandler := competition_api.NewHandler(competitionService, entryService, log)
	entryHandler := entry_api.NewHandler(entryService, qrGenerator, log)
	purchaseHandler := purchase_api.NewHandler(purchaseService, log)
	leaderboardHandler := leaderboard_api.NewHandler(leaderboardDB, log)
	analyticsHandler := analytics_api.NewHandler(analyticsService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes (identity optional, merged into the view when present) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Optional(verifier, identityCache))

		r.Get("/api/competitions", competitionHandler.List)
		r.Get("/api/competitions/{competitionID}", competitionHandler.Get)
		r.Get("/api/leaderboard", leaderboardHandler.Top)
	})
	log.Info("ROUTER", "Public competition routes registered under /api/competitions")

	// --- Webhook (Stripe-signed, no bearer auth) ---
	r.Post("/api/payments/webhook", purchaseHandler.StripeWebhook)
	log.Info("ROUTER", "Stripe webhook registered at /api/payments/webhook")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, identityCache))
		log.Info("AUTH", "Bearer token middleware applied to protected API routes")

		r.Post("/api/competitions/{competitionID}/enter", entryHandler.Enter)
		r.Post("/api/competitions/{competitionID}/bookmark", entryHandler.Bookmark)
		r.Post("/api/competitions/{competitionID}/like", entryHandler.Like)
		r.Post("/api/competitions/{competitionID}/steps/{stepIndex}/complete", entryHandler.CompleteStep)
		r.Post("/api/competitions/{competitionID}/complete-entry", entryHandler.CompleteEntry)
		r.Get("/api/competitions/{competitionID}/entry", entryHandler.GetEntry)
		r.Get("/api/competitions/{competitionID}/entry/qr", entryHandler.EntryQR)
		r.Get("/api/my-entries", entryHandler.MyEntries)
		log.Info("ROUTER", "Entry routes registered under /api/competitions/{competitionID}")

		r.Post("/api/payments/purchase-tickets", purchaseHandler.PurchaseTickets)
		r.Get("/api/payments/purchases/{purchaseID}", purchaseHandler.GetPurchase)
		log.Info("ROUTER", "Payment routes registered under /api/payments")

		// --- Admin Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Post("/api/admin/competitions", competitionHandler.Create)
			r.Put("/api/admin/competitions/{competitionID}", competitionHandler.Update)
			r.Delete("/api/admin/competitions/{competitionID}", competitionHandler.Delete)
			r.Get("/api/admin/competitions", competitionHandler.List)
			r.Get("/api/admin/competitions/{competitionID}/analytics", analyticsHandler.GetSalesReport)
		})
		log.Info("ROUTER", "Admin routes registered under /api/admin/competitions")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Competition Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Competition Service shutdown complete")
	}
}
