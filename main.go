package main

import (
	"context"
	"database/sql"
	"errors"
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

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/cache"
	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database/migrations"
	"ms-boxoffice/internal/kafka"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/middleware"
	"ms-boxoffice/internal/reports"
	"ms-boxoffice/internal/reports/report_api"
	"ms-boxoffice/internal/sales/db"
	"ms-boxoffice/internal/sales/ingest"
	"ms-boxoffice/internal/sales/ingest_api"
)

func connectStore(cfg config.StoreConfig, logger *logger.Logger) (*bun.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	var sqldb *sql.DB
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", maxRetries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	logger.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func migrate(ctx context.Context, cfg *config.Config, store *db.DB, logger *logger.Logger) error {
	dsn, err := cfg.Store.DSN()
	if err != nil {
		return err
	}
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	defer sqldb.Close()

	runner := migrations.NewRunner(sqldb, logger)
	defer runner.Close()
	if err := runner.RunMigrations(); err != nil {
		return err
	}

	// migrations cover the default stream names; renamed streams are created here
	for _, table := range []string{cfg.Streams.SalesTable, cfg.Streams.LiveTable} {
		if err := store.EnsureTable(ctx, table); err != nil {
			return fmt.Errorf("ensure table %s: %w", table, err)
		}
	}
	return nil
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Box Office Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("CONFIG", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := connectStore(cfg.Store, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	store := &db.DB{Bun: bunDB}
	if cfg.Store.AutoMigrate {
		if err := migrate(ctx, cfg, store, logger); err != nil {
			logger.Fatal("MIGRATE", fmt.Sprintf("Failed to migrate: %v", err))
		}
	}

	ingestService := ingest.NewService(store, cfg.Streams.SalesTable, nil, logger)
	reportService := reports.NewService(store, cfg.Streams.SalesTable, cfg.Streams.LiveTable, cfg.Reports.Location, logger)
	reportService.RecentLimit = cfg.Reports.RecentLimit

	var redisClient *redis.Client
	var invalidator ingest.Invalidator
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.Connect(ctx, cfg.Redis.Addr, logger)
		if err != nil {
			logger.Warn("CACHE", "Continuing without report cache")
		} else {
			defer redisClient.Close()
			reportCache := cache.NewReportCache(redisClient, cfg.Redis.CacheTTL, logger)
			reportService.WithCache(reportCache)
			ingestService.WithCache(reportCache)
			invalidator = reportCache
		}
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Streams.SalesTable, logger)
		defer producer.Close()
		ingestService.Publisher = producer
		logger.Info("KAFKA", fmt.Sprintf("Publishing recorded sales to %s", cfg.Kafka.Topic))

		if cfg.Kafka.LiveMirror {
			consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, logger)
			defer consumer.Close()
		}
	}

	var verifier func(http.Handler) http.Handler
	if cfg.Auth.OIDCIssuer != "" {
		v, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			logger.Fatal("AUTH", err.Error())
		}
		verifier = auth.Middleware(v, logger)
		logger.Info("AUTH", fmt.Sprintf("Report routes require tokens from %s", cfg.Auth.OIDCIssuer))
	} else {
		logger.Warn("AUTH", "OIDC_ISSUER not set, report routes are open")
	}

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.AccessLog(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// --- Public Routes ---
	ingest_api.NewHandler(ingestService, logger).RegisterRoutes(r)
	logger.Info("ROUTER", "Sales webhook registered at /webhook/sales")

	// --- Report Routes ---
	r.Group(func(r chi.Router) {
		if verifier != nil {
			r.Use(verifier)
		}
		report_api.NewHandler(reportService, logger).RegisterRoutes(r)
	})
	logger.Info("ROUTER", "Report routes registered under /api/reports")

	if consumer != nil {
		go func() {
			mirror := ingest.MirrorTo(store, invalidator, cfg.Streams.LiveTable, logger)
			if err := consumer.Run(ctx, mirror); err != nil {
				logger.Error("KAFKA", fmt.Sprintf("Live mirror stopped: %v", err))
			}
		}()
		logger.Info("KAFKA", fmt.Sprintf("Mirroring recorded sales into %s", cfg.Streams.LiveTable))
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Box Office Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Box Office Service shutdown complete")
	}
	_ = os.Stdout.Sync()
}
