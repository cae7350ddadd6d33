package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/auth"
	"github.com/marminbh/journey-logger-svc/internal/config"
	"github.com/marminbh/journey-logger-svc/internal/database"
	"github.com/marminbh/journey-logger-svc/internal/logger"
	"github.com/marminbh/journey-logger-svc/internal/metrics"
	"github.com/marminbh/journey-logger-svc/internal/rabbitmq"
	"github.com/marminbh/journey-logger-svc/internal/routes"
	"github.com/marminbh/journey-logger-svc/internal/service"
	"github.com/marminbh/journey-logger-svc/internal/writer"
)

var errRabbitMQClosed = errors.New("connection closed")

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Logger level comes from config, so fall back to a default logger here
		l, _ := logger.New(os.Getenv("LOG_LEVEL"))
		l.Fatal("Failed to load config", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync(log)

	tokens := auth.NewTokenManager(auth.Config{
		AuthURL:      cfg.Marketing.AuthURL(),
		ClientID:     cfg.Marketing.ClientID,
		ClientSecret: cfg.Marketing.ClientSecret,
		AccountID:    cfg.Marketing.AccountID,
		FallbackTTL:  cfg.Marketing.TokenTTL,
		ExpiryMargin: cfg.Marketing.TokenExpiryMargin,
		HTTPClient:   &http.Client{Timeout: cfg.Marketing.HTTPTimeout},
	}, log.Named("auth"))

	w, err := writer.New(&cfg.Marketing, tokens, log.Named("writer"))
	if err != nil {
		log.Fatal("Failed to create writer", zap.Error(err))
	}

	m, err := metrics.New()
	if err != nil {
		log.Fatal("Failed to create metrics", zap.Error(err))
	}

	svc := service.NewService(log, w, m)
	svc.StaticDir = cfg.Activity.StaticDir

	// Optional execution attempt log
	if cfg.Database.Enabled() {
		if cfg.Database.RunMigrations {
			if err := database.RunMigrations(&cfg.Database, log); err != nil {
				log.Fatal("Failed to run migrations", zap.Error(err))
			}
		}

		db, err := database.Connect(&cfg.Database, log)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := database.Close(db, log); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()

		store := database.NewAttemptStore(db)
		svc.Attempts = store
		svc.Health["database"] = store.Ping
	}

	// Optional execution event publishing
	if cfg.RabbitMQ.Enabled() {
		conn := rabbitmq.NewConnection(&cfg.RabbitMQ, log.Named("rabbitmq"))
		if err := conn.Connect(); err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()

		svc.Events = rabbitmq.NewPublisher(conn, cfg.RabbitMQ.RoutingKey)
		svc.Health["rabbitmq"] = func(ctx context.Context) error {
			if !conn.IsHealthy() {
				return errRabbitMQClosed
			}
			return nil
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "Journey Logger",
		ServerHeader: "Fiber",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	// The configuration UI is loaded in an iframe on the canvas origin
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes.SetupRoutes(app, svc)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Server starting",
			zap.String("address", addr),
			zap.String("strategy", w.Name()),
			zap.String("data_extension", cfg.Marketing.DataExtensionKey),
			zap.String("client_id", logger.Redact(cfg.Marketing.ClientID)),
		)
		if err := app.Listen(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
