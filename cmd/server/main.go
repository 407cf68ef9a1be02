package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-crm-api/internal/adapters/cache"
	"school-crm-api/internal/adapters/http/middleware"
	"school-crm-api/internal/adapters/http/routes"
	"school-crm-api/internal/adapters/mail"
	"school-crm-api/internal/adapters/persistence/models"
	"school-crm-api/internal/adapters/persistence/repositories"
	"school-crm-api/internal/config"
	"school-crm-api/internal/core/services"
	"school-crm-api/internal/pkg/logger"
	"school-crm-api/internal/pkg/metrics"
	"school-crm-api/internal/pkg/password"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	_ "school-crm-api/docs" // Swagger docs
)

// @title School CRM API
// @version 1.0
// @description Authentication and account administration for the school and hospital back office.

// @contact.name API Support

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("dev", "")
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(cfg.AppMode, cfg.LogLevel)

	db, err := config.ConnectDatabase(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to auto migrate")
	}
	log.Info().Msg("database migration completed")

	ctx := context.Background()
	if err := config.NewSeeder(db, password.NewBcrypt(cfg.Security.BcryptCost), cfg.Seed, log).Run(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to seed database")
	}

	redisClient, err := config.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	var limiterStorage fiber.Storage
	if redisClient != nil {
		defer redisClient.Close()
		limiterStorage = cache.NewRedisStorage(redisClient, "school-crm:limiter:")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	var mailer services.Mailer
	if smtp := mail.NewSMTPMailer(mail.Config{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromName:    cfg.SMTP.FromName,
		FromAddress: cfg.SMTP.FromAddress,
	}); smtp != nil {
		mailer = smtp
	} else {
		log.Warn().Msg("SMTP_HOST not set, emails are disabled")
	}
	notifier := services.NewNotificationService(mailer, cfg.Frontend.URL, log)

	cleanup := services.NewCleanupService(repositories.NewRefreshTokenRepository(db), log)
	if err := cleanup.Start(cfg.Cron.CleanupSchedule); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Cron.CleanupSchedule).Msg("invalid CLEANUP_SCHEDULE")
	}

	app := fiber.New(fiber.Config{
		AppName:      "School CRM API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	middleware.Setup(app, cfg, log, limiterStorage)

	routes.Setup(app, db, cfg, routes.Deps{
		Log:      log,
		Notifier: notifier,
		Storage:  limiterStorage,
		Registry: registry,
	})

	go gracefulShutdown(app, log)

	log.Info().Str("port", cfg.Port).Str("mode", cfg.AppMode).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}

	cleanup.Stop()
	notifier.Close()
	if err := config.CloseDatabase(db); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
	log.Info().Msg("server stopped gracefully")
}

// gracefulShutdown stops accepting requests on SIGINT or SIGTERM
func gracefulShutdown(app *fiber.App, log zerolog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
