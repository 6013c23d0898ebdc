package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/interngate-api/internal/config"
	"github.com/noah-isme/interngate-api/internal/database"
	"github.com/noah-isme/interngate-api/internal/handler"
	"github.com/noah-isme/interngate-api/internal/middleware"
	"github.com/noah-isme/interngate-api/internal/models"
	"github.com/noah-isme/interngate-api/internal/repository"
	"github.com/noah-isme/interngate-api/internal/router"
	"github.com/noah-isme/interngate-api/internal/service"
	"github.com/noah-isme/interngate-api/pkg/catalog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := catalog.Load(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("load assessment registry: %w", err)
	}
	logger.Info().Strs("assessments", registry.IDs()).Msg("assessment registry loaded")

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&models.PaymentRecord{}, &models.Attempt{}, &models.Certificate{}, &models.AuditEntry{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	defer sqlDB.Close()

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		return err
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	paymentRepo := repository.NewPaymentRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	events := service.NewAssessmentEventBus(redisClient, cfg.EventChannel, natsConn, logger)
	auditService := service.NewAuditService(auditRepo, validate, logger)
	gate := service.NewAuthorizationGate(paymentRepo, logger)
	certificateService := service.NewCertificateService(attemptRepo, certificateRepo, events, cfg.CertificateBaseURL, logger)
	submissionService := service.NewSubmissionService(gate, registry, attemptRepo, certificateService, events, auditService, validate, logger)

	assessmentHandler := handler.NewAssessmentHandler(handler.AssessmentHandlerConfig{
		Gate:         gate,
		Submissions:  submissionService,
		Certificates: certificateService,
		Catalog:      registry,
		Validator:    validate,
		SubmitLimit:  middleware.RateLimit("assessment_submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow),
		SignInPath:   cfg.SignInPath,
		Logger:       logger,
	})

	probes := map[string]handler.HealthProbe{
		"database": sqlDB.PingContext,
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler: assessmentHandler,
		AuditHandler:      handler.NewAuditHandler(auditService, logger),
		SessionMiddleware: middleware.SessionRequired(middleware.SessionConfig{
			Secret:     cfg.JWTSecret,
			SignInPath: cfg.SignInPath,
		}),
		HealthProbes: probes,
	})

	if err := certificateService.Start(ctx); err != nil {
		return fmt.Errorf("start certificate consumer: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("http server listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return group.Wait()
}
