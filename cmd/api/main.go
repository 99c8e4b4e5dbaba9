package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/skora-go-api/internal/config"
	"github.com/noah-isme/skora-go-api/internal/database"
	"github.com/noah-isme/skora-go-api/internal/handler"
	"github.com/noah-isme/skora-go-api/internal/middleware"
	"github.com/noah-isme/skora-go-api/internal/models"
	"github.com/noah-isme/skora-go-api/internal/repository"
	"github.com/noah-isme/skora-go-api/internal/router"
	"github.com/noah-isme/skora-go-api/internal/service"
	"github.com/noah-isme/skora-go-api/pkg/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.GradingJob{}, &models.ExamResult{}, &models.ExamDraft{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	sandboxClient, err := sandbox.New(sandbox.Config{
		BaseURL:     cfg.SandboxURL,
		RunTimeout:  cfg.SandboxRunTimeout,
		MaxRetries:  cfg.SandboxMaxRetries,
		RetryDelay:  cfg.SandboxRetryDelay,
		MaxInflight: cfg.SandboxMaxInflight,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create sandbox client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	jobRepo := repository.NewGradingJobRepository(db)
	resultRepo := repository.NewExamResultRepository(db)
	draftRepo := repository.NewExamDraftRepository(db)

	testCaseRunner := service.NewTestCaseRunner(sandboxClient, cfg.TestCaseBatchSize, logger)
	gradingService := service.NewGradingService(jobRepo, resultRepo, draftRepo, testCaseRunner, redisClient, cfg.JobCacheTTL, validate, logger)

	gradingHandler := handler.NewGradingHandler(gradingService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler: gradingHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
