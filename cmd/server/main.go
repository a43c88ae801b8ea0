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
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reelsmith/api/internal/assembler"
	"github.com/reelsmith/api/internal/config"
	"github.com/reelsmith/api/internal/handler"
	"github.com/reelsmith/api/internal/media"
	"github.com/reelsmith/api/internal/middleware"
	"github.com/reelsmith/api/internal/planner"
	"github.com/reelsmith/api/internal/service"
	"github.com/reelsmith/api/internal/store"
	"github.com/reelsmith/api/internal/worker"
	"github.com/reelsmith/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Media collaborators
	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegBin, cfg.Media.FFprobeBin)
	library := media.NewFSLibrary(cfg.Media.UploadsRoot)

	// Pipeline components
	jobStore := store.NewRedisStore(redisClient, cfg.Worker.Retention)
	segmentPlanner := planner.New(library, ffmpeg, ffmpeg)
	montageAssembler := assembler.New(ffmpeg, ffmpeg, ffmpeg)
	runner := worker.NewRunner(jobStore, segmentPlanner, montageAssembler, library, cfg.Media.UploadsRoot, cfg.Worker.JobTimeout)
	enqueuer := worker.NewAsynqEnqueuer(asynqClient, cfg.Worker.JobTimeout)

	// Services and handlers
	montageService := service.NewMontageService(jobStore, enqueuer, library)
	reelsHandler := handler.NewReelsHandler(montageService, validate)

	// Middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Reels routes
	reels := app.Group("/api/reels")
	reels.Post("/jobs", rateLimiter.SubmitLimit(cfg.RateLimit.JobsPerHour), reelsHandler.Submit)
	reels.Get("/jobs/:jobId", reelsHandler.Status)
	reels.Post("/jobs/:jobId/cancel", reelsHandler.Cancel)

	// Start Asynq worker server
	go startWorkerServer(cfg, runner)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, runner *worker.Runner) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				worker.QueueMontage: 1,
			},
		},
	)

	montageWorker := worker.NewMontageWorker(runner)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeMontage, montageWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
