package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tax-engagement-service/handlers"
	"tax-engagement-service/middleware"
	"tax-engagement-service/models"
	"tax-engagement-service/services"
	"tax-engagement-service/store"
	"tax-engagement-service/utils"
	"tax-engagement-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading environment variables directly")
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB, icons are the largest upload
	})

	// Only gateway requests allowed, no exceptions.
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Warn("ALLOWED_ORIGINS not set, defaulting to http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Error("DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	if err := utils.InitR2(); err != nil {
		log.Error("failed to initialize R2 client", "error", err)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := db.AutoMigrate(
		&models.TaxUser{},
		&models.AchievementDefinition{},
		&models.UserAchievementProgress{},
		&models.UserStats{},
		&models.TaxReturn{},
		&models.Referral{},
		&models.Commission{},
	); err != nil {
		log.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	var st store.Store = store.NewGorm(db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		st = store.NewCachedStore(st, redis.NewClient(opts), log)
		log.Info("stats cache enabled")
	}

	leveling := services.NewLevelingService(st, log)
	streaks := services.NewStreakService(st, log)
	evaluator := services.NewEvaluator(st, log)
	achievements := services.NewAchievementService(st, evaluator, leveling, log)
	triggers := services.NewTriggerService(st, achievements, streaks, log)
	catalog := services.NewCatalogService(st, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := catalog.SeedDefaults(ctx); err != nil {
		log.Error("failed to seed achievement catalog", "error", err)
		os.Exit(1)
	}

	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Error("SYNC_SERVICE_URL environment variable not set")
		os.Exit(1)
	}
	serviceToken := os.Getenv("ENGAGEMENT_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Error("ENGAGEMENT_SERVICE_TOKEN environment variable not set")
		os.Exit(1)
	}

	syncWorker := workers.NewUserSyncWorker(db, log, syncServiceURL, "/api/v1/public/profiles", serviceToken)
	syncWorker.Start(ctx)

	scheduler := services.NewScheduler(triggers, streaks, log)
	if err := scheduler.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	handlers.SetupEventRoutes(app, triggers)
	handlers.SetupProgressionRoutes(app, st, leveling, achievements, catalog, triggers)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Error("server error", "error", err)
		}
	}()

	log.Info("engagement service running", "addr", "http://localhost:5300")

	<-ctx.Done()
	log.Info("shutting down server")
	_ = app.Shutdown()
}
