// main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/api/handlers"
	"github.com/Marga-Ghale/grove-backend/internal/api/middleware"
	"github.com/Marga-Ghale/grove-backend/internal/cache"
	"github.com/Marga-Ghale/grove-backend/internal/config"
	"github.com/Marga-Ghale/grove-backend/internal/cron"
	"github.com/Marga-Ghale/grove-backend/internal/db"
	"github.com/Marga-Ghale/grove-backend/internal/email"
	"github.com/Marga-Ghale/grove-backend/internal/logger"
	"github.com/Marga-Ghale/grove-backend/internal/metrics"
	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/Marga-Ghale/grove-backend/internal/seed"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/Marga-Ghale/grove-backend/internal/socket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// ============================================
	// Load environment variables
	// ============================================
	envErr := godotenv.Load()

	// ============================================
	// Load configuration
	// ============================================
	cfg := config.Load()
	log := logger.New(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	// ============================================
	// Set Gin mode
	// ============================================
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ============================================
	// Run Database Migrations FIRST
	// ============================================
	log.Info().Msg("🔄 Running database migrations...")
	if err := db.RunMigrations(cfg.DatabaseURL, logger.Component(log, "migrate")); err != nil {
		log.Fatal().Err(err).Msg("❌ Migration failed")
	}
	log.Info().Msg("✅ Database migrations completed")

	// ============================================
	// Initialize PostgreSQL (pgxpool + sqlx)
	// ============================================
	ctx := context.Background()

	pg, err := db.NewPostgresDB(ctx, cfg.DatabaseURL, logger.Component(log, "postgres"))
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to PostgreSQL")
	}
	defer pg.Close()

	// ============================================
	// Initialize Repositories
	// ============================================
	repos := repository.NewRepositories(pg.Pool, pg.SQL)
	log.Info().Msg("📦 Repositories initialized")

	// ============================================
	// Initialize Redis (optional)
	// ============================================
	var redisDB *db.RedisDB
	var treeCache service.TreeCache
	if cfg.RedisURL != "" {
		redisDB, err = db.NewRedisDB(ctx, cfg.RedisURL, logger.Component(log, "redis"))
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to connect to Redis (continuing without cache)")
		} else {
			defer redisDB.Close()
			treeCache = cache.NewTreeCache(redisDB, cfg.TreeCacheTTL, logger.Component(log, "tree_cache"))
			log.Info().Msg("⚡ Redis tree cache enabled")
		}
	}

	// ============================================
	// Initialize Email Service (optional)
	// ============================================
	var dispatcher service.Dispatcher
	if cfg.SMTPHost != "" {
		emailSvc := email.NewService(&email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPUseTLS,
		}, logger.Component(log, "email"))
		dispatcher = email.NewDispatcher(emailSvc)
		log.Info().Msg("📧 Email service initialized")
	} else {
		log.Warn().Msg("⚠️  Email not configured (SMTP_HOST not set)")
	}

	// ============================================
	// Initialize WebSocket Hub
	// ============================================
	hub := socket.NewHub(logger.Component(log, "socket"))
	go hub.Run()
	log.Info().Msg("🔌 WebSocket hub initialized")

	// ============================================
	// Initialize All Services
	// ============================================
	services := service.NewServices(&service.ServiceDeps{
		Config:     cfg,
		Repos:      repos,
		Dispatcher: dispatcher,
		Events:     hub,
		Cache:      treeCache,
		Logger:     log,
	})
	log.Info().Msg("✨ All services initialized")

	wsHandler := socket.NewHandler(hub, services.Auth, cfg.CORSAllowedOrigins)

	// ============================================
	// Seed Data
	// ============================================
	if cfg.Environment != "production" {
		log.Info().Msg("🌱 Seeding development data...")
		if err := seed.SeedData(ctx, repos, services, cfg.OpenGroveID, logger.Component(log, "seed")); err != nil {
			log.Fatal().Err(err).Msg("❌ Seeding failed")
		}
	} else if _, err := seed.EnsureOpenGrove(ctx, repos, cfg.OpenGroveID, time.Now().UTC()); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to provision the Open Grove")
	}

	// ============================================
	// Initialize Handlers
	// ============================================
	h := handlers.NewHandlers(services, logger.Component(log, "http"))

	// ============================================
	// Initialize Cron Scheduler
	// ============================================
	cronScheduler := cron.NewScheduler(services.Transfer, cfg.TransferSweepCron, logger.Component(log, "cron"))
	if err := cronScheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to start scheduler")
	}
	defer cronScheduler.Stop()

	// ============================================
	// Create Gin Router
	// ============================================
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.Component(log, "http")))

	// Configure CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.BillingSecretHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"timestamp":  time.Now(),
			"database":   getDatabaseStatus(c.Request.Context(), pg),
			"cache":      getCacheStatus(redisDB),
			"websocket":  "active",
			"ws_clients": hub.GetConnectedClientsCount(),
			"email":      getEmailStatus(cfg),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API routes
	api := r.Group("/api")
	api.GET("/ws", wsHandler.HandleWebSocket)
	h.RegisterRoutes(api, services.Auth, cfg.BillingWebhookSecret)

	// ============================================
	// Start Server
	// ============================================
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Server failed")
		}
	}()

	// ============================================
	// Graceful Shutdown
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("❌ Server forced to shutdown")
	}
	hub.Stop()

	log.Info().Msg("👋 Server exited")
}

func getDatabaseStatus(ctx context.Context, pg *db.PostgresDB) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pg.Pool.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "connected"
}

func getCacheStatus(redisDB *db.RedisDB) string {
	if redisDB != nil {
		return "connected"
	}
	return "disabled"
}

func getEmailStatus(cfg *config.Config) string {
	if cfg.SMTPHost != "" {
		return "configured"
	}
	return "disabled"
}
