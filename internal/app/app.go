package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mektep_backend/internal/config"
	"mektep_backend/internal/handlers"
	"mektep_backend/internal/logger"
	"mektep_backend/internal/middleware"
	"mektep_backend/internal/models"
	"mektep_backend/internal/repositories"
	"mektep_backend/internal/routes"
	"mektep_backend/internal/services"
	"mektep_backend/internal/validator"
	"mektep_backend/ws"
)

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	logger.Info("Connecting to database...")
	gormDB, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to GORM", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	logger.Info("Database connected")

	if err := gormDB.AutoMigrate(
		&models.Notification{},
		&models.PushSubscription{},
		&models.PushKeyPair{},
	); err != nil {
		logger.Fatal("Failed to migrate schema", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ginRouter, wsManager := SetupRouter(cfg, gormDB)
	go wsManager.Run(ctx)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    address,
		Handler: ginRouter,
	}

	go func() {
		logger.Info(fmt.Sprintf("Server starting on %s", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

// SetupRouter собирает весь граф зависимостей и возвращает роутер
// вместе с реестром сессий (реестр запускает вызывающий).
func SetupRouter(cfg *config.Config, gormDB *gorm.DB) (*gin.Engine, *ws.Manager) {
	// Репозитории
	notificationRepo := repositories.NewNotificationRepository(gormDB)
	pushRepo := repositories.NewPushRepository(gormDB)

	// Реестр сессий
	wsManager := ws.NewManager()

	// Сервисы
	pushService, err := services.NewPushService(pushRepo, cfg.Push.Subscriber, cfg.Push.TTL)
	if err != nil {
		logger.Fatal("Failed to initialize push service", "error", err)
	}
	notificationService := services.NewNotificationService(notificationRepo, pushService, wsManager)

	// Хэндлеры
	v := validator.New()
	base := handlers.NewBaseHandler(v)
	appHandlers := &routes.AppHandlers{
		NotificationHandler: handlers.NewNotificationHandler(base, notificationService, wsManager),
		PushHandler:         handlers.NewPushHandler(base, pushService),
	}
	wsHandler := ws.NewHandler(wsManager, notificationService)

	ginRouter := initializeGinRouter(cfg)
	routes.RegisterRoutes(ginRouter, appHandlers, wsHandler)

	return ginRouter, wsManager
}

func initializeGinRouter(cfg *config.Config) *gin.Engine {
	if cfg.Server.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(middleware.RequestIDMiddleware())
	ginRouter.Use(middleware.LoggingMiddleware())
	ginRouter.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	return ginRouter
}
