package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mektep_backend/internal/handlers"
	"mektep_backend/internal/logger"
	"mektep_backend/ws"
)

// AppHandlers - готовые хэндлеры приложения.
type AppHandlers struct {
	NotificationHandler *handlers.NotificationHandler
	PushHandler         *handlers.PushHandler
}

// RegisterRoutes регистрирует все HTTP и WebSocket маршруты.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *AppHandlers,
	wsHandler *ws.Handler,
) {
	// Liveness: статус, число живых сессий, аптайм
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": wsHandler.Manager.ClientCount(),
			"uptime":      wsHandler.Manager.Uptime().String(),
		})
	})

	api := ginRouter.Group("/api")
	{
		appHandlers.NotificationHandler.RegisterRoutes(api)
		appHandlers.PushHandler.RegisterRoutes(api)
	}

	SetupWebSocketRoutes(ginRouter, wsHandler)
	logger.Info("routes registered")
}
