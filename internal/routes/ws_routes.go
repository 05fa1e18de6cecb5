package routes

import (
	"github.com/gin-gonic/gin"

	"mektep_backend/ws"
)

// SetupWebSocketRoutes регистрирует endpoint дуплексного канала.
// Аутентификацию обеспечивает вызывающий слой; подсистема уведомлений
// принимает идентичность из query или первого join-room.
func SetupWebSocketRoutes(r *gin.Engine, wsHandler *ws.Handler) {
	wsGroup := r.Group("/ws")
	{
		wsGroup.GET("", wsHandler.ServeWS)
	}
}
