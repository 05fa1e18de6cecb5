package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mektep_backend/internal/dto"
	"mektep_backend/internal/logger"
	"mektep_backend/internal/services"
)

type PushHandler struct {
	*BaseHandler
	pushService services.PushService
}

func NewPushHandler(base *BaseHandler, pushService services.PushService) *PushHandler {
	return &PushHandler{
		BaseHandler: base,
		pushService: pushService,
	}
}

func (h *PushHandler) RegisterRoutes(r *gin.RouterGroup) {
	push := r.Group("/push")
	{
		push.GET("/vapid-public-key", h.GetPublicKey)
		push.POST("/send", h.SendPush)
	}
	r.POST("/push-subscription", h.Subscribe)
}

// GetPublicKey отдает публичный VAPID-ключ, которым клиент
// регистрирует endpoint у платформы.
func (h *PushHandler) GetPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": h.pushService.PublicKey()})
}

func (h *PushHandler) Subscribe(c *gin.Context) {
	var req dto.PushSubscriptionRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	if err := h.pushService.Subscribe(&req); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// SendPush - best-effort доставка. Ошибка доставки (мертвый endpoint,
// транспорт, авторизация) логируется и НЕ видна вызывающему: запись уже
// сохранена до этого шага, пользователь увидит ее через листинг.
func (h *PushHandler) SendPush(c *gin.Context) {
	var req dto.PushSendRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	if err := h.pushService.Send(req.UserID, services.PushTitle(req.Type), req.Message, req.Type, req.Data); err != nil {
		logger.DeliveryLog(req.UserID, req.Type, err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
