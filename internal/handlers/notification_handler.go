package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mektep_backend/internal/dto"
	"mektep_backend/internal/services"
	"mektep_backend/ws"
)

type NotificationHandler struct {
	*BaseHandler
	notificationService services.NotificationService
	registry            *ws.Manager
}

func NewNotificationHandler(base *BaseHandler, notificationService services.NotificationService, registry *ws.Manager) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         base,
		notificationService: notificationService,
		registry:            registry,
	}
}

func (h *NotificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("/status", h.GetStatus)
		notifications.GET("/user/:userId", h.GetUserNotifications)
		notifications.POST("/send", h.SendNotification)
		notifications.PUT("/:notificationId/read", h.MarkAsRead)
		notifications.PUT("/read-all", h.MarkAllAsRead)
	}
}

// GetStatus возвращает количество живых сессий по ролям.
func (h *NotificationHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": h.registry.ClientCount(),
		"byRole":      h.registry.CountsByRole(),
	})
}

// GetUserNotifications отдает последние 50 уведомлений получателя,
// новые первыми. Это долговечный fallback: пропущенная живая доставка
// компенсируется опросом этого листинга.
func (h *NotificationHandler) GetUserNotifications(c *gin.Context) {
	userID := c.Param("userId")
	role := c.Query("role")

	response, err := h.notificationService.RecipientNotifications(userID, role)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// SendNotification - awaited-фаза двухфазной клиентской записи:
// валидация + сохранение. Живую доставку инициирует вторая фаза
// (reroute-подсказка по сокету), полный payload по сети не дублируется.
func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req dto.SubmitNotificationRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	record, err := h.notificationService.Persist(&req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("notificationId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	record, svcErr := h.notificationService.MarkRead(id)
	if svcErr != nil {
		h.HandleServiceError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read", "notification": record})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	var req dto.MarkAllReadRequest
	if !h.BindAndValidateJSON(c, &req) {
		return
	}

	updated, err := h.notificationService.MarkAllRead(req.UserID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": updated})
}
