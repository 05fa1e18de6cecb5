package dto

import (
	"time"

	"gorm.io/datatypes"

	"mektep_backend/internal/models"
)

// SubmitNotificationRequest - запрос на отправку уведомления.
// Ровно одно из полей {RecipientID, Role} должно быть заполнено:
// RecipientID - адресная доставка, Role - рассылка на всю роль.
// RecipientRole при адресной доставке опционален и хранится для учета.
type SubmitNotificationRequest struct {
	RecipientID   string         `json:"recipientId"`
	RecipientRole string         `json:"recipientRole"`
	Role          string         `json:"role"`
	Message       string         `json:"message" validate:"required"`
	Type          string         `json:"type" validate:"notification-type"`
	Data          map[string]any `json:"data"`
}

// RerouteHint - облегченная real-time подсказка второй фазы записи:
// полезная нагрузка уже сохранена по HTTP, по сокету передаются только
// идентификаторы, чтобы сервер мог перенаправить событие в комнаты.
type RerouteHint struct {
	NotificationID uint64 `json:"notificationId"`
	RecipientID    string `json:"recipientId,omitempty"`
	RecipientRole  string `json:"recipientRole,omitempty"`
}

// JoinRoomRequest - заявка сессии на вход в комнаты пользователя и роли.
type JoinRoomRequest struct {
	UserID   string `json:"userId" validate:"required"`
	UserRole string `json:"userRole" validate:"required"`
}

// MarkReadRequest - пометить одно уведомление прочитанным.
type MarkReadRequest struct {
	NotificationID uint64 `json:"notificationId" validate:"required"`
}

// MarkAllReadRequest - пометить все уведомления пользователя прочитанными.
type MarkAllReadRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// NotificationResponse - запись уведомления наружу.
type NotificationResponse struct {
	ID            uint64         `json:"id"`
	RecipientID   *string        `json:"recipient_id"`
	RecipientRole *string        `json:"recipient_role"`
	Message       string         `json:"message"`
	Type          string         `json:"type"`
	Data          datatypes.JSON `json:"data,omitempty"`
	IsRead        bool           `json:"is_read"`
	IsBroadcast   bool           `json:"is_broadcast"`
	CreatedAt     time.Time      `json:"created_at"`
	ReadAt        *time.Time     `json:"read_at"`
}

// NotificationListResponse - последние уведомления получателя (новые первыми).
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int64                  `json:"unread_count"`
}

// NotificationUpdatedEvent - событие смены read-статуса.
type NotificationUpdatedEvent struct {
	NotificationID uint64     `json:"notificationId"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at"`
}

// NotificationErrorEvent - ошибка операции, видимая сессии-отправителю.
type NotificationErrorEvent struct {
	Message string `json:"message"`
}

// PushSubscriptionRequest - регистрация push-endpoint'а.
// Subscription - непрозрачный дескриптор платформы (endpoint + ключи).
type PushSubscriptionRequest struct {
	UserID       string         `json:"userId" validate:"required"`
	UserRole     string         `json:"userRole" validate:"required"`
	Subscription map[string]any `json:"subscription" validate:"required"`
}

// PushSendRequest - запрос на best-effort доставку через платформенный push.
type PushSendRequest struct {
	UserID  string         `json:"userId" validate:"required"`
	Message string         `json:"message" validate:"required"`
	Type    string         `json:"type" validate:"notification-type"`
	Data    map[string]any `json:"data"`
}

// ToNotificationResponse маппит модель в ответ.
func ToNotificationResponse(n *models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            n.ID,
		RecipientID:   n.RecipientID,
		RecipientRole: n.RecipientRole,
		Message:       n.Message,
		Type:          n.Type,
		Data:          n.Data,
		IsRead:        n.IsRead,
		IsBroadcast:   n.IsBroadcast,
		CreatedAt:     n.CreatedAt,
		ReadAt:        n.ReadAt,
	}
}

// ToNotificationResponses маппит срез моделей в ответы.
func ToNotificationResponses(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for i := range items {
		out = append(out, ToNotificationResponse(&items[i]))
	}
	return out
}
