package services

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"mektep_backend/internal/appErrors"
	"mektep_backend/internal/dto"
	"mektep_backend/internal/logger"
	"mektep_backend/internal/models"
	"mektep_backend/internal/repositories"
	"mektep_backend/ws"
)

// SessionRegistry - живой индекс сессий (комнатный роутер).
// Реестр - одноразовый кэш: его потеря при рестарте безопасна, клиенты
// заново входят в комнаты при переподключении.
type SessionRegistry interface {
	Dispatch(target ws.Target, event ws.Event)
	Broadcast(event ws.Event)
	IsUserOnline(userID string) bool
}

type NotificationService interface {
	// Submit валидирует запрос, сохраняет запись и на успехе роутит
	// событие в живые сессии (persist-then-route). Запись возвращается
	// независимо от того, получила ли ее хоть одна сессия.
	Submit(req *dto.SubmitNotificationRequest) (*dto.NotificationResponse, error)
	// Persist - первая фаза двухфазной клиентской записи: только
	// валидация + сохранение, без роутинга. Роутинг придет второй
	// фазой как Reroute-подсказка по сокету.
	Persist(req *dto.SubmitNotificationRequest) (*dto.NotificationResponse, error)
	// Reroute роутит уже сохраненную запись по ее идентификатору.
	Reroute(hint *dto.RerouteHint) error
	MarkRead(id uint64) (*dto.NotificationResponse, error)
	// MarkAllRead идемпотентна: повторный вызов на пустом множестве
	// непрочитанных - не ошибка и не событие изменения состояния.
	MarkAllRead(userID string) (int64, error)
	RecipientNotifications(userID string, role string) (*dto.NotificationListResponse, error)
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	pushService      PushService
	registry         SessionRegistry
}

func NewNotificationService(
	notificationRepo repositories.NotificationRepository,
	pushService PushService,
	registry SessionRegistry,
) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		pushService:      pushService,
		registry:         registry,
	}
}

// ---------------- Отправка ----------------

func (s *notificationService) Submit(req *dto.SubmitNotificationRequest) (*dto.NotificationResponse, error) {
	record, err := s.Persist(req)
	if err != nil {
		// Сохранение не удалось - роутинг не выполняется
		return nil, err
	}

	s.route(record)
	return record, nil
}

func (s *notificationService) Persist(req *dto.SubmitNotificationRequest) (*dto.NotificationResponse, error) {
	notification, err := s.buildNotification(req)
	if err != nil {
		return nil, err
	}

	if err := s.notificationRepo.CreateNotification(notification); err != nil {
		return nil, appErrors.ErrPersistence.WithError(err)
	}

	resp := dto.ToNotificationResponse(notification)
	return &resp, nil
}

func (s *notificationService) Reroute(hint *dto.RerouteHint) error {
	if hint.NotificationID == 0 {
		return appErrors.ErrValidationFailed.WithDetails("notificationId is required")
	}

	notification, err := s.notificationRepo.FindNotificationByID(hint.NotificationID)
	if err != nil {
		if appErrors.Is(err, repositories.ErrNotificationNotFound) {
			return appErrors.ErrNotificationNotFound
		}
		return appErrors.ErrPersistence.WithError(err)
	}

	resp := dto.ToNotificationResponse(notification)
	s.route(&resp)
	return nil
}

// buildNotification валидирует запрос и собирает модель.
// Инвариант получателя: ровно одно из {RecipientID, Role}.
func (s *notificationService) buildNotification(req *dto.SubmitNotificationRequest) (*models.Notification, error) {
	if req.Message == "" {
		return nil, appErrors.ErrMessageRequired
	}
	if (req.RecipientID == "") == (req.Role == "") {
		return nil, appErrors.ErrInvalidRecipient
	}

	nType := req.Type
	if nType == "" {
		nType = models.NotificationTypeGeneral
	}
	if !models.IsValidNotificationType(nType) {
		return nil, appErrors.ErrInvalidType.WithDetails(req.Type)
	}

	var payload datatypes.JSON
	if req.Data != nil {
		raw, err := json.Marshal(req.Data)
		if err != nil {
			return nil, appErrors.ErrValidationFailed.WithError(fmt.Errorf("failed to marshal data: %w", err))
		}
		payload = datatypes.JSON(raw)
	}

	notification := &models.Notification{
		Message: req.Message,
		Type:    nType,
		Data:    payload,
	}

	if req.Role != "" {
		// Широковещательное: recipient_id пуст, роль обязательна
		role := req.Role
		notification.RecipientRole = &role
		notification.IsBroadcast = true
	} else {
		recipientID := req.RecipientID
		notification.RecipientID = &recipientID
		if req.RecipientRole != "" {
			// Роль при адресной доставке хранится только для учета
			role := req.RecipientRole
			notification.RecipientRole = &role
		}
	}

	return notification, nil
}

// route доставляет new-notification в комнаты; для адресного получателя
// без живых сессий уходит best-effort push. Ошибки доставки здесь не
// поднимаются: запись уже сохранена, получатель увидит ее через листинг.
func (s *notificationService) route(record *dto.NotificationResponse) {
	event := ws.Event{Event: ws.EventNewNotification, Data: record}

	if record.IsBroadcast {
		s.registry.Dispatch(ws.RoleBroadcast(*record.RecipientRole), event)
		return
	}

	userID := *record.RecipientID
	s.registry.Dispatch(ws.Direct(userID), event)

	if s.pushService != nil && !s.registry.IsUserOnline(userID) {
		var data map[string]any
		if len(record.Data) > 0 {
			_ = json.Unmarshal(record.Data, &data)
		}
		err := s.pushService.Send(userID, PushTitle(record.Type), record.Message, record.Type, data)
		logger.DeliveryLog(userID, record.Type, err)
	}
}

// ---------------- Read-статус ----------------

func (s *notificationService) MarkRead(id uint64) (*dto.NotificationResponse, error) {
	notification, err := s.notificationRepo.MarkAsRead(id, time.Now().UTC())
	if err != nil {
		if appErrors.Is(err, repositories.ErrNotificationNotFound) {
			return nil, appErrors.ErrNotificationNotFound
		}
		return nil, appErrors.ErrPersistence.WithError(err)
	}

	// notification-updated уходит только в комнату владельца, а не всем
	// подключенным: глобальный broadcast был бы расточителен при росте
	event := ws.Event{Event: ws.EventNotificationUpdated, Data: dto.NotificationUpdatedEvent{
		NotificationID: notification.ID,
		IsRead:         notification.IsRead,
		ReadAt:         notification.ReadAt,
	}}
	if notification.RecipientID != nil {
		s.registry.Dispatch(ws.Direct(*notification.RecipientID), event)
	} else if notification.RecipientRole != nil {
		s.registry.Dispatch(ws.RoleBroadcast(*notification.RecipientRole), event)
	}

	resp := dto.ToNotificationResponse(notification)
	return &resp, nil
}

func (s *notificationService) MarkAllRead(userID string) (int64, error) {
	if userID == "" {
		return 0, appErrors.ErrValidationFailed.WithDetails("userId is required")
	}

	updated, err := s.notificationRepo.MarkAllAsRead(userID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.ErrPersistence.WithError(err)
	}

	// Событие только сессиям самого пользователя
	s.registry.Dispatch(ws.Direct(userID), ws.Event{
		Event: ws.EventAllRead,
		Data:  map[string]any{"userId": userID},
	})

	return updated, nil
}

// ---------------- Листинг ----------------

func (s *notificationService) RecipientNotifications(userID string, role string) (*dto.NotificationListResponse, error) {
	if userID == "" {
		return nil, appErrors.ErrValidationFailed.WithDetails("userId is required")
	}

	notifications, err := s.notificationRepo.FindRecipientNotifications(userID, role)
	if err != nil {
		return nil, appErrors.ErrPersistence.WithError(err)
	}

	unread, err := s.notificationRepo.CountUnread(userID)
	if err != nil {
		return nil, appErrors.ErrPersistence.WithError(err)
	}

	return &dto.NotificationListResponse{
		Notifications: dto.ToNotificationResponses(notifications),
		UnreadCount:   unread,
	}, nil
}

