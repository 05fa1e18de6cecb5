package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"gorm.io/datatypes"

	"mektep_backend/internal/appErrors"
	"mektep_backend/internal/dto"
	"mektep_backend/internal/logger"
	"mektep_backend/internal/models"
	"mektep_backend/internal/repositories"
)

// PushService доставляет уведомления по каналу, независимому от живого
// дуплексного соединения (приложение свернуто или закрыто).
// Доставка строго best-effort: к моменту отправки запись уже сохранена,
// поэтому ошибки здесь логируются, но не всплывают к вызывающему.
type PushService interface {
	Subscribe(req *dto.PushSubscriptionRequest) error
	PublicKey() string
	Send(userID, title, body, nType string, data map[string]any) error
}

// WebPushSender отправляет зашифрованный payload на платформенный endpoint.
// Вынесен в тип ради подмены в тестах.
type WebPushSender func(message []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)

type pushService struct {
	pushRepo   repositories.PushRepository
	keys       *models.PushKeyPair
	subscriber string
	ttl        int
	sender     WebPushSender
}

// NewPushService загружает (или один раз создает) VAPID-пару из БД.
// Пара переживает рестарты: перегенерация на каждом старте молча
// обесценила бы все сохраненные подписки.
func NewPushService(pushRepo repositories.PushRepository, subscriber string, ttl int) (PushService, error) {
	keys, err := pushRepo.LoadOrCreateKeyPair(func() (string, string, error) {
		return webpush.GenerateVAPIDKeys()
	})
	if err != nil {
		return nil, appErrors.ErrKeyPairUnavailable.WithError(err)
	}

	return &pushService{
		pushRepo:   pushRepo,
		keys:       keys,
		subscriber: subscriber,
		ttl:        ttl,
		sender:     webpush.SendNotification,
	}, nil
}

// PushTitle - заголовок платформенного уведомления по его типу.
func PushTitle(nType string) string {
	switch nType {
	case models.NotificationTypeGrade:
		return "New grade"
	case models.NotificationTypeAnnouncement:
		return "Announcement"
	case models.NotificationTypeAssignment:
		return "New assignment"
	case models.NotificationTypeAttendance:
		return "Attendance update"
	case models.NotificationTypeExcuse:
		return "Excuse update"
	default:
		return "Notification"
	}
}

func (s *pushService) PublicKey() string {
	return s.keys.PublicKey
}

func (s *pushService) Subscribe(req *dto.PushSubscriptionRequest) error {
	raw, err := json.Marshal(req.Subscription)
	if err != nil {
		return appErrors.ErrValidationFailed.WithError(fmt.Errorf("failed to marshal subscription: %w", err))
	}

	// Один endpoint на пользователя: старый дескриптор перезаписывается
	sub := &models.PushSubscription{
		UserID:           req.UserID,
		UserRole:         req.UserRole,
		SubscriptionData: datatypes.JSON(raw),
	}
	if err := s.pushRepo.UpsertSubscription(sub); err != nil {
		return appErrors.ErrPersistence.WithError(err)
	}

	logger.Info("push subscription registered", "user_id", req.UserID, "role", req.UserRole)
	return nil
}

// Send шифрует и отправляет {title, body, type, data} на endpoint
// пользователя. Возвращаемая ошибка предназначена для внутреннего учета:
// вызывающие обязаны ее логировать, а не пробрасывать наружу.
func (s *pushService) Send(userID, title, body, nType string, data map[string]any) error {
	record, err := s.pushRepo.FindSubscription(userID)
	if err != nil {
		if appErrors.Is(err, repositories.ErrSubscriptionNotFound) {
			return appErrors.ErrSubscriptionNotFound
		}
		return appErrors.ErrPersistence.WithError(err)
	}

	var sub webpush.Subscription
	if err := json.Unmarshal(record.SubscriptionData, &sub); err != nil {
		return appErrors.ErrDelivery.WithError(fmt.Errorf("corrupt subscription data: %w", err))
	}

	payload, err := json.Marshal(map[string]any{
		"title": title,
		"body":  body,
		"type":  nType,
		"data":  data,
	})
	if err != nil {
		return appErrors.ErrDelivery.WithError(err)
	}

	resp, err := s.sender(payload, &sub, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
		TTL:             s.ttl,
	})
	if err != nil {
		return appErrors.ErrDelivery.WithError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// Endpoint мертв - строку держать незачем, листинг остается
		// долговечным fallback'ом для этого пользователя
		if delErr := s.pushRepo.DeleteSubscription(userID); delErr != nil {
			logger.WithError(delErr).Warn("failed to delete expired push subscription", "user_id", userID)
		}
		return appErrors.ErrSubscriptionExpired
	case resp.StatusCode >= 400:
		return appErrors.ErrDelivery.WithDetails(fmt.Sprintf("push endpoint returned %d", resp.StatusCode))
	}

	return nil
}
