package repositories

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"mektep_backend/internal/models"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// Последние N уведомлений, которые отдает листинг получателя.
const RecipientListLimit = 50

type NotificationRepository interface {
	CreateNotification(notification *models.Notification) error
	FindNotificationByID(id uint64) (*models.Notification, error)
	// FindRecipientNotifications возвращает последние уведомления
	// пользователя (адресные + широковещательные его роли), новые первыми.
	FindRecipientNotifications(userID string, role string) ([]models.Notification, error)
	MarkAsRead(id uint64, readAt time.Time) (*models.Notification, error)
	// MarkAllAsRead помечает все непрочитанные строки пользователя.
	// Идемпотентна: пустое множество непрочитанных - не ошибка.
	MarkAllAsRead(userID string, readAt time.Time) (int64, error)
	CountUnread(userID string) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) CreateNotification(notification *models.Notification) error {
	if err := r.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) FindNotificationByID(id uint64) (*models.Notification, error) {
	var notification models.Notification
	err := r.db.First(&notification, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}
	return &notification, nil
}

func (r *notificationRepository) FindRecipientNotifications(userID string, role string) ([]models.Notification, error) {
	var notifications []models.Notification
	query := r.db.Where("recipient_id = ?", userID)
	if role != "" {
		query = query.Or("is_broadcast = ? AND recipient_role = ?", true, role)
	}
	err := query.
		Order("id DESC").
		Limit(RecipientListLimit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkAsRead(id uint64, readAt time.Time) (*models.Notification, error) {
	notification, err := r.FindNotificationByID(id)
	if err != nil {
		return nil, err
	}

	// Повторная пометка уже прочитанного - no-op
	if notification.IsRead {
		return notification, nil
	}

	notification.IsRead = true
	notification.ReadAt = &readAt
	if err := r.db.Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": true, "read_at": readAt}).Error; err != nil {
		return nil, fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return notification, nil
}

func (r *notificationRepository) MarkAllAsRead(userID string, readAt time.Time) (int64, error) {
	result := r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": readAt})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark all notifications as read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *notificationRepository) CountUnread(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
