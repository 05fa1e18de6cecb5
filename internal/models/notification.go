package models

import (
	"time"

	"gorm.io/datatypes"
)

// Типы уведомлений
const (
	NotificationTypeGeneral      = "general"
	NotificationTypeGrade        = "grade"
	NotificationTypeAnnouncement = "announcement"
	NotificationTypeAssignment   = "assignment"
	NotificationTypeAttendance   = "attendance"
	NotificationTypeExcuse       = "excuse"
)

// IsValidNotificationType проверяет, что тип входит в список известных.
func IsValidNotificationType(t string) bool {
	switch t {
	case NotificationTypeGeneral, NotificationTypeGrade, NotificationTypeAnnouncement,
		NotificationTypeAssignment, NotificationTypeAttendance, NotificationTypeExcuse:
		return true
	}
	return false
}

// Notification - долговечная запись уведомления.
// Инвариант: если IsBroadcast=true, RecipientID=nil и RecipientRole задан;
// иначе RecipientID задан (RecipientRole может дублироваться для учета).
// Запись мутируется только флагами IsRead/ReadAt и никогда не удаляется
// этой подсистемой.
type Notification struct {
	BaseModel
	RecipientID   *string        `gorm:"index" json:"recipient_id"`
	RecipientRole *string        `gorm:"index" json:"recipient_role"`
	Message       string         `gorm:"not null" json:"message"`
	Type          string         `gorm:"not null;default:general" json:"type"`
	Data          datatypes.JSON `gorm:"type:jsonb" json:"data"`
	IsRead        bool           `gorm:"default:false;index" json:"is_read"`
	IsBroadcast   bool           `gorm:"default:false" json:"is_broadcast"`
	ReadAt        *time.Time     `json:"read_at"`
}

// PushSubscription - push-endpoint пользователя.
// Не больше одной строки на user_id: новая регистрация перезаписывает
// старую (last-write-wins, endpoint принадлежит только пользователю).
type PushSubscription struct {
	UserID           string         `gorm:"primaryKey" json:"user_id"`
	UserRole         string         `gorm:"not null;index" json:"user_role"`
	SubscriptionData datatypes.JSON `gorm:"type:jsonb;not null" json:"subscription_data"`
	CreatedAt        time.Time      `gorm:"default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// PushKeyPair - VAPID-пара, которой подписываются все исходящие push.
// Хранится в БД: перегенерация при каждом рестарте молча ломает все
// существующие подписки, поэтому пара создается один раз и переживает
// рестарты процесса.
type PushKeyPair struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PublicKey  string    `gorm:"not null" json:"public_key"`
	PrivateKey string    `gorm:"not null" json:"-"`
	CreatedAt  time.Time `gorm:"default:now()" json:"created_at"`
}

func (PushKeyPair) TableName() string { return "push_keys" }
