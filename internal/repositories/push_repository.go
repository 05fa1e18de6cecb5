package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mektep_backend/internal/models"
)

var (
	ErrSubscriptionNotFound = errors.New("push subscription not found")
)

type PushRepository interface {
	// UpsertSubscription сохраняет endpoint по ключу user_id.
	// Повторная регистрация перезаписывает старый endpoint (last-write-wins).
	UpsertSubscription(sub *models.PushSubscription) error
	FindSubscription(userID string) (*models.PushSubscription, error)
	// DeleteSubscription убирает мертвый endpoint (404/410 от платформы).
	DeleteSubscription(userID string) error

	// LoadOrCreateKeyPair возвращает единственную VAPID-пару процесса,
	// создавая ее через generate при первом запуске.
	LoadOrCreateKeyPair(generate func() (privateKey, publicKey string, err error)) (*models.PushKeyPair, error)
}

type pushRepository struct {
	db *gorm.DB
}

func NewPushRepository(db *gorm.DB) PushRepository {
	return &pushRepository{db: db}
}

func (r *pushRepository) UpsertSubscription(sub *models.PushSubscription) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_role", "subscription_data", "updated_at"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}
	return nil
}

func (r *pushRepository) FindSubscription(userID string) (*models.PushSubscription, error) {
	var sub models.PushSubscription
	err := r.db.First(&sub, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to find push subscription: %w", err)
	}
	return &sub, nil
}

func (r *pushRepository) DeleteSubscription(userID string) error {
	if err := r.db.Delete(&models.PushSubscription{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

func (r *pushRepository) LoadOrCreateKeyPair(generate func() (string, string, error)) (*models.PushKeyPair, error) {
	var pair models.PushKeyPair
	err := r.db.Order("id ASC").First(&pair).Error
	if err == nil {
		return &pair, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load push key pair: %w", err)
	}

	privateKey, publicKey, err := generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate push key pair: %w", err)
	}

	pair = models.PushKeyPair{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}
	if err := r.db.Create(&pair).Error; err != nil {
		return nil, fmt.Errorf("failed to persist push key pair: %w", err)
	}
	return &pair, nil
}
