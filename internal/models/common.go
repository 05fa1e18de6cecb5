package models

import (
	"time"
)

// BaseModel - общие поля для таблиц с монотонным первичным ключом.
// Уведомлениям нужен строго возрастающий серверный id (bigserial),
// поэтому uuid здесь не используется.
type BaseModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
}
