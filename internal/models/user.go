package models

import (
	"time"
)

// User, APIKey and Session mirror the application schema at head. They are
// plain row types; the tables themselves are owned by the revisions in
// internal/migrations, never by AutoMigrate.

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"not null" json:"email"`
	CreatedAt time.Time `gorm:"->" json:"created_at"`
}

type APIKey struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Key          string    `gorm:"not null" json:"-"`
	TruncatedKey string    `gorm:"not null" json:"truncated_key"`
	UserID       uint      `gorm:"not null" json:"user_id"`
	CreatedAt    time.Time `gorm:"->" json:"created_at"`
	UpdatedAt    time.Time `gorm:"->" json:"updated_at"`
}

// TableName ensures consistent table naming
func (APIKey) TableName() string {
	return "api_keys"
}

type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null" json:"user_id"`
	Token     string    `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"->" json:"created_at"`
}

// Truncate returns the display form of an API key
func Truncate(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:4] + "..." + key[len(key)-4:]
}
