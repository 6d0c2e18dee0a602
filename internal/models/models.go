package models

import (
	"time"

	"gorm.io/datatypes"
)

// Entry represents a persisted form submission
type Entry struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Title     string            `gorm:"type:varchar(255)" json:"title"`
	FormID    string            `gorm:"type:varchar(255);index;not null" json:"form_id"`
	FormType  string            `gorm:"type:varchar(20);not null" json:"form_type"`
	Fields    datatypes.JSONMap `json:"fields"` // Sanitized field values keyed by field id
	Email     string            `gorm:"type:varchar(255);index" json:"email"`
	IPHash    string            `gorm:"type:varchar(64)" json:"ip_hash"`
	ESPSynced bool              `gorm:"default:false" json:"esp_synced"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (Entry) TableName() string {
	return "entries"
}

// Page represents stored page content carrying form blocks
type Page struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Status    string    `gorm:"type:varchar(20);default:'publish';index" json:"status"`
	Content   string    `gorm:"type:text" json:"content"` // Block-delimited markup
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Page) TableName() string {
	return "pages"
}

// FormRecord is a registered form definition keyed by form id
type FormRecord struct {
	FormID         string         `gorm:"primaryKey;type:varchar(255)" json:"form_id"`
	FormType       string         `gorm:"type:varchar(20);not null" json:"form_type"`
	Fields         datatypes.JSON `json:"fields"` // JSON array of field definitions
	RecipientEmail string         `gorm:"type:varchar(255)" json:"recipient_email"`
	EmailSubject   string         `gorm:"type:varchar(255)" json:"email_subject"`
	ESPProvider    string         `gorm:"type:varchar(50)" json:"esp_provider"`
	ESPListID      string         `gorm:"type:varchar(255)" json:"esp_list_id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FormRecord) TableName() string {
	return "forms"
}

// RateLimitCounter is a fixed-window submission counter per hashed client IP
type RateLimitCounter struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (RateLimitCounter) TableName() string {
	return "rate_limit_counters"
}

// SystemSetting stores persisted plugin settings as JSON values
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
