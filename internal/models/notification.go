package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

/** --------------------ENTITIES-------------------- */
// Notification is a persisted notification owned by a single user
type Notification struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string         `gorm:"not null;index;type:varchar(255)" json:"userId"`
	Type      string         `gorm:"not null;type:varchar(64)" json:"type"`
	Title     string         `gorm:"not null;type:varchar(255)" json:"title"`
	Body      string         `gorm:"type:text" json:"body,omitempty"`
	Link      string         `gorm:"type:varchar(512)" json:"link,omitempty"`
	Read      bool           `gorm:"not null;default:false;index" json:"read"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

/** --------------------DTOs-------------------- */
// NotificationQuery selects a page of a user's notifications
type NotificationQuery struct {
	Limit      int
	Skip       int
	Sort       string
	UnreadOnly bool
}

// NotificationCreatedEvent is published on the message bus when another
// service persists a notification
type NotificationCreatedEvent struct {
	UserID       string       `json:"userId"`
	Notification Notification `json:"notification"`
}
