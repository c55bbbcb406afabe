package postgres

import (
	"context"
	"time"

	"notify-service/internal/models"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *NotificationRepository) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepository) GetUserNotifications(ctx context.Context, userID string, query models.NotificationQuery) ([]models.Notification, error) {
	var notifications []models.Notification
	tx := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if query.UnreadOnly {
		tx = tx.Where("read = ?", false)
	}
	if query.Sort != "" {
		tx = tx.Order(query.Sort)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}
	if query.Skip > 0 {
		tx = tx.Offset(query.Skip)
	}
	err := tx.Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]any{"read": true, "read_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]any{"read": true, "read_at": time.Now()})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepository) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotificationNotFound
	}
	return nil
}
