package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"notify-service/internal/database"

	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey = "online_users"

	// offline records expire; online records live until the user disconnects
	offlineStatusTTL = 24 * time.Hour
)

// UserStatus is the mirrored presence record of one user
type UserStatus struct {
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

var ErrStatusNotFound = errors.New("user status not found")

// RedisService mirrors presence into redis for observers outside this
// process. The hub never reads it back for routing.
type RedisService struct {
	client *database.RedisClient
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{
		client: client,
	}
}

func statusKey(userID string) string {
	return fmt.Sprintf("user:%s:status", userID)
}

// =============================================================================
// User Status Management
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	return r.setStatus(ctx, userID, "online", 0, func(pipe redis.Pipeliner) {
		pipe.SAdd(ctx, onlineUsersKey, userID)
	})
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	return r.setStatus(ctx, userID, "offline", offlineStatusTTL, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, onlineUsersKey, userID)
	})
}

func (r *RedisService) setStatus(ctx context.Context, userID, status string, ttl time.Duration, membership func(redis.Pipeliner)) error {
	now := time.Now().Unix()
	pipe := r.client.GetClient().TxPipeline()

	membership(pipe)
	pipe.HSet(ctx, statusKey(userID), map[string]interface{}{
		"status":     status,
		"last_seen":  now,
		"updated_at": now,
	})
	if ttl > 0 {
		pipe.Expire(ctx, statusKey(userID), ttl)
	} else {
		pipe.Persist(ctx, statusKey(userID))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set user status", "userID", userID, "status", status, "error", err)
		return fmt.Errorf("set user %s %s: %w", userID, status, err)
	}

	slog.Debug("User status mirrored", "userID", userID, "status", status)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, onlineUsersKey, userID).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, onlineUsersKey).Result()
}

func (r *RedisService) GetUserStatus(ctx context.Context, userID string) (*UserStatus, error) {
	fields, err := r.client.GetClient().HGetAll(ctx, statusKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrStatusNotFound
	}

	lastSeen, _ := strconv.ParseInt(fields["last_seen"], 10, 64)
	return &UserStatus{
		Status:   fields["status"],
		LastSeen: time.Unix(lastSeen, 0),
	}, nil
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one hit on key and reports whether fewer than limit
// hits happened inside the sliding window.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < int64(limit), nil
}
