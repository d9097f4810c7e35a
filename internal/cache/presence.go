package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrPresenceNotFound is returned when a client has no presence entry in a room.
var ErrPresenceNotFound = errors.New("presence not found")

// presenceTTL bounds how long a room's presence hash survives a crashed process.
// Live traffic refreshes it on every write.
const presenceTTL = 12 * time.Hour

// PresenceRegistry tracks which (role, identity) pairs are currently joined to a
// session room and each member's last self-reported slide index.
type PresenceRegistry interface {
	Join(ctx context.Context, presence *models.StudentPresence) error
	Leave(ctx context.Context, sessionID uint, userID string) error
	UpdateSlide(ctx context.Context, sessionID uint, userID string, slideIndex int) error
	Get(ctx context.Context, sessionID uint, userID string) (*models.StudentPresence, error)
	List(ctx context.Context, sessionID uint) ([]*models.StudentPresence, error)
	Clear(ctx context.Context, sessionID uint) error
}

type redisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) PresenceRegistry {
	return &redisPresence{client: client}
}

func presenceKey(sessionID uint) string {
	return fmt.Sprintf("session:%d:presence", sessionID)
}

func (r *redisPresence) Join(ctx context.Context, presence *models.StudentPresence) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(presence.SessionID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, presence.StudentID, data)
	pipe.Expire(ctx, key, presenceTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisPresence) Leave(ctx context.Context, sessionID uint, userID string) error {
	return r.client.HDel(ctx, presenceKey(sessionID), userID).Err()
}

func (r *redisPresence) UpdateSlide(ctx context.Context, sessionID uint, userID string, slideIndex int) error {
	presence, err := r.Get(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	presence.CurrentSlideIndex = slideIndex
	return r.Join(ctx, presence)
}

func (r *redisPresence) Get(ctx context.Context, sessionID uint, userID string) (*models.StudentPresence, error) {
	data, err := r.client.HGet(ctx, presenceKey(sessionID), userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPresenceNotFound
		}
		return nil, err
	}

	var presence models.StudentPresence
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return &presence, nil
}

func (r *redisPresence) List(ctx context.Context, sessionID uint) ([]*models.StudentPresence, error) {
	entries, err := r.client.HGetAll(ctx, presenceKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}

	presences := make([]*models.StudentPresence, 0, len(entries))
	for _, raw := range entries {
		var presence models.StudentPresence
		if err := json.Unmarshal([]byte(raw), &presence); err != nil {
			continue
		}
		presences = append(presences, &presence)
	}
	return presences, nil
}

func (r *redisPresence) Clear(ctx context.Context, sessionID uint) error {
	return r.client.Del(ctx, presenceKey(sessionID)).Err()
}
