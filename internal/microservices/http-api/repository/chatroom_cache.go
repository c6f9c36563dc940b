package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"geminichat/internal/microservices/http-api/models"
)

// ChatroomCache keeps each user's chatroom list in Redis for a short TTL.
type ChatroomCache interface {
	Get(ctx context.Context, userID int64) ([]models.Chatroom, bool, error)
	Set(ctx context.Context, userID int64, rooms []models.Chatroom) error
	Invalidate(ctx context.Context, userID int64) error
}

type chatroomRedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewChatroomCache returns a Redis-backed cache. A nil client gives a cache that always misses.
func NewChatroomCache(client redis.Cmdable, ttl time.Duration) ChatroomCache {
	return &chatroomRedisCache{client: client, ttl: ttl}
}

func chatroomListKey(userID int64) string {
	return fmt.Sprintf("chatrooms:%d", userID)
}

func (c *chatroomRedisCache) Get(ctx context.Context, userID int64) ([]models.Chatroom, bool, error) {
	if c.client == nil || c.ttl <= 0 {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, chatroomListKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rooms []models.Chatroom
	if err := json.Unmarshal(raw, &rooms); err != nil {
		// a corrupt entry is treated as a miss and overwritten on the next Set
		return nil, false, nil
	}
	return rooms, true, nil
}

func (c *chatroomRedisCache) Set(ctx context.Context, userID int64, rooms []models.Chatroom) error {
	if c.client == nil || c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(rooms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, chatroomListKey(userID), raw, c.ttl).Err()
}

func (c *chatroomRedisCache) Invalidate(ctx context.Context, userID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, chatroomListKey(userID)).Err()
}
