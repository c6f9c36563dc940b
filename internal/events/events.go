package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"geminichat/internal/microservices/http-api/models"
)

// channelPattern matches every chatroom's event channel.
const channelPattern = "chatroom:*:events"

type EventType string

const (
	// EventReply is published when an assistant message (reply or failure marker) is stored.
	EventReply EventType = "reply"
)

// Event is the payload pushed to live subscribers of a chatroom.
type Event struct {
	Type       EventType      `json:"type"`
	ChatroomID int64          `json:"chatroom_id"`
	Message    models.Message `json:"message"`
	SentAt     time.Time      `json:"sent_at"`
}

func Channel(chatroomID int64) string {
	return fmt.Sprintf("chatroom:%d:events", chatroomID)
}

// ChatroomFromChannel extracts the chatroom id from a channel name produced by Channel.
func ChatroomFromChannel(channel string) (int64, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "chatroom" || parts[2] != "events" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	return id, err == nil
}

type Publisher interface {
	PublishReply(ctx context.Context, msg *models.Message) error
}

type RedisPublisher struct {
	client redis.Cmdable
}

func NewRedisPublisher(client redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) PublishReply(ctx context.Context, msg *models.Message) error {
	raw, err := json.Marshal(Event{
		Type:       EventReply,
		ChatroomID: msg.ChatroomID,
		Message:    *msg,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(msg.ChatroomID), raw).Err()
}

// Subscribe listens on every chatroom channel. Close the returned PubSub to stop.
func Subscribe(ctx context.Context, client *redis.Client) *redis.PubSub {
	return client.PSubscribe(ctx, channelPattern)
}

func Decode(payload string) (Event, error) {
	var ev Event
	err := json.Unmarshal([]byte(payload), &ev)
	return ev, err
}
