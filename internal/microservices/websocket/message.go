package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"geminichat/internal/events"
	"geminichat/internal/microservices/http-api/models"
)

// Frames pushed to live clients

type MessageType string

const (
	TypeReply  MessageType = "reply"  // an assistant reply or failure marker was stored
	TypeSystem MessageType = "system" // connection lifecycle notices
)

type Message struct {
	Type       MessageType     `json:"type"`
	ChatroomID int64           `json:"chatroom_id"`
	Message    *models.Message `json:"message,omitempty"`
	Content    string          `json:"content,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func NewReplyMessage(ev events.Event) *Message {
	msg := ev.Message
	return &Message{
		Type:       TypeReply,
		ChatroomID: ev.ChatroomID,
		Message:    &msg,
		Timestamp:  ev.SentAt,
	}
}

func NewSystemMessage(chatroomID int64, content string) *Message {
	return &Message{
		Type:       TypeSystem,
		ChatroomID: chatroomID,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON: marshal Message struct to JSON
func (m *Message) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("live_frame_marshal_failed", "error", err)
		return nil, err
	}
	return data, nil
}
