package models

import (
	"time"

	"geminichat/internal/shared"
)

// Message rows are ordered inside a chatroom by (created_at, id).
// Assistant rows point at the user message they answer through ReplyToID, which is unique.
type Message struct {
	ID         int64                `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatroomID int64                `gorm:"not null;index:idx_messages_chatroom_created,priority:1" json:"chatroom_id"`
	UserID     int64                `gorm:"not null" json:"user_id"`
	Content    string               `gorm:"type:text;not null" json:"content"`
	Role       shared.Role          `gorm:"size:16;not null" json:"role"`
	Status     shared.MessageStatus `gorm:"size:16;not null;default:complete" json:"status"`
	ReplyToID  *int64               `gorm:"uniqueIndex:idx_messages_reply_to" json:"reply_to_id,omitempty"`
	CreatedAt  time.Time            `gorm:"not null;index:idx_messages_chatroom_created,priority:2" json:"created_at"`

	Chatroom *Chatroom `gorm:"foreignKey:ChatroomID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}
