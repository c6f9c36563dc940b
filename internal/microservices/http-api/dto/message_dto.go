package dto

import (
	"time"

	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/shared"
)

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=8000"`
}

// ListMessagesQuery binds ?limit= and ?format= on the history endpoint.
type ListMessagesQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Format string `form:"format" binding:"omitempty,oneof=text html"`
}

type MessageResponse struct {
	ID         int64                `json:"id"`
	ChatroomID int64                `json:"chatroom_id"`
	UserID     int64                `json:"user_id"`
	Content    string               `json:"content"`
	HTML       string               `json:"html,omitempty"`
	Role       shared.Role          `json:"role"`
	Status     shared.MessageStatus `json:"status"`
	ReplyToID  *int64               `json:"reply_to_id,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

func NewMessageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		ChatroomID: m.ChatroomID,
		UserID:     m.UserID,
		Content:    m.Content,
		Role:       m.Role,
		Status:     m.Status,
		ReplyToID:  m.ReplyToID,
		CreatedAt:  m.CreatedAt,
	}
}

// DispatchFailedResponse is returned with 503 when the message was stored but generation could not be queued.
type DispatchFailedResponse struct {
	Error   string          `json:"error"`
	Status  string          `json:"status"`
	Message MessageResponse `json:"message"`
}
