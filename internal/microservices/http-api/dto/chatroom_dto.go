package dto

import (
	"time"

	"geminichat/internal/microservices/http-api/models"
)

type CreateChatroomRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

type ChatroomResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func NewChatroomResponse(r *models.Chatroom) ChatroomResponse {
	return ChatroomResponse{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
}

func NewChatroomList(rooms []models.Chatroom) []ChatroomResponse {
	out := make([]ChatroomResponse, 0, len(rooms))
	for i := range rooms {
		out = append(out, NewChatroomResponse(&rooms[i]))
	}
	return out
}
