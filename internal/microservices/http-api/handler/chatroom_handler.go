package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"geminichat/internal/microservices/http-api/dto"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/sanitize"
	"geminichat/internal/shared"
)

type ChatroomHandler struct {
	chatrooms service.ChatroomService
	messages  service.MessageService
	render    *sanitize.Policy
}

func NewChatroomHandler(chatrooms service.ChatroomService, messages service.MessageService) *ChatroomHandler {
	return &ChatroomHandler{chatrooms: chatrooms, messages: messages, render: sanitize.New()}
}

func (h *ChatroomHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateChatroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.chatrooms.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewChatroomResponse(room))
}

func (h *ChatroomHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	rooms, err := h.chatrooms.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewChatroomList(rooms))
}

func (h *ChatroomHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.chatrooms.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewChatroomResponse(room))
}

func (h *ChatroomHandler) SendMessage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	chatroomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), userID, chatroomID, req.Content)
	if errors.Is(err, shared.ErrDispatchUnavailable) && msg != nil {
		// stored but not queued; the client can retry through regenerate
		c.JSON(http.StatusServiceUnavailable, dto.DispatchFailedResponse{
			Error:   "reply generation could not be scheduled",
			Status:  "dispatch_failed",
			Message: dto.NewMessageResponse(msg),
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewMessageResponse(msg))
}

func (h *ChatroomHandler) ListMessages(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	chatroomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var q dto.ListMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), userID, chatroomID, q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		resp := dto.NewMessageResponse(&msgs[i])
		if q.Format == "html" {
			resp.HTML = h.render.HTML(msgs[i].Content)
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (h *ChatroomHandler) Regenerate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	chatroomID, ok := pathID(c, "id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}

	if err := h.messages.Regenerate(c.Request.Context(), userID, chatroomID, messageID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "message_id": messageID})
}
