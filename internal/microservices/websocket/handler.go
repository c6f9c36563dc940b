package websocket

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"geminichat/internal/shared"
)

// OwnerLookup resolves the owner of a chatroom.
type OwnerLookup interface {
	GetOwner(ctx context.Context, chatroomID int64) (int64, error)
}

// NewUpgrader allows the given origins; an empty list or "*" allows any origin.
func NewUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
		},
	}
}

// WSHandler upgrades GET /chatroom/:id/live for the chatroom owner and streams reply events.
func WSHandler(hub *Hub, owners OwnerLookup, upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get("userID")
		userID, ok := v.(int64)
		if !exists || !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		chatroomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		owner, err := owners.GetOwner(c.Request.Context(), chatroomID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		case owner != userID:
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		// Upgrade writes its own error response
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		client := NewClient(uuid.NewString(), userID, chatroomID, conn, hub)
		if hello, err := NewSystemMessage(chatroomID, "connected").ToJSON(); err == nil {
			client.SendChannel <- hello
		}
		select {
		case hub.Register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
