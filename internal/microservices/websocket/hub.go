package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"geminichat/internal/events"
)

// Central hub managing all live connections, grouped into one room per chatroom.
// Registration and broadcast go through channels served by Run.

type roomMessage struct {
	chatroomID int64
	payload    []byte
}

type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	broadcast  chan roomMessage

	mu    sync.RWMutex
	rooms map[int64]*Room

	done chan struct{}
	log  *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
		rooms:      make(map[int64]*Room),
		done:       make(chan struct{}),
		log:        log.With("component", "live_hub"),
	}
}

// Run serves register, unregister and broadcast requests until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.Register:
			h.room(c.RoomID, true).AddUser(c)
		case c := <-h.Unregister:
			h.remove(c)
		case m := <-h.broadcast:
			if r := h.room(m.chatroomID, false); r != nil {
				r.Broadcast(m.payload)
			}
		}
	}
}

// Broadcast queues payload for every client watching the chatroom.
func (h *Hub) Broadcast(chatroomID int64, payload []byte) {
	select {
	case h.broadcast <- roomMessage{chatroomID: chatroomID, payload: payload}:
	case <-h.done:
	}
}

// RoomSize returns how many clients watch the chatroom.
func (h *Hub) RoomSize(chatroomID int64) int {
	if r := h.room(chatroomID, false); r != nil {
		return r.GetUserCount()
	}
	return 0
}

// Forward relays reply events published on Redis to the matching rooms until the subscription closes.
func (h *Hub) Forward(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			chatroomID, ok := events.ChatroomFromChannel(msg.Channel)
			if !ok {
				continue
			}
			ev, err := events.Decode(msg.Payload)
			if err != nil {
				h.log.Warn("live_event_undecodable", "channel", msg.Channel, "error", err)
				continue
			}
			payload, err := NewReplyMessage(ev).ToJSON()
			if err != nil {
				continue
			}
			h.Broadcast(chatroomID, payload)
		}
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) room(id int64, create bool) *Room {
	h.mu.RLock()
	r := h.rooms[id]
	h.mu.RUnlock()
	if r != nil || !create {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r = h.rooms[id]; r == nil {
		r = NewRoom(id)
		h.rooms[id] = r
	}
	return r
}

func (h *Hub) remove(c *Client) {
	r := h.room(c.RoomID, false)
	if r == nil || !r.RemoveUser(c) {
		return
	}
	close(c.SendChannel)
	if r.GetUserCount() == 0 {
		h.mu.Lock()
		delete(h.rooms, c.RoomID)
		h.mu.Unlock()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.rooms {
		for _, c := range r.GetClients() {
			r.RemoveUser(c)
			close(c.SendChannel)
		}
		delete(h.rooms, id)
	}
}
