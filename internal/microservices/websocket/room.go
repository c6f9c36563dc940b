package websocket

import (
	"log/slog"
	"sync"
)

// Room = the live viewers of one chatroom
type Room struct {
	ID      int64              // chatroom ID
	Clients map[string]*Client // map[clientID] -> *Client
	mu      sync.RWMutex
}

func NewRoom(id int64) *Room {
	return &Room{
		ID:      id,
		Clients: make(map[string]*Client),
	}
}

// AddUser: adds new client to the room
func (r *Room) AddUser(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Clients[c.ID] == nil {
		slog.Debug("live_client_joined", "chatroom_id", r.ID, "client_id", c.ID)
		r.Clients[c.ID] = c
	} else {
		slog.Warn("live_client_already_joined", "chatroom_id", r.ID, "client_id", c.ID)
	}
}

// RemoveUser removes the client and reports whether it was present.
func (r *Room) RemoveUser(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Clients[c.ID] != c {
		return false
	}
	slog.Debug("live_client_left", "chatroom_id", r.ID, "client_id", c.ID)
	delete(r.Clients, c.ID)
	return true
}

// Broadcast sends message to every client without blocking; a client whose buffer is full is disconnected.
func (r *Room) Broadcast(message []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.Clients {
		select {
		case c.SendChannel <- message:
		default:
			slog.Warn("live_client_too_slow", "chatroom_id", r.ID, "client_id", c.ID)
			_ = c.Conn.Close()
		}
	}
}

func (r *Room) GetUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

// GetClients: returns copy of clients list in the room
func (r *Room) GetClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.Clients))
	for _, client := range r.Clients {
		clients = append(clients, client)
	}
	return clients
}
