// internal/handlers/hub.go
package handlers

import (
	"sync"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

// ChatConnection is one WebSocket client in a chat room.
type ChatConnection struct {
	Conn    *websocket.Conn
	User    models.User
	Chat    models.ChatID
	Cancel  func()
	OutChan chan interface{}
}

// Write pushes a message onto the connection's OutChan without blocking. A full channel drops
// the message; the next state broadcast supersedes it anyway.
func (conn *ChatConnection) Write(logger *logrus.Logger, msg interface{}) {
	select {
	case conn.OutChan <- msg:
	default:
		logger.WithFields(logrus.Fields{"chat": conn.Chat, "user": conn.User.ID}).Warn("outgoing channel full, dropping message")
	}
}

// Close disconnects the client with code and stops its pumps.
func (conn *ChatConnection) Close(code websocket.StatusCode, reason string) {
	if conn.Conn != nil {
		_ = conn.Conn.Close(code, reason)
	}
	conn.Cancel()
}

// Hub tracks the connections of every chat room.
type Hub struct {
	mu    sync.Mutex
	chats map[models.ChatID]map[*ChatConnection]struct{}
}

// NewHub returns a hub with no connections.
func NewHub() *Hub {
	return &Hub{chats: make(map[models.ChatID]map[*ChatConnection]struct{})}
}

// Add registers conn in its chat.
func (h *Hub) Add(conn *ChatConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.chats[conn.Chat]
	if !ok {
		set = make(map[*ChatConnection]struct{})
		h.chats[conn.Chat] = set
	}
	set[conn] = struct{}{}
}

// Remove unregisters conn, dropping the chat when it empties. It reports whether the chat
// still has listeners.
func (h *Hub) Remove(conn *ChatConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.chats[conn.Chat]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.chats, conn.Chat)
		return false
	}
	return true
}

// Connections returns a copy of chat's connections, safe to use after the lock is released.
func (h *Hub) Connections(chat models.ChatID) []*ChatConnection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*ChatConnection, 0, len(h.chats[chat]))
	for c := range h.chats[chat] {
		out = append(out, c)
	}
	return out
}

// All returns every connection of every chat.
func (h *Hub) All() []*ChatConnection {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*ChatConnection
	for _, set := range h.chats {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}
