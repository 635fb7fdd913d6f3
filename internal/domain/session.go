package domain

import (
	"sync"
	"time"

	"github.com/studiolink/studiolink/internal/conn"
)

// Session tracks what one WebSocket connection is doing: whether it
// subscribed to the event hub and which room slot it occupies, if any.
type Session struct {
	ID           string
	Conn         *conn.Conn
	SubscriberID string
	ClientClass  string
	RoomToken    string
	Role         string
	CreatedAt    time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

// NewSession creates a new session for the given connection.
func NewSession(id string, c *conn.Conn) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Conn:         c,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Subscribe records the hub subscription for this session.
func (s *Session) Subscribe(subscriberID, clientClass string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SubscriberID = subscriberID
	s.ClientClass = clientClass
	s.LastActiveAt = time.Now()
}

// GetSubscriberID returns the hub subscriber id, empty if not subscribed.
func (s *Session) GetSubscriberID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SubscriberID
}

// JoinRoom records the room slot this session occupies.
func (s *Session) JoinRoom(roomToken, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RoomToken = roomToken
	s.Role = role
	s.LastActiveAt = time.Now()
}

// LeaveRoom clears the room slot from the session.
func (s *Session) LeaveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RoomToken = ""
	s.Role = ""
	s.LastActiveAt = time.Now()
}

// GetRoomToken returns the current room token, empty if not in a room.
func (s *Session) GetRoomToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RoomToken
}

// UpdateActivity updates the last active timestamp.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
