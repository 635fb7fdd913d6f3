package domain

import (
	"strings"

	json "github.com/goccy/go-json"
)

// WebSocket message types from client.
const (
	MsgTypeSubscribe = "subscribe"
	MsgTypePublish   = "publish"
	MsgTypeJoinRoom  = "join_room"
	MsgTypeRelay     = "relay"
	MsgTypeLeaveRoom = "leave_room"
	MsgTypePing      = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeConnected         = "CONNECTED"
	MsgTypePublishResult     = "publish_result"
	MsgTypeWaiting           = "waiting"
	MsgTypePaired            = "paired"
	MsgTypeReplaced          = "replaced"
	MsgTypePeerDisconnected  = "PEER_DISCONNECTED"
	MsgTypeError             = "error"
	MsgTypePong              = "pong"
)

// TargetAll addresses a published event to every subscriber class.
const TargetAll = "all"

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// SubscribeMessage registers this connection as an event subscriber.
type SubscribeMessage struct {
	Type   string `json:"type"`
	Client string `json:"client"`
}

// PublishMessage publishes an event to matching subscribers.
type PublishMessage struct {
	Type    string          `json:"type"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// JoinRoomMessage claims a role slot in a room.
type JoinRoomMessage struct {
	Type      string `json:"type"`
	RoomToken string `json:"roomToken"`
	Role      string `json:"role"`
}

// RelayMessage carries an opaque signaling payload to the room peer.
type RelayMessage struct {
	Type      string          `json:"type"`
	RoomToken string          `json:"roomToken"`
	Payload   json.RawMessage `json:"payload"`
}

// LeaveRoomMessage releases this connection's room slot.
type LeaveRoomMessage struct {
	Type string `json:"type"`
}

// Server -> Client messages

// ConnectedMessage is the first frame sent to a new subscriber.
type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Message      string `json:"message"`
}

// PublishResultMessage acknowledges a publish over the socket.
type PublishResultMessage struct {
	Type            string `json:"type"`
	Success         bool   `json:"success"`
	ClientsNotified int    `json:"clientsNotified"`
}

// WaitingMessage is sent to a lone room joiner until a peer arrives.
type WaitingMessage struct {
	Type      string `json:"type"`
	RoomToken string `json:"roomToken"`
}

// PairedMessage is sent to both sides once a room has both roles.
type PairedMessage struct {
	Type        string `json:"type"`
	RoomToken   string `json:"roomToken"`
	StudioID    string `json:"studioId"`
	CompanionID string `json:"companionId"`
}

// ReplacedMessage tells a connection its room slot was taken over by a
// reconnecting client.
type ReplacedMessage struct {
	Type      string `json:"type"`
	RoomToken string `json:"roomToken"`
}

// PeerDisconnectedMessage tells the remaining occupant its peer left.
type PeerDisconnectedMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

// PresenceMessage announces a subscriber's arrival or departure to the
// other side, e.g. {"type":"COMPANION_CONNECTED",...} to studio
// subscribers.
type PresenceMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}

// ErrorMessage is sent when an error occurs.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewErrorMessage creates a new error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// HTTP control-plane types

// PublishRequest is the body of POST /publish.
type PublishRequest struct {
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// PublishResponse is the reply to POST /publish.
type PublishResponse struct {
	Success         bool `json:"success"`
	ClientsNotified int  `json:"clientsNotified"`
}

// PresenceEventType builds the class-specific announcement type,
// e.g. ("companion", true) -> "COMPANION_CONNECTED".
func PresenceEventType(clientClass string, connected bool) string {
	suffix := "_DISCONNECTED"
	if connected {
		suffix = "_CONNECTED"
	}
	return strings.ToUpper(clientClass) + suffix
}
