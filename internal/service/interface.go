package service

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/studiolink/studiolink/internal/domain"
)

// CoordinatorService handles coordination operations for one process:
// event subscription and fan-out, room pairing, and signaling relay.
type CoordinatorService interface {
	// HandleSubscribe registers the session as an event subscriber.
	HandleSubscribe(ctx context.Context, sess *domain.Session, clientClass string) error

	// HandlePublish fans an event out to matching subscribers and
	// returns how many were reached.
	HandlePublish(ctx context.Context, target string, payload json.RawMessage) (int, error)

	// HandleJoinRoom claims a role slot in a room for the session.
	HandleJoinRoom(ctx context.Context, sess *domain.Session, roomToken, role string) error

	// HandleRelay forwards a signaling payload to the session's room peer.
	HandleRelay(ctx context.Context, sess *domain.Session, roomToken string, payload json.RawMessage) error

	// HandleLeaveRoom releases the session's room slot.
	HandleLeaveRoom(ctx context.Context, sess *domain.Session) error

	// HandleDisconnect cleans up everything the session holds.
	HandleDisconnect(ctx context.Context, sess *domain.Session) error

	// Stats returns a snapshot of live subscribers, rooms, and backlog.
	Stats(ctx context.Context) domain.Stats
}
