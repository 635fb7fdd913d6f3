package registry

import (
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/studiolink/studiolink/internal/conn"
	"github.com/studiolink/studiolink/internal/domain"
	pkglog "github.com/studiolink/studiolink/pkg/log"
)

// Roles that can occupy a room slot.
const (
	RoleStudio    = "studio"
	RoleCompanion = "companion"
)

// ErrUnknownRole is returned when a join names a role other than
// studio or companion.
var ErrUnknownRole = errors.New("registry: unknown role")

// room holds at most one studio and one companion connection.
type room struct {
	token     string
	studio    *conn.Conn
	companion *conn.Conn
}

func (r *room) empty() bool {
	return r.studio == nil && r.companion == nil
}

// Registry pairs a studio and a companion connection per room token and
// relays opaque signaling payloads between them. It owns the room map
// exclusively; one mutex keeps join, relay, and leave atomic with
// respect to each other. Notifications are pushed while the lock is
// still held (pushes never block), so a "waiting" can never be
// observed after the "paired" that supersedes it.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join places c into the role slot of the room, creating the room if
// needed. Re-join from the same connection id is idempotent. A join
// over a slot held by a different connection replaces it (a reconnect)
// and the superseded connection is told so. The joiner
// gets "waiting" until the opposite slot fills, at which point both
// sides get "paired".
func (g *Registry) Join(roomToken, role string, c *conn.Conn) error {
	if role != RoleStudio && role != RoleCompanion {
		return ErrUnknownRole
	}

	g.mu.Lock()
	r, ok := g.rooms[roomToken]
	if !ok {
		r = &room{token: roomToken}
		g.rooms[roomToken] = r
	}

	var replaced *conn.Conn
	switch role {
	case RoleStudio:
		if r.studio != nil && r.studio.ID() != c.ID() {
			replaced = r.studio
		}
		r.studio = c
	case RoleCompanion:
		if r.companion != nil && r.companion.ID() != c.ID() {
			replaced = r.companion
		}
		r.companion = c
	}

	if replaced != nil {
		replaced.PushJSON(&domain.ReplacedMessage{
			Type:      domain.MsgTypeReplaced,
			RoomToken: roomToken,
		})
	}

	var failed []string
	if r.studio != nil && r.companion != nil {
		paired := &domain.PairedMessage{
			Type:        domain.MsgTypePaired,
			RoomToken:   roomToken,
			StudioID:    r.studio.ID(),
			CompanionID: r.companion.ID(),
		}
		if err := r.studio.PushJSON(paired); err != nil {
			failed = append(failed, r.studio.ID())
		}
		if err := r.companion.PushJSON(paired); err != nil {
			failed = append(failed, r.companion.ID())
		}
	} else {
		if err := c.PushJSON(&domain.WaitingMessage{
			Type:      domain.MsgTypeWaiting,
			RoomToken: roomToken,
		}); err != nil {
			failed = append(failed, c.ID())
		}
	}
	paired := r.studio != nil && r.companion != nil
	g.mu.Unlock()

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldConnectionID, c.ID()).
		Str(pkglog.FieldRoomToken, roomToken).
		Str(pkglog.FieldRole, role).
		Bool("paired", paired).
		Msg("room join")

	for _, id := range failed {
		g.Leave(id)
	}
	return nil
}

// Relay delivers payload to the other occupied slot of the room, never
// back to the sender. No room or no peer is a silent no-op; signaling
// before pairing is expected. A server timestamp is merged into the
// payload on the way through.
func (g *Registry) Relay(roomToken, senderID string, payload json.RawMessage) {
	data := domain.MergeTimestamp(payload, time.Now())

	var failedID string
	g.mu.Lock()
	if r, ok := g.rooms[roomToken]; ok {
		var peer *conn.Conn
		switch {
		case r.studio != nil && r.studio.ID() == senderID:
			peer = r.companion
		case r.companion != nil && r.companion.ID() == senderID:
			peer = r.studio
		}
		if peer != nil {
			if err := peer.Push(data); err != nil {
				failedID = peer.ID()
			}
		}
	}
	g.mu.Unlock()

	if failedID != "" {
		g.Leave(failedID)
	}
}

// Leave clears every slot held by connID, tells the remaining peer, and
// removes rooms that end up fully empty. Calling it twice for the same
// id is safe; the second call is a no-op.
func (g *Registry) Leave(connID string) {
	var failed []string

	g.mu.Lock()
	for token, r := range g.rooms {
		cleared := false
		if r.studio != nil && r.studio.ID() == connID {
			r.studio = nil
			cleared = true
		}
		if r.companion != nil && r.companion.ID() == connID {
			r.companion = nil
			cleared = true
		}
		if !cleared {
			continue
		}

		peer := r.studio
		if peer == nil {
			peer = r.companion
		}
		if peer != nil {
			if err := peer.PushJSON(&domain.PeerDisconnectedMessage{
				Type:   domain.MsgTypePeerDisconnected,
				PeerID: connID,
			}); err != nil {
				failed = append(failed, peer.ID())
			}
		}

		if r.empty() {
			delete(g.rooms, token)
		}

		l := pkglog.L()
		l.Info().
			Str(pkglog.FieldConnectionID, connID).
			Str(pkglog.FieldRoomToken, token).
			Bool("peer_notified", peer != nil).
			Msg("room leave")
	}
	g.mu.Unlock()

	for _, id := range failed {
		g.Leave(id)
	}
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
