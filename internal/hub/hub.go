package hub

import (
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/studiolink/studiolink/internal/conn"
	"github.com/studiolink/studiolink/internal/domain"
	pkglog "github.com/studiolink/studiolink/pkg/log"
)

// DefaultRetainedEvents is the retained-event buffer capacity used when
// the configuration does not override it.
const DefaultRetainedEvents = 50

// RetainedEvent is a published event kept for backlog replay. Immutable
// after creation; evicted oldest-first when the buffer is full.
type RetainedEvent struct {
	Target  string
	Payload json.RawMessage
	Seq     uint64
	At      time.Time
}

type subscriber struct {
	id    string
	class string
	conn  *conn.Conn
	since time.Time
}

// Hub fans published events out to subscribers by client class and keeps
// a bounded backlog so a late subscriber still catches recent events.
// All state is guarded by a single mutex: a subscribe takes its backlog
// snapshot and joins the live set under the same critical section, so a
// concurrent publish is observed exactly once, in replay or live.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]*subscriber
	retained []RetainedEvent
	capacity int

	subSeq   uint64
	eventSeq uint64
}

// New creates a hub retaining up to capacity events.
func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultRetainedEvents
	}
	return &Hub{
		subs:     make(map[string]*subscriber),
		capacity: capacity,
	}
}

// Subscribe registers c as a subscriber of the given class and returns
// its subscriber id. The id combines class, a monotonic counter, and the
// subscribe time, so it is unique even for same-class connections that
// arrive in the same instant.
//
// Order on the wire: the CONNECTED frame, then the matching backlog in
// original arrival order, then live events. Backlog replay, live-set
// insertion, and the presence announcement happen under one lock so no
// publish can slip between them and no departure can be announced
// before the arrival.
//
// A connection that cannot absorb the CONNECTED frame plus the matching
// backlog is rejected: it is closed and never registered, rather than
// admitted with a silent gap in its replay.
func (h *Hub) Subscribe(clientClass string, c *conn.Conn) (string, error) {
	now := time.Now()

	h.mu.Lock()
	h.subSeq++
	id := fmt.Sprintf("%s-%d-%d", clientClass, h.subSeq, now.UnixNano())

	if err := c.PushJSON(&domain.ConnectedMessage{
		Type:         domain.MsgTypeConnected,
		ConnectionID: id,
		Message:      "subscribed as " + clientClass,
	}); err != nil {
		h.mu.Unlock()
		c.Close()
		return "", fmt.Errorf("hub: subscribe %s: %w", clientClass, err)
	}
	for _, ev := range h.retained {
		if ev.Target != domain.TargetAll && ev.Target != clientClass {
			continue
		}
		if err := c.Push(ev.Payload); err != nil {
			h.mu.Unlock()
			c.Close()
			return "", fmt.Errorf("hub: backlog replay for %s: %w", clientClass, err)
		}
	}
	h.subs[id] = &subscriber{id: id, class: clientClass, conn: c, since: now}
	dead := h.announceLocked(clientClass, id, true)
	h.mu.Unlock()

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldConnectionID, id).
		Str(pkglog.FieldClientClass, clientClass).
		Msg("subscriber registered")

	h.reap(dead)
	return id, nil
}

// Unsubscribe removes a subscriber and announces its departure to the
// other classes. Safe to call twice; the second call is a no-op.
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	s, ok := h.subs[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.subs, id)
	dead := h.announceLocked(s.class, s.id, false)
	h.mu.Unlock()

	s.conn.Close()

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldConnectionID, id).
		Str(pkglog.FieldClientClass, s.class).
		Dur("subscribed_for", time.Since(s.since)).
		Msg("subscriber removed")

	h.reap(dead)
	return true
}

// Publish retains the event and delivers it to every live subscriber
// whose class matches target ("all" matches everyone). A server
// timestamp is merged into object payloads before retention so replayed
// and live deliveries are byte-identical. Returns the number of
// subscribers reached; a push failure reaps that subscriber and never
// aborts delivery to the rest.
func (h *Hub) Publish(target string, payload json.RawMessage) int {
	if target == "" {
		target = domain.TargetAll
	}
	now := time.Now()
	data := domain.MergeTimestamp(payload, now)

	h.mu.Lock()
	h.eventSeq++
	h.retained = append(h.retained, RetainedEvent{Target: target, Payload: data, Seq: h.eventSeq, At: now})
	if len(h.retained) > h.capacity {
		h.retained = append(h.retained[:0], h.retained[len(h.retained)-h.capacity:]...)
	}

	delivered := 0
	var dead []*subscriber
	for key, s := range h.subs {
		if target != domain.TargetAll && s.class != target {
			continue
		}
		if err := s.conn.Push(data); err != nil {
			delete(h.subs, key)
			dead = append(dead, s)
			continue
		}
		delivered++
	}
	h.mu.Unlock()

	l := pkglog.L()
	l.Debug().
		Str(pkglog.FieldTarget, target).
		Int(pkglog.FieldDelivered, delivered).
		Msg("event published")

	h.reap(dead)
	return delivered
}

// Stats returns subscriber counts by class and the retained-event count.
func (h *Hub) Stats() (map[string]int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, s := range h.subs {
		counts[s.class]++
	}
	return counts, len(h.retained)
}

// announceLocked tells subscribers of the other classes that a
// connection of clientClass arrived or departed. Must be called with
// h.mu held; failed subscribers are removed from the live set and
// returned for the caller to reap after unlocking.
func (h *Hub) announceLocked(clientClass, id string, connected bool) []*subscriber {
	data, err := json.Marshal(&domain.PresenceMessage{
		Type:         domain.PresenceEventType(clientClass, connected),
		ConnectionID: id,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return nil
	}

	var dead []*subscriber
	for key, s := range h.subs {
		if s.class == clientClass {
			continue
		}
		if err := s.conn.Push(data); err != nil {
			delete(h.subs, key)
			dead = append(dead, s)
		}
	}
	return dead
}

// reap closes subscribers whose sink failed mid-delivery and announces
// their departure. An announcement can surface further failures, so the
// worklist runs until empty; it terminates because every entry was
// already removed from the live set.
func (h *Hub) reap(dead []*subscriber) {
	for len(dead) > 0 {
		s := dead[0]
		dead = dead[1:]

		l := pkglog.L()
		l.Warn().
			Str(pkglog.FieldConnectionID, s.id).
			Str(pkglog.FieldClientClass, s.class).
			Msg("dead subscriber reaped during delivery")
		s.conn.Close()

		h.mu.Lock()
		more := h.announceLocked(s.class, s.id, false)
		h.mu.Unlock()
		dead = append(dead, more...)
	}
}
