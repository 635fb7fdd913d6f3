package service

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/studiolink/studiolink/internal/domain"
	"github.com/studiolink/studiolink/internal/hub"
	"github.com/studiolink/studiolink/internal/registry"
)

type coordinatorService struct {
	hub      *hub.Hub
	registry *registry.Registry
}

// NewCoordinatorService creates a CoordinatorService backed by the
// given hub and registry.
func NewCoordinatorService(h *hub.Hub, reg *registry.Registry) CoordinatorService {
	return &coordinatorService{
		hub:      h,
		registry: reg,
	}
}

func (s *coordinatorService) HandleSubscribe(ctx context.Context, sess *domain.Session, clientClass string) error {
	if clientClass == "" {
		return sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "client class is required"))
	}
	// A connection subscribes at most once; there is no re-subscribe
	// under the same identifier.
	if sess.GetSubscriberID() != "" {
		return sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "already subscribed"))
	}

	id, err := s.hub.Subscribe(clientClass, sess.Conn)
	if err != nil {
		return err
	}
	sess.Subscribe(id, clientClass)
	return nil
}

func (s *coordinatorService) HandlePublish(ctx context.Context, target string, payload json.RawMessage) (int, error) {
	if len(payload) == 0 {
		return 0, errors.New("payload is required")
	}
	return s.hub.Publish(target, payload), nil
}

func (s *coordinatorService) HandleJoinRoom(ctx context.Context, sess *domain.Session, roomToken, role string) error {
	if roomToken == "" {
		return sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "room token is required"))
	}
	if err := s.registry.Join(roomToken, role, sess.Conn); err != nil {
		if errors.Is(err, registry.ErrUnknownRole) {
			return sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "role must be studio or companion"))
		}
		return err
	}
	sess.JoinRoom(roomToken, role)
	return nil
}

func (s *coordinatorService) HandleRelay(ctx context.Context, sess *domain.Session, roomToken string, payload json.RawMessage) error {
	if roomToken == "" {
		return sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "room token is required"))
	}
	if len(payload) == 0 {
		return sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "payload is required"))
	}
	// No peer yet is not an error; signaling before pairing is expected.
	s.registry.Relay(roomToken, sess.ID, payload)
	return nil
}

func (s *coordinatorService) HandleLeaveRoom(ctx context.Context, sess *domain.Session) error {
	// Nothing to leave for a session that never joined.
	if sess.GetRoomToken() == "" {
		return nil
	}
	s.registry.Leave(sess.ID)
	sess.LeaveRoom()
	return nil
}

func (s *coordinatorService) HandleDisconnect(ctx context.Context, sess *domain.Session) error {
	if subID := sess.GetSubscriberID(); subID != "" {
		s.hub.Unsubscribe(subID)
	}
	s.registry.Leave(sess.ID)
	return nil
}

func (s *coordinatorService) Stats(ctx context.Context) domain.Stats {
	counts, retained := s.hub.Stats()
	return domain.Stats{
		Subscribers:    counts,
		Rooms:          s.registry.RoomCount(),
		RetainedEvents: retained,
	}
}
