package handler

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/studiolink/studiolink/internal/config"
	"github.com/studiolink/studiolink/internal/conn"
	"github.com/studiolink/studiolink/internal/domain"
	"github.com/studiolink/studiolink/internal/service"
	pkglog "github.com/studiolink/studiolink/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	service service.CoordinatorService
	cfg     config.WebSocketConfig
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(svc service.CoordinatorService, cfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		service: svc,
		cfg:     cfg,
	}
}

// HandleWebSocket handles WebSocket upgrade and message routing.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.Ctx(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.New().String()
	sink := conn.New(connID, h.cfg.OutboxSize)
	sess := domain.NewSession(connID, sink)

	// Runs exactly once, whether the remote side drops the socket or a
	// component closes the sink first.
	sink.OnClose(func(c *conn.Conn) {
		cl := pkglog.L()
		if err := h.service.HandleDisconnect(context.Background(), sess); err != nil {
			cl.Error().Err(err).Str(pkglog.FieldConnectionID, c.ID()).Msg("disconnect cleanup error")
		}
		cl.Info().
			Str(pkglog.FieldConnectionID, c.ID()).
			Dur("connected_for", time.Since(c.ConnectedAt())).
			Msg("client disconnected")
	})

	l.Info().Str(pkglog.FieldConnectionID, connID).Msg("client connected")

	client := &wsClient{ws: ws, sink: sink, cfg: h.cfg}
	go client.writePump()
	go client.readPump(func(message []byte) {
		h.handleMessage(sess, message)
	})
}

func (h *WSHandler) handleMessage(sess *domain.Session, message []byte) {
	l := pkglog.L()
	sess.UpdateActivity()

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeSubscribe:
		var msg domain.SubscribeMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid subscribe message"))
			return
		}
		if err := h.service.HandleSubscribe(ctx, sess, msg.Client); err != nil {
			l.Error().Err(err).Str(pkglog.FieldConnectionID, sess.ID).Msg("subscribe failed")
		}

	case domain.MsgTypePublish:
		var msg domain.PublishMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid publish message"))
			return
		}
		notified, err := h.service.HandlePublish(ctx, msg.Target, msg.Payload)
		if err != nil {
			sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, err.Error()))
			return
		}
		sess.Conn.PushJSON(&domain.PublishResultMessage{
			Type:            domain.MsgTypePublishResult,
			Success:         true,
			ClientsNotified: notified,
		})

	case domain.MsgTypeJoinRoom:
		var msg domain.JoinRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid join_room message"))
			return
		}
		if err := h.service.HandleJoinRoom(ctx, sess, msg.RoomToken, msg.Role); err != nil {
			l.Error().Err(err).Str(pkglog.FieldConnectionID, sess.ID).Msg("join room failed")
		}

	case domain.MsgTypeRelay:
		var msg domain.RelayMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid relay message"))
			return
		}
		if err := h.service.HandleRelay(ctx, sess, msg.RoomToken, msg.Payload); err != nil {
			l.Error().Err(err).Str(pkglog.FieldConnectionID, sess.ID).Msg("relay failed")
		}

	case domain.MsgTypeLeaveRoom:
		if err := h.service.HandleLeaveRoom(ctx, sess); err != nil {
			l.Error().Err(err).Str(pkglog.FieldConnectionID, sess.ID).Msg("leave room failed")
		}

	case domain.MsgTypePing:
		sess.Conn.PushJSON(map[string]string{"type": domain.MsgTypePong})

	default:
		sess.Conn.PushJSON(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket)
}
