package handler

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/studiolink/studiolink/internal/config"
	"github.com/studiolink/studiolink/internal/conn"
	pkglog "github.com/studiolink/studiolink/pkg/log"
)

// wsClient pumps frames between one WebSocket and its delivery sink.
type wsClient struct {
	ws   *websocket.Conn
	sink *conn.Conn
	cfg  config.WebSocketConfig
}

// readPump reads frames from the socket and hands them to handle.
// It closes the sink on exit, which fires the sink's close hook and
// triggers disconnect cleanup exactly once.
func (c *wsClient) readPump(handle func([]byte)) {
	defer func() {
		c.sink.Close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := pkglog.L()
				l.Error().Err(err).Str(pkglog.FieldConnectionID, c.sink.ID()).Msg("websocket error")
			}
			break
		}
		handle(message)
	}
}

// writePump drains the sink's outbox to the socket and keeps the
// connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.sink.Outbox():
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-c.sink.Done():
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
