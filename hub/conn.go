package hub

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sustentus/collab/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// ServeHTTP upgrades the request to a websocket connection and runs it as a
// hub member until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(fmt.Sprintf("upgrade: %v", err))
		return
	}

	id := uuid.NewString()
	c, err := h.register(id)
	if err != nil {
		h.logger.Error(fmt.Sprintf("register: %v", err))
		ws.Close()
		return
	}

	logger := h.logger.With(slog.String("conn", id))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop(ws, c, logger)
	}()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.readLoop(ws, id, logger)
	}()
}

func (h *Hub) readLoop(ws *websocket.Conn, id string, logger *slog.Logger) {
	defer func() {
		h.deregister(id)
		ws.Close()
		logger.Info("read loop stopped")
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, r, err := ws.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		var env event.Envelope
		if err := event.Decode(r, &env); err != nil {
			// Malformed frames are dropped; the connection stays up.
			logger.Error(fmt.Sprintf("decode: %v", err))
			continue
		}
		h.route(id, &env)
	}
}

func (h *Hub) writeLoop(ws *websocket.Conn, c *connection, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		logger.Info("write loop stopped")
	}()

	for {
		select {
		case env, ok := <-c.out:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			w, err := ws.NextWriter(websocket.TextMessage)
			if err != nil {
				logger.Error(fmt.Sprintf("NextWriter: %v", err))
				return
			}
			if err := event.Encode(w, env); err != nil {
				logger.Error(fmt.Sprintf("encode: %v", err))
			}
			w.Close()
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Error(fmt.Sprintf("write ping: %v", err))
				return
			}
		}
	}
}
