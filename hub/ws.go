package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ServeConn bridges one room topic onto a websocket connection. Events flow
// server to client only; typing and message submission travel over the REST
// API. ServeConn blocks until the peer disconnects or ctx is cancelled, and
// closes the connection on the way out.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, roomID string) {
	sub := h.Subscribe(roomID)
	defer sub.Close()
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The read pump only detects disconnects and feeds the pong handler.
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read failed", "room_id", roomID, "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshalling event", "room_id", roomID, "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
