package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmcleod/taskveil/chat"
)

// Subscribe opens a websocket on the room's event feed and pumps decoded
// events into fn until the subscription is closed or the connection drops.
func (c *Client) Subscribe(roomID string, fn func(chat.Event)) (chat.Subscription, error) {
	wsURL := websocketURL(c.baseURL) + "/ws/rooms/" + roomID + "?token=" + c.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing room %s: %w", roomID, err)
	}

	sub := &liveSubscription{conn: conn, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev chat.Event
			if err := json.Unmarshal(frame, &ev); err != nil {
				continue
			}
			fn(ev)
		}
	}()
	return sub, nil
}

type liveSubscription struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

// Close tears down the websocket and waits for the read pump to exit, so no
// callback runs after Close returns. Idempotent.
func (s *liveSubscription) Close() {
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
	<-s.done
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
