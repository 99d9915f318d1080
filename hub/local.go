package hub

import "github.com/jmcleod/taskveil/chat"

// Local adapts the hub to chat.LiveChannel so a coordinator can run in the
// same process as the server, as the tests and the embedded example do.
type Local struct {
	hub *Hub
}

var _ chat.LiveChannel = (*Local)(nil)

// NewLocal wraps a hub.
func NewLocal(h *Hub) *Local {
	return &Local{hub: h}
}

// Subscribe registers on the room topic and pumps events into fn from a
// dedicated goroutine. The returned handle stops the pump.
func (l *Local) Subscribe(roomID string, fn func(chat.Event)) (chat.Subscription, error) {
	sub := l.hub.Subscribe(roomID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.Events() {
			fn(ev)
		}
	}()
	return &localSubscription{sub: sub, done: done}, nil
}

type localSubscription struct {
	sub  *Subscription
	done chan struct{}
}

// Close stops delivery and waits for the pump goroutine to drain out, so no
// callback runs after Close returns.
func (s *localSubscription) Close() {
	s.sub.Close()
	<-s.done
}
