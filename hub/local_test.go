package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/taskveil/chat"
	"github.com/jmcleod/taskveil/crypto"
	"github.com/jmcleod/taskveil/keystore"
)

// coordRooms and coordMessages are the minimal collaborators needed to run a
// real coordinator over the in-process live channel.
type coordRooms struct{ key string }

func (r *coordRooms) ListRooms(context.Context) ([]chat.RoomWithKey, error) {
	return []chat.RoomWithKey{{
		RoomSummary: chat.RoomSummary{ID: "room-1", Name: "general"},
		RawKey:      r.key,
	}}, nil
}

type coordMessages struct{}

func (coordMessages) Messages(context.Context, string, int) ([]chat.EncryptedMessage, error) {
	return nil, nil
}

func (coordMessages) Post(_ context.Context, msg chat.OutgoingMessage) (chat.EncryptedMessage, error) {
	return chat.EncryptedMessage{
		RoomID:           msg.RoomID,
		EncryptedContent: msg.EncryptedContent,
		MessageType:      msg.MessageType,
	}, nil
}

func (coordMessages) Delete(context.Context, string) error { return nil }

func (coordMessages) ClearMine(context.Context, string) error { return nil }

func (coordMessages) NotifyTyping(context.Context, string, string) error { return nil }

func TestLocal_CoordinatorResetDuringFanout(t *testing.T) {
	h := New()
	live := NewLocal(h)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keys := keystore.New(keystore.NewMemoryStorage())
	coord := chat.NewCoordinator("alice", "Alice", keys,
		&coordRooms{key: crypto.EncodeKey(key)}, coordMessages{}, live)

	ctx := context.Background()
	require.NoError(t, coord.EnterChat(ctx))
	require.NoError(t, coord.OpenRoom(ctx, "room-1"))

	blob, err := crypto.Encrypt("incoming", key)
	require.NoError(t, err)

	// Keep the pump busy applying events while Reset runs: Reset must not
	// wait for the pump while the pump waits for the coordinator.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			h.Publish("room-1", chat.Event{
				Kind: chat.EventNewMessage,
				Message: &chat.EncryptedMessage{
					ID:               fmt.Sprintf("m-%d", i),
					RoomID:           "room-1",
					SenderID:         "bob",
					EncryptedContent: blob,
					MessageType:      chat.MessageTypeText,
				},
			})
		}
	}()

	done := make(chan struct{})
	go func() {
		coord.Reset()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Reset did not return while live events were being delivered")
	}
	close(stop)
	wg.Wait()

	assert.Empty(t, coord.Rooms())
	assert.Empty(t, coord.Messages("room-1"))
}
