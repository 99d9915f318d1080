package chat

import "context"

// EventKind names the live event kinds consumed per room topic.
type EventKind string

const (
	EventNewMessage      EventKind = "new-message"
	EventMessageDeleted  EventKind = "message-deleted"
	EventMessagesCleared EventKind = "messages-cleared"
	EventUserTyping      EventKind = "user-typing"
)

// Event is one live event on a room topic. Delivery is at-least-once and
// best-effort; events for a room arrive on a single ordered subscription and
// are applied in receipt order.
type Event struct {
	Kind    EventKind         `json:"kind"`
	Message *EncryptedMessage `json:"message,omitempty"`

	// MessageID identifies the tombstoned message for message-deleted.
	MessageID string `json:"message_id,omitempty"`
	// ActorID is the user whose messages were cleared for messages-cleared,
	// or the user typing for user-typing.
	ActorID string `json:"actor_id,omitempty"`
	// DisplayName accompanies user-typing.
	DisplayName string `json:"display_name,omitempty"`
}

// Subscription is a handle on one room's live event feed. Close must be
// idempotent; the coordinator closes it on room change and on panic.
type Subscription interface {
	Close()
}

// LiveChannel delivers room events. Implemented over websockets by the
// client package and in-process by the hub for embedded use and tests.
type LiveChannel interface {
	Subscribe(roomID string, fn func(Event)) (Subscription, error)
}

// RoomService lists the caller's rooms. Implementations must bypass any
// intermediate cache: room membership and key provisioning depend on the
// listing being fresh.
type RoomService interface {
	ListRooms(ctx context.Context) ([]RoomWithKey, error)
}

// MessageService is the message CRUD surface.
type MessageService interface {
	// Messages returns at most limit non-tombstoned messages for the
	// room, newest first.
	Messages(ctx context.Context, roomID string, limit int) ([]EncryptedMessage, error)
	Post(ctx context.Context, msg OutgoingMessage) (EncryptedMessage, error)
	Delete(ctx context.Context, messageID string) error
	ClearMine(ctx context.Context, roomID string) error
	NotifyTyping(ctx context.Context, roomID, displayName string) error
}

// Uploader stores an image blob and returns a fetchable URL. The coordinator
// never retains raw image bytes.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}
