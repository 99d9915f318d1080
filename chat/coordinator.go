// Package chat orchestrates the hidden chat session: room listing, message
// fetch and decrypt, send and encrypt, live event reconciliation, and the
// reset that panic mode demands. The coordinator is the only writer of
// session state, and the key store is the only holder of room keys.
package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/taskveil/crypto"
	"github.com/jmcleod/taskveil/keystore"
)

// sessionState is the volatile per-session view model. Fully reset on panic.
type sessionState struct {
	currentRoomID  string
	rooms          []RoomSummary
	messagesByRoom map[string][]DecryptedMessage
	typingByRoom   map[string]map[string]time.Time
}

func newSessionState() sessionState {
	return sessionState{
		messagesByRoom: make(map[string][]DecryptedMessage),
		typingByRoom:   make(map[string]map[string]time.Time),
	}
}

// Coordinator bridges the chat UI to the external collaborators and the
// cryptographic components.
type Coordinator struct {
	userID      string
	displayName string

	keys    *keystore.Store
	rooms   RoomService
	msgs    MessageService
	live    LiveChannel
	uploads Uploader

	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state sessionState
	sub   Subscription
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithUploader wires the image upload collaborator.
func WithUploader(u Uploader) Option {
	return func(c *Coordinator) {
		c.uploads = u
	}
}

// WithLogger sets the structured logger. Defaults to a discarding logger;
// the coordinator logs only swallowed best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithClock overrides the time source for typing-indicator expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a Coordinator for the given verified identity.
func NewCoordinator(userID, displayName string, keys *keystore.Store, rooms RoomService, msgs MessageService, live LiveChannel, opts ...Option) *Coordinator {
	c := &Coordinator{
		userID:      userID,
		displayName: displayName,
		keys:        keys,
		rooms:       rooms,
		msgs:        msgs,
		live:        live,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		state:       newSessionState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnterChat fetches the authoritative room list, provisions each room's key
// into the key store, and records the summaries. An empty list is a valid
// empty state, not an error.
func (c *Coordinator) EnterChat(ctx context.Context) error {
	listed, err := c.rooms.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("listing rooms: %w", err)
	}

	summaries := make([]RoomSummary, 0, len(listed))
	for _, room := range listed {
		key, err := crypto.DecodeKey(room.RawKey)
		if err != nil {
			// A malformed key leaves the room listed but unreadable.
			c.logger.Warn("undecodable room key", "room_id", room.ID)
		} else if err := c.keys.Put(room.ID, key); err != nil {
			return fmt.Errorf("storing key for room %s: %w", room.ID, err)
		}
		summaries = append(summaries, room.RoomSummary)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.rooms = summaries
	return nil
}

// Rooms returns the current room summaries.
func (c *Coordinator) Rooms() []RoomSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RoomSummary(nil), c.state.rooms...)
}

// CurrentRoom returns the open room ID, if any.
func (c *Coordinator) CurrentRoom() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.currentRoomID, c.state.currentRoomID != ""
}

// OpenRoom fetches the room's recent history, decrypts it, and subscribes to
// the room's live events. A response that arrives after the user has already
// navigated elsewhere is discarded.
func (c *Coordinator) OpenRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	c.state.currentRoomID = roomID
	prev := c.detachSubscriptionLocked()
	c.mu.Unlock()
	closeSubscription(prev)

	fetched, err := c.msgs.Messages(ctx, roomID, MessagePageLimit)
	if err != nil {
		return fmt.Errorf("fetching messages for room %s: %w", roomID, err)
	}

	key, _ := c.keys.Get(roomID)
	decrypted := make([]DecryptedMessage, 0, len(fetched))
	// The server pages newest-first; the room view reads oldest-first.
	for i := len(fetched) - 1; i >= 0; i-- {
		decrypted = append(decrypted, c.decrypt(fetched[i], key))
	}

	sub, err := c.live.Subscribe(roomID, func(ev Event) {
		c.handleEvent(roomID, ev)
	})
	if err != nil {
		return fmt.Errorf("subscribing to room %s: %w", roomID, err)
	}

	c.mu.Lock()
	if c.state.currentRoomID != roomID {
		// Stale in-flight open: the user already moved on.
		c.mu.Unlock()
		sub.Close()
		return nil
	}
	c.state.messagesByRoom[roomID] = decrypted
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// LeaveRoom returns to the room list without leaving chat mode.
func (c *Coordinator) LeaveRoom() {
	c.mu.Lock()
	c.state.currentRoomID = ""
	prev := c.detachSubscriptionLocked()
	c.mu.Unlock()
	closeSubscription(prev)
}

// Messages returns the decrypted view of a room's history.
func (c *Coordinator) Messages(roomID string) []DecryptedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DecryptedMessage(nil), c.state.messagesByRoom[roomID]...)
}

// SendText encrypts and submits a text message. The local view is updated
// immediately on success; the live echo for a self-originated message is
// suppressed by sender identity, not message ID, because the ID only exists
// after the optimistic add.
func (c *Coordinator) SendText(ctx context.Context, roomID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	key, ok := c.keys.Get(roomID)
	if !ok {
		return ErrKeyUnavailable
	}

	blob, err := crypto.Encrypt(text, key)
	if err != nil {
		return fmt.Errorf("encrypting message: %w", err)
	}

	posted, err := c.msgs.Post(ctx, OutgoingMessage{
		RoomID:           roomID,
		EncryptedContent: blob,
		MessageType:      MessageTypeText,
	})
	if err != nil {
		return fmt.Errorf("posting message: %w", err)
	}

	c.appendLocal(roomID, DecryptedMessage{EncryptedMessage: posted, Content: text})
	return nil
}

// SendImage validates and uploads an image, then posts an image message
// whose encrypted text is a fixed placeholder.
func (c *Coordinator) SendImage(ctx context.Context, roomID string, data []byte, contentType string) error {
	if c.uploads == nil {
		return ErrUnsupportedType
	}
	if !strings.HasPrefix(contentType, "image/") {
		return ErrUnsupportedType
	}
	if len(data) > MaxImageBytes {
		return ErrImageTooLarge
	}
	key, ok := c.keys.Get(roomID)
	if !ok {
		return ErrKeyUnavailable
	}

	url, err := c.uploads.Upload(ctx, data, contentType)
	if err != nil {
		return fmt.Errorf("uploading image: %w", err)
	}

	blob, err := crypto.Encrypt(ImagePlaceholder, key)
	if err != nil {
		return fmt.Errorf("encrypting image placeholder: %w", err)
	}

	posted, err := c.msgs.Post(ctx, OutgoingMessage{
		RoomID:           roomID,
		EncryptedContent: blob,
		MessageType:      MessageTypeImage,
		ImageURL:         url,
	})
	if err != nil {
		return fmt.Errorf("posting image message: %w", err)
	}

	c.appendLocal(roomID, DecryptedMessage{EncryptedMessage: posted, Content: ImagePlaceholder})
	return nil
}

// DeleteMessage tombstones one of the caller's own messages. Local state is
// only mutated once the server accepts the delete.
func (c *Coordinator) DeleteMessage(ctx context.Context, messageID string) error {
	if err := c.msgs.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("deleting message %s: %w", messageID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for roomID, msgs := range c.state.messagesByRoom {
		c.state.messagesByRoom[roomID] = removeByID(msgs, messageID)
	}
	return nil
}

// ClearMine tombstones all of the caller's messages in a room and clears the
// room's local view.
func (c *Coordinator) ClearMine(ctx context.Context, roomID string) error {
	if err := c.msgs.ClearMine(ctx, roomID); err != nil {
		return fmt.Errorf("clearing messages in room %s: %w", roomID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.messagesByRoom[roomID] = nil
	return nil
}

// NotifyTyping publishes a fire-and-forget typing indicator.
func (c *Coordinator) NotifyTyping(ctx context.Context) {
	c.mu.Lock()
	roomID := c.state.currentRoomID
	c.mu.Unlock()
	if roomID == "" {
		return
	}
	if err := c.msgs.NotifyTyping(ctx, roomID, c.displayName); err != nil {
		c.logger.Debug("typing notification failed", "room_id", roomID, "error", err)
	}
}

// TypingUsers returns the display names with a live typing indicator for the
// room, expiring indicators that were not renewed.
func (c *Coordinator) TypingUsers(roomID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	indicators := c.state.typingByRoom[roomID]
	cutoff := c.now().Add(-TypingExpiry)
	var names []string
	for name, seen := range indicators {
		if seen.Before(cutoff) {
			delete(indicators, name)
			continue
		}
		names = append(names, name)
	}
	return names
}

// Reset discards all in-memory session state and closes the live
// subscription. It is the coordinator's half of the panic action and is
// idempotent; key purging belongs to the key store.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	prev := c.detachSubscriptionLocked()
	c.state = newSessionState()
	c.mu.Unlock()
	closeSubscription(prev)
}

func (c *Coordinator) handleEvent(roomID string, ev Event) {
	switch ev.Kind {
	case EventNewMessage:
		if ev.Message == nil {
			return
		}
		// Self-originated events echo back after the optimistic local
		// add; suppress them by sender identity.
		if ev.Message.SenderID == c.userID {
			return
		}
		key, _ := c.keys.Get(roomID)
		c.appendLocal(roomID, c.decrypt(*ev.Message, key))
	case EventMessageDeleted:
		c.mu.Lock()
		c.state.messagesByRoom[roomID] = removeByID(c.state.messagesByRoom[roomID], ev.MessageID)
		c.mu.Unlock()
	case EventMessagesCleared:
		c.mu.Lock()
		kept := c.state.messagesByRoom[roomID][:0]
		for _, m := range c.state.messagesByRoom[roomID] {
			if m.SenderID != ev.ActorID {
				kept = append(kept, m)
			}
		}
		c.state.messagesByRoom[roomID] = kept
		c.mu.Unlock()
	case EventUserTyping:
		if ev.ActorID == c.userID {
			return
		}
		c.mu.Lock()
		if c.state.typingByRoom[roomID] == nil {
			c.state.typingByRoom[roomID] = make(map[string]time.Time)
		}
		c.state.typingByRoom[roomID][ev.DisplayName] = c.now()
		c.mu.Unlock()
	}
}

// decrypt builds the view model for one message. Decryption failure is
// contained to the message: the content becomes a fixed placeholder and the
// batch continues.
func (c *Coordinator) decrypt(msg EncryptedMessage, key *[crypto.KeySize]byte) DecryptedMessage {
	if key == nil {
		return DecryptedMessage{EncryptedMessage: msg, Content: UnreadablePlaceholder}
	}
	content, err := crypto.Decrypt(msg.EncryptedContent, key)
	if err != nil {
		return DecryptedMessage{EncryptedMessage: msg, Content: UnreadablePlaceholder}
	}
	return DecryptedMessage{EncryptedMessage: msg, Content: content}
}

func (c *Coordinator) appendLocal(roomID string, msg DecryptedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.messagesByRoom[roomID] = append(c.state.messagesByRoom[roomID], msg)
}

// detachSubscriptionLocked hands the live subscription to the caller, which
// must close it after releasing the lock. Close waits for the event pump to
// drain, and the pump may itself be blocked acquiring the lock.
func (c *Coordinator) detachSubscriptionLocked() Subscription {
	sub := c.sub
	c.sub = nil
	return sub
}

func closeSubscription(sub Subscription) {
	if sub != nil {
		sub.Close()
	}
}

func removeByID(msgs []DecryptedMessage, id string) []DecryptedMessage {
	kept := msgs[:0]
	for _, m := range msgs {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	return kept
}
