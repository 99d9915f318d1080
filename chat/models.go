package chat

import "time"

// Message types carried on the wire.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

const (
	// UnreadablePlaceholder replaces the content of a message whose blob
	// cannot be decrypted. The failure stays contained to that message.
	UnreadablePlaceholder = "[unreadable message]"
	// ImagePlaceholder is the encrypted text stored alongside an image
	// message; the image itself travels as a URL.
	ImagePlaceholder = "[Image]"

	// MessagePageLimit bounds a single history fetch.
	MessagePageLimit = 100
	// MaxImageBytes bounds an image upload.
	MaxImageBytes = 4 << 20
	// TypingExpiry is how long a typing indicator stays alive without
	// renewal.
	TypingExpiry = 3 * time.Second
)

// RoomSummary is the room metadata kept in session state.
type RoomSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoomWithKey is what the room listing endpoint delivers: metadata plus the
// room key, transmitted once. The coordinator hands the key straight to the
// key store and keeps only the summary.
type RoomWithKey struct {
	RoomSummary
	RawKey string `json:"raw_room_key"`
}

// EncryptedMessage is the wire and storage form of a message. The server
// only ever sees this: an opaque blob it cannot decrypt.
type EncryptedMessage struct {
	ID               string    `json:"id"`
	RoomID           string    `json:"room_id"`
	SenderID         string    `json:"sender_id"`
	EncryptedContent string    `json:"encrypted_content"`
	MessageType      string    `json:"message_type"`
	ImageURL         string    `json:"image_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// DecryptedMessage is the client-only view model: the wire form plus the
// decrypted content. It exists only in volatile session state.
type DecryptedMessage struct {
	EncryptedMessage
	Content string `json:"-"`
}

// OutgoingMessage is the payload submitted to the message endpoint.
type OutgoingMessage struct {
	RoomID           string `json:"room_id"`
	EncryptedContent string `json:"encrypted_content"`
	MessageType      string `json:"message_type"`
	ImageURL         string `json:"image_url,omitempty"`
}
