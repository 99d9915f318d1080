package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmcleod/taskveil/internal/uuid"
)

// DefaultMessageLimit bounds a history page when the caller asks for more, or
// for nothing.
const DefaultMessageLimit = 100

// Message types accepted on create.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// CreateMessage stores a message after checking the sender's membership. The
// content is opaque to the server and stored as-is.
func (s *Store) CreateMessage(ctx context.Context, senderID, roomID, encryptedContent, messageType, imageURL string) (Message, error) {
	if strings.TrimSpace(encryptedContent) == "" {
		return Message{}, fmt.Errorf("message content is required: %w", ErrInvalid)
	}
	if messageType != MessageTypeText && messageType != MessageTypeImage {
		return Message{}, fmt.Errorf("message type %q: %w", messageType, ErrInvalid)
	}
	ok, err := s.IsMember(ctx, roomID, senderID)
	if err != nil {
		return Message{}, err
	}
	if !ok {
		return Message{}, fmt.Errorf("user %s is not a member of room %s: %w", senderID, roomID, ErrForbidden)
	}

	msg := Message{
		ID:               uuid.New(),
		RoomID:           roomID,
		SenderID:         senderID,
		EncryptedContent: encryptedContent,
		MessageType:      messageType,
		ImageURL:         imageURL,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return Message{}, fmt.Errorf("creating message: %w", err)
	}
	return msg, nil
}

// Messages returns up to limit non-tombstoned messages for the room, newest
// first. The caller must be a member.
func (s *Store) Messages(ctx context.Context, userID, roomID string, limit int) ([]Message, error) {
	ok, err := s.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s is not a member of room %s: %w", userID, roomID, ErrForbidden)
	}
	if limit <= 0 || limit > DefaultMessageLimit {
		limit = DefaultMessageLimit
	}

	var msgs []Message
	err = s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("listing messages for room %s: %w", roomID, err)
	}
	return msgs, nil
}

// DeleteMessage tombstones a message. Only the sender may delete it; the row
// is kept for the audit trail but leaves every read path.
func (s *Store) DeleteMessage(ctx context.Context, actorID, messageID string) (Message, error) {
	var msg Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", messageID).Error; err != nil {
		return Message{}, notFound(err, "message "+messageID)
	}
	if msg.SenderID != actorID {
		return Message{}, fmt.Errorf("message %s belongs to another sender: %w", messageID, ErrForbidden)
	}
	if err := s.db.WithContext(ctx).Delete(&msg).Error; err != nil {
		return Message{}, fmt.Errorf("deleting message %s: %w", messageID, err)
	}
	return msg, nil
}

// ClearMessages tombstones all of the actor's own messages in a room.
func (s *Store) ClearMessages(ctx context.Context, actorID, roomID string) error {
	ok, err := s.IsMember(ctx, roomID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s is not a member of room %s: %w", actorID, roomID, ErrForbidden)
	}
	err = s.db.WithContext(ctx).
		Where("room_id = ? AND sender_id = ?", roomID, actorID).
		Delete(&Message{}).Error
	if err != nil {
		return fmt.Errorf("clearing messages in room %s: %w", roomID, err)
	}
	return nil
}
