package storage

import (
	"time"

	"gorm.io/gorm"
)

// User mirrors the identity provider's view of an account. Rows are synced on
// login, never created by the chat flow itself.
type User struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	Username  string `gorm:"not null"`
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Room is a chat room. EncryptionKey is the base64 room key distributed to
// members through the room listing; the server stores it but never uses it to
// read message content.
type Room struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	Description   string
	CreatedByID   string `gorm:"index;not null"`
	EncryptionKey string `gorm:"not null"`
	IsActive      bool   `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RoomMember is a membership row. A banned member keeps the row so the ban
// survives re-invites.
type RoomMember struct {
	RoomID     string `gorm:"primaryKey"`
	UserID     string `gorm:"primaryKey"`
	IsBanned   bool
	JoinedAt   time.Time
	LastSeenAt time.Time
}

// Message is a stored chat message. EncryptedContent is an opaque blob.
// Deletion is a tombstone: the row survives but drops out of every read path.
type Message struct {
	ID               string `gorm:"primaryKey"`
	RoomID           string `gorm:"index;not null"`
	SenderID         string `gorm:"index;not null"`
	EncryptedContent string `gorm:"not null"`
	MessageType      string `gorm:"not null;default:text"`
	ImageURL         string
	CreatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

// Todo is a row of the cover application.
type Todo struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	Title       string `gorm:"not null"`
	Description string
	Completed   bool
	Priority    string `gorm:"not null;default:medium"`
	Color       string
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
