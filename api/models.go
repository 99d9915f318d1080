package api

import (
	"time"

	"github.com/jmcleod/taskveil/chat"
	"github.com/jmcleod/taskveil/storage"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AccessResponse answers the chat access check.
type AccessResponse struct {
	Allowed bool `json:"allowed"`
}

// UserResponse is the admin-facing view of a user.
type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// MemberResponse is the admin-facing view of a membership.
type MemberResponse struct {
	UserID     string    `json:"user_id"`
	IsBanned   bool      `json:"is_banned"`
	JoinedAt   time.Time `json:"joined_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// UploadResponse returns the stored blob's address.
type UploadResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// TodoResponse is the wire form of a todo.
type TodoResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority"`
	Color       string     `json:"color,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TodoListResponse is a paginated todo listing.
type TodoListResponse struct {
	Todos []TodoResponse `json:"todos"`
	PaginationMeta
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

type postMessageRequest struct {
	EncryptedContent string `json:"encrypted_content"`
	MessageType      string `json:"message_type"`
	ImageURL         string `json:"image_url,omitempty"`
}

type todoRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority"`
	Color       string     `json:"color"`
	DueDate     *time.Time `json:"due_date"`
}

func roomToAPI(room storage.Room) chat.RoomWithKey {
	return chat.RoomWithKey{
		RoomSummary: chat.RoomSummary{
			ID:          room.ID,
			Name:        room.Name,
			Description: room.Description,
			CreatedAt:   room.CreatedAt,
		},
		RawKey: room.EncryptionKey,
	}
}

func messageToAPI(msg storage.Message) chat.EncryptedMessage {
	return chat.EncryptedMessage{
		ID:               msg.ID,
		RoomID:           msg.RoomID,
		SenderID:         msg.SenderID,
		EncryptedContent: msg.EncryptedContent,
		MessageType:      msg.MessageType,
		ImageURL:         msg.ImageURL,
		CreatedAt:        msg.CreatedAt,
	}
}

func userToAPI(u storage.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Username: u.Username, IsAdmin: u.IsAdmin}
}

func memberToAPI(m storage.RoomMember) MemberResponse {
	return MemberResponse{
		UserID:     m.UserID,
		IsBanned:   m.IsBanned,
		JoinedAt:   m.JoinedAt,
		LastSeenAt: m.LastSeenAt,
	}
}

func todoToAPI(todo storage.Todo) TodoResponse {
	return TodoResponse{
		ID:          todo.ID,
		Title:       todo.Title,
		Description: todo.Description,
		Completed:   todo.Completed,
		Priority:    todo.Priority,
		Color:       todo.Color,
		DueDate:     todo.DueDate,
		CreatedAt:   todo.CreatedAt,
		UpdatedAt:   todo.UpdatedAt,
	}
}
