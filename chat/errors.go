package chat

import "errors"

var (
	// ErrKeyUnavailable indicates the room's key is missing or can no
	// longer be unwrapped. It blocks only that room's send and decrypt
	// paths; other rooms stay usable.
	ErrKeyUnavailable = errors.New("room key unavailable")
	// ErrEmptyMessage indicates a send was attempted with no content.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrImageTooLarge indicates an image exceeds the upload bound.
	ErrImageTooLarge = errors.New("image too large")
	// ErrUnsupportedType indicates a non-image upload was attempted.
	ErrUnsupportedType = errors.New("unsupported content type")
	// ErrNoRoom indicates an operation that needs an open room ran
	// without one.
	ErrNoRoom = errors.New("no room open")
)
