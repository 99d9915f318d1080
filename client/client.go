// Package client implements the chat collaborator interfaces over the REST
// and websocket API, for Go programs embedding the chat the way the browser
// frontend does.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmcleod/taskveil/chat"
	"github.com/jmcleod/taskveil/gate"
)

var (
	// ErrUnauthorized indicates a missing or rejected token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the server refused the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the addressed record does not exist.
	ErrNotFound = errors.New("not found")
)

// Client talks to a taskveil server on behalf of one authenticated user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var (
	_ chat.RoomService    = (*Client)(nil)
	_ chat.MessageService = (*Client)(nil)
	_ chat.Uploader       = (*Client)(nil)
	_ chat.LiveChannel    = (*Client)(nil)
	_ gate.AccessChecker  = (*Client)(nil)
)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a Client for the server at baseURL, authenticating with the
// given bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SyncIdentity upserts the caller's user record from their token claims.
// Call it once after obtaining a token.
func (c *Client) SyncIdentity(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/v1/users/sync", nil, nil)
}

// ListRooms returns the caller's rooms with their keys. The request opts out
// of every intermediate cache so key distribution is never served stale.
func (c *Client) ListRooms(ctx context.Context) ([]chat.RoomWithKey, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/rooms", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	var rooms []chat.RoomWithKey
	if err := c.doJSON(req, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// HasAccess asks the server whether the caller may enter the chat.
func (c *Client) HasAccess(ctx context.Context) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/chat/access", nil, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// Messages returns at most limit messages for the room, newest first.
func (c *Client) Messages(ctx context.Context, roomID string, limit int) ([]chat.EncryptedMessage, error) {
	path := "/api/v1/rooms/" + roomID + "/messages?limit=" + strconv.Itoa(limit)
	var msgs []chat.EncryptedMessage
	if err := c.call(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Post submits an encrypted message.
func (c *Client) Post(ctx context.Context, msg chat.OutgoingMessage) (chat.EncryptedMessage, error) {
	var stored chat.EncryptedMessage
	err := c.call(ctx, http.MethodPost, "/api/v1/rooms/"+msg.RoomID+"/messages", msg, &stored)
	if err != nil {
		return chat.EncryptedMessage{}, err
	}
	return stored, nil
}

// Delete tombstones one of the caller's messages.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/messages/"+messageID, nil, nil)
}

// ClearMine tombstones all of the caller's messages in the room.
func (c *Client) ClearMine(ctx context.Context, roomID string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/rooms/"+roomID+"/messages/clear", nil, nil)
}

// NotifyTyping publishes a typing indicator. The display name travels in the
// token, not the request.
func (c *Client) NotifyTyping(ctx context.Context, roomID, _ string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/rooms/"+roomID+"/typing", nil, nil)
}

// Upload stores an image blob and returns its URL, resolved against the
// server base so it is fetchable as-is.
func (c *Client) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/uploads", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)

	var out struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return "", err
	}
	return c.baseURL + out.URL, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", msg, ErrUnauthorized)
	case http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, ErrForbidden)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
}
