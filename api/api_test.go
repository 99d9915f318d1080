package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/taskveil/chat"
	"github.com/jmcleod/taskveil/crypto"
	"github.com/jmcleod/taskveil/hub"
	"github.com/jmcleod/taskveil/media"
	"github.com/jmcleod/taskveil/storage"
)

type testAPI struct {
	api    *API
	srv    *httptest.Server
	store  *storage.Store
	tokens map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mediaStore, err := media.Open(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mediaStore.Close() })

	verifier := NewTokenVerifier([]byte("0123456789abcdef0123456789abcdef"))
	a := New(store, mediaStore, hub.New(), verifier)

	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	r.Get("/media/{mediaID}", a.ServeMedia)
	r.Mount("/ws", a.WebsocketHandler())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ta := &testAPI{api: a, srv: srv, store: store, tokens: make(map[string]string)}
	for _, id := range []Identity{
		{UserID: "admin", Email: "admin@example.com", Username: "Admin", Admin: true},
		{UserID: "alice", Email: "alice@example.com", Username: "Alice"},
		{UserID: "bob", Email: "bob@example.com", Username: "Bob"},
	} {
		token, err := verifier.Sign(id, time.Hour)
		require.NoError(t, err)
		ta.tokens[id.UserID] = token
		resp := ta.do(t, http.MethodPost, "/api/v1/users/sync", id.UserID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	require.NoError(t, store.SetAdmin(context.Background(), "admin", true))
	return ta
}

// do issues a request authenticated as the given user. An empty user sends
// no token.
func (ta *testAPI) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, ta.srv.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+ta.tokens[user])
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ta.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// createRoom makes a room as admin and adds the given members.
func (ta *testAPI) createRoom(t *testing.T, name string, members ...string) chat.RoomWithKey {
	t.Helper()
	resp := ta.do(t, http.MethodPost, "/api/v1/rooms", "admin", createRoomRequest{Name: name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	room := decodeBody[chat.RoomWithKey](t, resp)
	for _, m := range members {
		resp := ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/members", "admin", addMemberRequest{UserID: m})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()
	}
	return room
}

func TestAuthRequired(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodGet, "/api/v1/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, ta.srv.URL+"/api/v1/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = ta.srv.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestListUsers_AdminOnly(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodGet, "/api/v1/users", "admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := decodeBody[[]UserResponse](t, resp)
	assert.Len(t, users, 3)

	resp = ta.do(t, http.MethodGet, "/api/v1/users", "alice", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestRoomLifecycle(t *testing.T) {
	ta := newTestAPI(t)
	room := ta.createRoom(t, "general", "alice")

	// The room key is generated server-side and must decode.
	_, err := crypto.DecodeKey(room.RawKey)
	require.NoError(t, err)

	// Room creation is admin only.
	resp := ta.do(t, http.MethodPost, "/api/v1/rooms", "alice", createRoomRequest{Name: "covert"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Members see the room with its key; non-members see nothing.
	resp = ta.do(t, http.MethodGet, "/api/v1/rooms", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	rooms := decodeBody[[]chat.RoomWithKey](t, resp)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.RawKey, rooms[0].RawKey)

	resp = ta.do(t, http.MethodGet, "/api/v1/rooms", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]chat.RoomWithKey](t, resp))

	// Access mirrors membership, except admins always pass.
	for user, want := range map[string]bool{"alice": true, "bob": false, "admin": true} {
		resp := ta.do(t, http.MethodGet, "/api/v1/chat/access", user, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, want, decodeBody[AccessResponse](t, resp).Allowed, user)
	}

	// Deactivation removes the room from listings.
	resp = ta.do(t, http.MethodDelete, "/api/v1/rooms/"+room.ID, "admin", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodGet, "/api/v1/rooms", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]chat.RoomWithKey](t, resp))
}

func TestMemberModeration(t *testing.T) {
	ta := newTestAPI(t)
	room := ta.createRoom(t, "general", "alice")

	resp := ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/members/alice/ban", "admin", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// A banned member cannot post and cannot be re-added.
	resp = ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", "alice",
		postMessageRequest{EncryptedContent: "blob", MessageType: "text"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/members", "admin", addMemberRequest{UserID: "alice"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/members/alice/unban", "admin", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	members := decodeBody[[]MemberResponse](t,
		ta.do(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/members", "admin", nil))
	require.Len(t, members, 2) // admin is a member from creation
}

func TestMessageFlow(t *testing.T) {
	ta := newTestAPI(t)
	room := ta.createRoom(t, "general", "alice", "bob")

	resp := ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", "alice",
		postMessageRequest{EncryptedContent: "opaque-blob", MessageType: "text"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	posted := decodeBody[chat.EncryptedMessage](t, resp)
	assert.Equal(t, "alice", posted.SenderID)

	resp = ta.do(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/messages", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decodeBody[[]chat.EncryptedMessage](t, resp)
	require.Len(t, msgs, 1)
	assert.Equal(t, "opaque-blob", msgs[0].EncryptedContent)

	// Only the sender may delete.
	resp = ta.do(t, http.MethodDelete, "/api/v1/messages/"+posted.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodDelete, "/api/v1/messages/"+posted.ID, "alice", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/messages", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]chat.EncryptedMessage](t, resp))
}

func TestClearMessages(t *testing.T) {
	ta := newTestAPI(t)
	room := ta.createRoom(t, "general", "alice", "bob")

	for _, user := range []string{"alice", "bob"} {
		resp := ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", user,
			postMessageRequest{EncryptedContent: "blob-" + user, MessageType: "text"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages/clear", "alice", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/messages", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decodeBody[[]chat.EncryptedMessage](t, resp)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob", msgs[0].SenderID)
}

func TestTyping_PublishesToSubscribers(t *testing.T) {
	ta := newTestAPI(t)
	room := ta.createRoom(t, "general", "alice")

	sub := ta.api.hub.Subscribe(room.ID)
	defer sub.Close()

	resp := ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/typing", "alice", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	select {
	case ev := <-sub.Events():
		assert.Equal(t, chat.EventUserTyping, ev.Kind)
		assert.Equal(t, "alice", ev.ActorID)
		assert.Equal(t, "Alice", ev.DisplayName)
	case <-time.After(time.Second):
		t.Fatal("typing event not published")
	}

	resp = ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/typing", "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestWebsocket_DeliversRoomEvents(t *testing.T) {
	ta := newTestAPI(t)
	room := ta.createRoom(t, "general", "alice", "bob")

	wsURL := "ws" + strings.TrimPrefix(ta.srv.URL, "http") +
		"/ws/rooms/" + room.ID + "?token=" + ta.tokens["bob"]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := ta.do(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", "alice",
		postMessageRequest{EncryptedContent: "blob", MessageType: "text"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev chat.Event
	require.NoError(t, json.Unmarshal(frame, &ev))
	assert.Equal(t, chat.EventNewMessage, ev.Kind)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "blob", ev.Message.EncryptedContent)
}

func TestWebsocket_NonMemberRejected(t *testing.T) {
	ta := newTestAPI(t)
	room := ta.createRoom(t, "general", "alice")

	wsURL := "ws" + strings.TrimPrefix(ta.srv.URL, "http") +
		"/ws/rooms/" + room.ID + "?token=" + ta.tokens["bob"]
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUploadAndServe(t *testing.T) {
	ta := newTestAPI(t)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))

	req, err := http.NewRequest(http.MethodPost, ta.srv.URL+"/api/v1/uploads", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ta.tokens["alice"])
	req.Header.Set("Content-Type", "image/png")
	resp, err := ta.srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	upload := decodeBody[UploadResponse](t, resp)
	require.NotEmpty(t, upload.URL)

	resp, err = ta.srv.Client().Get(ta.srv.URL + upload.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
}

func TestUpload_RejectsNonImages(t *testing.T) {
	ta := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPost, ta.srv.URL+"/api/v1/uploads", strings.NewReader("plain"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ta.tokens["alice"])
	req.Header.Set("Content-Type", "text/plain")
	resp, err := ta.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTodos(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodPost, "/api/v1/todos", "alice",
		todoRequest{Title: "water plants", Priority: "high"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[TodoResponse](t, resp)

	resp = ta.do(t, http.MethodPost, "/api/v1/todos", "alice", todoRequest{Title: "buy milk"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodGet, "/api/v1/todos?limit=1", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[TodoListResponse](t, resp)
	assert.Len(t, page.Todos, 1)
	assert.True(t, page.HasMore)

	resp = ta.do(t, http.MethodPost, "/api/v1/todos/"+created.ID+"/toggle", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[TodoResponse](t, resp).Completed)

	// Another user's todos are invisible and untouchable.
	resp = ta.do(t, http.MethodGet, "/api/v1/todos", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[TodoListResponse](t, resp).Todos)

	resp = ta.do(t, http.MethodDelete, "/api/v1/todos/"+created.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = ta.do(t, http.MethodDelete, "/api/v1/todos/"+created.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}
