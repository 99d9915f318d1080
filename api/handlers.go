package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/taskveil/chat"
	"github.com/jmcleod/taskveil/media"
	"github.com/jmcleod/taskveil/storage"
)

// SyncUser upserts the caller's user row from the verified token claims.
// Clients call it once after login so admins can find the account.
func (a *API) SyncUser(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}
	user, err := a.store.SyncUser(r.Context(), id.UserID, id.Email, id.Username)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditUserSynced, r, id.UserID)
	writeJSON(w, http.StatusOK, userToAPI(user))
}

// ListUsers returns all users. Admin only.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	user, err := a.store.UserByID(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	if !user.IsAdmin {
		writeError(w, http.StatusForbidden, "admin required")
		return
	}
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userToAPI(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// CheckAccess reports whether the caller may enter the chat: an admin, or a
// member of at least one room. The response carries no room detail; a denied
// caller learns nothing about what exists.
func (a *API) CheckAccess(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	user, err := a.store.UserByID(r.Context(), id.UserID)
	if err == nil && user.IsAdmin {
		writeJSON(w, http.StatusOK, AccessResponse{Allowed: true})
		return
	}
	rooms, err := a.store.RoomsForUser(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AccessResponse{Allowed: len(rooms) > 0})
}

// ListRooms returns the caller's rooms with their keys. The response is
// marked uncacheable: key distribution must never be served stale.
func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	rooms, err := a.store.RoomsForUser(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]chat.RoomWithKey, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomToAPI(room))
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, out)
}

// CreateRoom creates a room. Admin only, enforced by the store.
func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	room, err := a.store.CreateRoom(r.Context(), id.UserID, req.Name, req.Description)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditRoomCreated, r, id.UserID, slog.String("room_id", room.ID))
	writeJSON(w, http.StatusCreated, roomToAPI(room))
}

// DeactivateRoom soft-deactivates a room. Admin only.
func (a *API) DeactivateRoom(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	if err := a.store.DeactivateRoom(r.Context(), id.UserID, roomID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditRoomDeactivated, r, id.UserID, slog.String("room_id", roomID))
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers returns a room's membership. Admin only.
func (a *API) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	members, err := a.store.Members(r.Context(), id.UserID, chi.URLParam(r, "roomID"))
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberToAPI(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// AddMember adds a user to a room. Admin only.
func (a *API) AddMember(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.store.AddMember(r.Context(), id.UserID, roomID, req.UserID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditMemberAdded, r, id.UserID,
		slog.String("room_id", roomID), slog.String("user_id", req.UserID))
	w.WriteHeader(http.StatusNoContent)
}

// BanMember bans a member. Admin only.
func (a *API) BanMember(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	userID := chi.URLParam(r, "userID")
	if err := a.store.BanMember(r.Context(), id.UserID, roomID, userID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditMemberBanned, r, id.UserID,
		slog.String("room_id", roomID), slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

// UnbanMember lifts a ban. Admin only.
func (a *API) UnbanMember(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	userID := chi.URLParam(r, "userID")
	if err := a.store.UnbanMember(r.Context(), id.UserID, roomID, userID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditMemberUnbanned, r, id.UserID,
		slog.String("room_id", roomID), slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember removes a member. Admin only.
func (a *API) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	userID := chi.URLParam(r, "userID")
	if err := a.store.RemoveMember(r.Context(), id.UserID, roomID, userID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditMemberRemoved, r, id.UserID,
		slog.String("room_id", roomID), slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages returns a bounded page of the room's messages, newest first.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	limit := storage.DefaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	msgs, err := a.store.Messages(r.Context(), id.UserID, roomID, limit)
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]chat.EncryptedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToAPI(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// PostMessage stores a message and fans it out to the room's subscribers.
func (a *API) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err := a.store.CreateMessage(r.Context(), id.UserID, roomID,
		req.EncryptedContent, req.MessageType, req.ImageURL)
	if err != nil {
		mapError(w, err)
		return
	}
	wire := messageToAPI(msg)
	a.hub.Publish(roomID, chat.Event{Kind: chat.EventNewMessage, Message: &wire})
	writeJSON(w, http.StatusCreated, wire)
}

// DeleteMessage tombstones one of the caller's messages and announces the
// deletion to the room.
func (a *API) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	messageID := chi.URLParam(r, "messageID")
	msg, err := a.store.DeleteMessage(r.Context(), id.UserID, messageID)
	if err != nil {
		mapError(w, err)
		return
	}
	a.hub.Publish(msg.RoomID, chat.Event{Kind: chat.EventMessageDeleted, MessageID: messageID})
	w.WriteHeader(http.StatusNoContent)
}

// ClearMessages tombstones all of the caller's messages in the room and
// announces the clear.
func (a *API) ClearMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	if err := a.store.ClearMessages(r.Context(), id.UserID, roomID); err != nil {
		mapError(w, err)
		return
	}
	a.hub.Publish(roomID, chat.Event{Kind: chat.EventMessagesCleared, ActorID: id.UserID})
	w.WriteHeader(http.StatusNoContent)
}

// NotifyTyping publishes a typing indicator to the room.
func (a *API) NotifyTyping(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	roomID := chi.URLParam(r, "roomID")
	ok, err := a.store.IsMember(r.Context(), roomID, id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}
	a.hub.Publish(roomID, chat.Event{
		Kind:        chat.EventUserTyping,
		ActorID:     id.UserID,
		DisplayName: id.Username,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Upload stores an image blob and returns its address. The body is the raw
// image; the MIME type comes from the Content-Type header.
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxBlobBytes+1)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	blobID, err := a.media.Put(data, r.Header.Get("Content-Type"))
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditMediaUploaded, r, id.UserID, slog.String("blob_id", blobID))
	writeJSON(w, http.StatusCreated, UploadResponse{
		ID:  blobID,
		URL: "/media/" + blobID,
	})
}

// ServeMedia serves a stored blob. Blob IDs are unguessable; the URL itself
// only ever travels inside encrypted messages.
func (a *API) ServeMedia(w http.ResponseWriter, r *http.Request) {
	blob, err := a.media.Get(chi.URLParam(r, "mediaID"))
	if err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(blob.Data)
}

// ListTodos returns a filtered, paginated page of the caller's todos.
func (a *API) ListTodos(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	limit, offset := parsePagination(r)
	filter := storage.TodoFilter{
		Priority: r.URL.Query().Get("priority"),
		// Fetch one past the page to learn whether more remain.
		Limit:  limit + 1,
		Offset: offset,
	}
	if v := r.URL.Query().Get("completed"); v != "" {
		completed := v == "true"
		filter.Completed = &completed
	}

	todos, err := a.store.Todos(r.Context(), id.UserID, filter)
	if err != nil {
		mapError(w, err)
		return
	}
	hasMore := len(todos) > limit
	if hasMore {
		todos = todos[:limit]
	}
	out := make([]TodoResponse, 0, len(todos))
	for _, todo := range todos {
		out = append(out, todoToAPI(todo))
	}
	writeJSON(w, http.StatusOK, TodoListResponse{
		Todos:          out,
		PaginationMeta: PaginationMeta{Limit: limit, Offset: offset, HasMore: hasMore},
	})
}

// CreateTodo creates a todo for the caller.
func (a *API) CreateTodo(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	todo, err := a.store.CreateTodo(r.Context(), id.UserID, todoInput(req))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, todoToAPI(todo))
}

// UpdateTodo replaces a todo's fields.
func (a *API) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	todo, err := a.store.UpdateTodo(r.Context(), id.UserID, chi.URLParam(r, "todoID"), todoInput(req))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todoToAPI(todo))
}

// ToggleTodo flips a todo's completed flag.
func (a *API) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	todo, err := a.store.ToggleTodo(r.Context(), id.UserID, chi.URLParam(r, "todoID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todoToAPI(todo))
}

// DeleteTodo removes a todo.
func (a *API) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := a.store.DeleteTodo(r.Context(), id.UserID, chi.URLParam(r, "todoID")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func todoInput(req todoRequest) storage.TodoInput {
	return storage.TodoInput{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
		Priority:    req.Priority,
		Color:       req.Color,
		DueDate:     req.DueDate,
	}
}
