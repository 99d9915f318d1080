// Package api exposes the REST and websocket surface: the todo endpoints the
// cover application shows, and the room, message, and media endpoints behind
// the chat. All authorization decisions are made here against the relational
// store; the client-side gate is presentation only.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/gorilla/websocket"

	"github.com/jmcleod/taskveil/hub"
	"github.com/jmcleod/taskveil/media"
	"github.com/jmcleod/taskveil/storage"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	store    *storage.Store
	media    *media.Store
	hub      *hub.Hub
	tokens   *TokenVerifier
	audit    *auditLogger
	upgrader websocket.Upgrader
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithCheckOrigin overrides the websocket origin check, for embedded and
// test setups that connect without browser origin headers.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(a *API) {
		a.upgrader.CheckOrigin = fn
	}
}

// New creates a new API instance.
func New(store *storage.Store, mediaStore *media.Store, h *hub.Hub, tokens *TokenVerifier, opts ...Option) *API {
	a := &API{
		store:  store,
		media:  mediaStore,
		hub:    h,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)

		r.Post("/users/sync", a.SyncUser)
		r.Get("/users", a.ListUsers)

		r.Get("/chat/access", a.CheckAccess)

		r.Get("/rooms", a.ListRooms)
		r.Post("/rooms", a.CreateRoom)
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Delete("/", a.DeactivateRoom)
			r.Get("/members", a.ListMembers)
			r.Post("/members", a.AddMember)
			r.Delete("/members/{userID}", a.RemoveMember)
			r.Post("/members/{userID}/ban", a.BanMember)
			r.Post("/members/{userID}/unban", a.UnbanMember)
			r.Get("/messages", a.ListMessages)
			r.Post("/messages", a.PostMessage)
			r.Post("/messages/clear", a.ClearMessages)
			r.Post("/typing", a.NotifyTyping)
		})
		r.Delete("/messages/{messageID}", a.DeleteMessage)

		r.Post("/uploads", a.Upload)

		r.Get("/todos", a.ListTodos)
		r.Post("/todos", a.CreateTodo)
		r.Put("/todos/{todoID}", a.UpdateTodo)
		r.Post("/todos/{todoID}/toggle", a.ToggleTodo)
		r.Delete("/todos/{todoID}", a.DeleteTodo)
	})

	return r
}

// MediaHandler serves stored blobs. Mounted outside the /api/v1 prefix so an
// image URL works directly in an <img> tag.
func (a *API) MediaHandler() http.HandlerFunc {
	return a.ServeMedia
}

// WebsocketHandler bridges room topics onto websocket connections. Mounted
// outside the /api/v1 prefix at /ws/rooms/{roomID}.
func (a *API) WebsocketHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.AuthMiddleware)
	r.Get("/rooms/{roomID}", a.ServeRoomSocket)
	return r
}
