package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ServeRoomSocket upgrades the connection and bridges the room's event topic
// onto it. Membership is checked before the upgrade; a non-member never gets
// a socket.
func (a *API) ServeRoomSocket(w http.ResponseWriter, r *http.Request) {
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

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		return
	}
	a.hub.ServeConn(r.Context(), conn, roomID)
}
