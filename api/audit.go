package api

import (
	"log/slog"
	"net/http"
)

// AuditEvent identifies the type of security-relevant action being logged.
// Message posts are deliberately absent: even encrypted traffic metadata
// stays out of the audit trail.
type AuditEvent string

const (
	AuditUserSynced      AuditEvent = "user_synced"
	AuditRoomCreated     AuditEvent = "room_created"
	AuditRoomDeactivated AuditEvent = "room_deactivated"
	AuditMemberAdded     AuditEvent = "member_added"
	AuditMemberBanned    AuditEvent = "member_banned"
	AuditMemberUnbanned  AuditEvent = "member_unbanned"
	AuditMemberRemoved   AuditEvent = "member_removed"
	AuditMediaUploaded   AuditEvent = "media_uploaded"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit entry for an action performed by actorID.
func (al *auditLogger) log(event AuditEvent, r *http.Request, actorID string, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("actor_id", actorID),
		slog.String("remote_addr", r.RemoteAddr),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}
