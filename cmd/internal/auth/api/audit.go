package authapi

import (
	"log/slog"
	"net/http"
	"strings"
)

// Audit events share the "auth.audit" message so log pipelines can route them
// on one key; action tells them apart.
const auditMsg = "auth.audit"

func (h *Handler) auditRegistered(r *http.Request, userID string) {
	h.audit(r, "register", slog.String("user_id", userID))
}

func (h *Handler) auditLoginSucceeded(r *http.Request, email string) {
	h.audit(r, "login.success", slog.String("identifier", email))
}

func (h *Handler) auditLoginFailed(r *http.Request, email, reason string) {
	h.audit(r, "login.failed", slog.String("identifier", email), slog.String("reason", reason))
}

func (h *Handler) audit(r *http.Request, action string, attrs ...slog.Attr) {
	if h == nil || h.log == nil {
		return
	}
	base := []slog.Attr{
		slog.String("action", action),
		slog.String("ip", ipString(clientIP(r, h.cfg.TrustProxy))),
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		base = append(base, slog.String("user_agent", ua))
	}
	h.log.LogAttrs(r.Context(), slog.LevelInfo, auditMsg, append(base, attrs...)...)
}
