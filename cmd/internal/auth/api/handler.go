package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"devtree/cmd/identity"
)

// Identity is the identity surface driven by the HTTP routes. *identity.Service satisfies it.
type Identity interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.User, error)
	Authenticate(ctx context.Context, email, plain string) (string, error)
	LookupByHandle(ctx context.Context, handle string) (identity.PublicProfile, error)
	CheckHandleAvailability(ctx context.Context, handle string) (bool, error)
	CurrentUser(ctx context.Context, token string) (identity.PrivateProfile, error)
}

// Handler serves the identity routes.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	svc     Identity
	metrics *Metrics
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithMetrics counts every operation outcome on m.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil || m == nil {
			return
		}
		h.metrics = m
	}
}

// NewHandler constructs the handler. svc is required.
func NewHandler(log *slog.Logger, svc Identity, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: identity service is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	h := &Handler{log: log, cfg: cfg, svc: svc}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register mounts the identity routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /search", h.handleSearch)
	mux.HandleFunc("GET /user", h.handleCurrentUser)
	mux.HandleFunc("GET /{handle}", h.handleProfile)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "register"

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.badBody(w, op, err)
		return
	}

	u, err := h.svc.Register(r.Context(), identity.RegisterInput{
		Handle:   req.Handle,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, r, op, err)
		return
	}

	h.auditRegistered(r, u.ID)
	h.metrics.observe(op, "ok")
	writeText(w, http.StatusCreated, msgRegistered)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "login"

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.badBody(w, op, err)
		return
	}

	tok, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidCredentials(err) {
			h.auditLoginFailed(r, identity.NormalizeEmail(req.Email), loginFailReason(err))
		}
		h.fail(w, r, op, err)
		return
	}

	h.auditLoginSucceeded(r, identity.NormalizeEmail(req.Email))
	h.metrics.observe(op, "ok")
	writeText(w, http.StatusOK, tok)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	const op = "profile"

	profile, err := h.svc.LookupByHandle(r.Context(), r.PathValue("handle"))
	if err != nil {
		h.fail(w, r, op, err)
		return
	}

	h.metrics.observe(op, "ok")
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "search"

	var req searchRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.badBody(w, op, err)
		return
	}

	handle := identity.NormalizeHandle(req.Handle)
	available, err := h.svc.CheckHandleAvailability(r.Context(), handle)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	if !available {
		h.metrics.observe(op, "taken")
		writeError(w, http.StatusConflict, identity.HandleTakenMessage(handle))
		return
	}

	h.metrics.observe(op, "ok")
	writeText(w, http.StatusOK, identity.HandleAvailableMessage(handle))
}

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	const op = "current_user"

	tok, ok := h.requireAuth(w, r, op)
	if !ok {
		return
	}

	profile, err := h.svc.CurrentUser(r.Context(), tok)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}

	h.metrics.observe(op, "ok")
	writeJSON(w, http.StatusOK, profile)
}

// ---- helpers ----

// requireAuth extracts the bearer token. Verification happens in the service.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	tok := bearerToken(r)
	if tok == "" {
		h.metrics.observe(op, "unauthorized")
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return "", false
	}
	return tok, true
}

func (h *Handler) badBody(w http.ResponseWriter, op string, err error) {
	h.metrics.observe(op, "invalid")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, msgInvalidBody)
		return
	}
	writeError(w, http.StatusBadRequest, msgInvalidBody)
}

// fail maps a service error to exactly one response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if v, ok := identity.AsValidation(err); ok {
		h.metrics.observe(op, "invalid")
		writeValidation(w, v.Fields)
		return
	}

	switch {
	case identity.IsDuplicateEmail(err):
		h.metrics.observe(op, "conflict")
		writeError(w, http.StatusConflict, msgDuplicateEmail)
	case identity.IsHandleTaken(err):
		h.metrics.observe(op, "conflict")
		writeError(w, http.StatusConflict, msgHandleTaken)
	case identity.IsNotFound(err):
		h.metrics.observe(op, "not_found")
		writeError(w, http.StatusNotFound, msgUserNotFound)
	case identity.IsInvalidCredentials(err):
		h.metrics.observe(op, "unauthorized")
		writeError(w, http.StatusUnauthorized, msgWrongPassword)
	case identity.IsInvalidToken(err):
		h.metrics.observe(op, "unauthorized")
		writeError(w, http.StatusUnauthorized, msgInvalidToken)
	default:
		h.metrics.observe(op, "error")
		h.log.ErrorContext(r.Context(), "auth."+op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func loginFailReason(err error) string {
	if identity.IsNotFound(err) {
		return "not_found"
	}
	return "bad_password"
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
