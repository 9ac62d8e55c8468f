package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"devtree/cmd/identity"

	"github.com/coder/websocket"
)

// SubprotocolSearchV1 must be offered by clients of the live search endpoint.
const SubprotocolSearchV1 = "devtree.search.v1"

const (
	msgBadFrame = "Mensaje no válido"
	msgInternal = "Error interno"
)

// HandleChecker answers handle availability queries. *identity.Service satisfies it.
type HandleChecker interface {
	CheckHandleAvailability(ctx context.Context, handle string) (bool, error)
}

// SearchRequest is one client frame.
type SearchRequest struct {
	Handle string `json:"handle"`
}

// SearchResult answers exactly one SearchRequest.
type SearchResult struct {
	Handle    string `json:"handle"`
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// SearchGateway is the WebSocket entrypoint for live handle search.
//
// It enforces origin policy, subprotocol selection, frame limits and heartbeats,
// and answers every decoded frame with one SearchResult.
type SearchGateway struct {
	log     *slog.Logger
	checker HandleChecker
	cfg     Config
	metrics *Metrics

	// Derived for websocket.Accept origin checks.
	originPatterns []string
}

// GatewayOption configures optional gateway dependencies.
type GatewayOption func(*SearchGateway)

// WithMetrics records connection and search counters.
func WithMetrics(m *Metrics) GatewayOption {
	return func(g *SearchGateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// NewSearchGateway constructs a gateway. checker is required.
func NewSearchGateway(log *slog.Logger, checker HandleChecker, cfg Config, opts ...GatewayOption) (*SearchGateway, error) {
	if checker == nil {
		return nil, errors.New("realtime: handle checker is required")
	}
	if log == nil {
		log = slog.Default()
	}

	cfg = cfg.normalized()
	g := &SearchGateway{
		log:            log,
		checker:        checker,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *SearchGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and answers search frames until the peer leaves.
func (g *SearchGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Server-wide read/write timeouts must not cut long-lived connections; the
	// gateway bounds every read and write itself.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{SubprotocolSearchV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Info("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != SubprotocolSearchV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", SubprotocolSearchV1)
		g.metrics.closed("subprotocol")
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	g.metrics.connOpened()
	defer g.metrics.connClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeat(ctx, conn, shutdown)
	}()

	badFrames := 0

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		req, err := readRequest(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose, readErrConnClosed:
				break readLoop
			case readErrCtxDone:
				g.metrics.closed("idle")
				shutdown(websocket.StatusNormalClosure, "idle timeout")
				break readLoop
			case readErrBadFrame:
				badFrames++
				g.metrics.search("bad_frame")
				if badFrames >= g.cfg.MaxBadFrames {
					g.log.Info("ws.close.policy", "remote", r.RemoteAddr, "bad_frames", badFrames)
					g.metrics.closed("policy")
					shutdown(websocket.StatusPolicyViolation, "too many invalid frames")
					break readLoop
				}
				if err := writeResult(ctx, conn, SearchResult{Message: msgBadFrame}, g.cfg.WriteTimeout); err != nil {
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					break readLoop
				}
				continue readLoop
			default:
				// Oversized frames land here; the library has already closed with StatusMessageTooBig.
				g.log.Info("ws.read.fail", "remote", r.RemoteAddr, "close_status", websocket.CloseStatus(err), "err", err)
				g.metrics.closed("read_error")
				shutdown(websocket.StatusPolicyViolation, "read failed")
				break readLoop
			}
		}

		res, err := g.search(ctx, req.Handle)
		if err != nil {
			g.log.Error("ws.search.fail", "err", err)
			g.metrics.search("error")
			_ = writeResult(ctx, conn, SearchResult{Handle: res.Handle, Message: msgInternal}, g.cfg.WriteTimeout)
			g.metrics.closed("internal")
			shutdown(websocket.StatusInternalError, "internal error")
			break readLoop
		}

		if err := writeResult(ctx, conn, res, g.cfg.WriteTimeout); err != nil {
			g.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
			shutdown(websocket.StatusAbnormalClosure, "write failed")
			break readLoop
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *SearchGateway) heartbeat(ctx context.Context, conn *websocket.Conn, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(g.cfg.HeartbeatInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				g.log.Info("ws.ping.fail", "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					g.metrics.closed("heartbeat")
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// search maps one availability check onto a result frame.
// Validation failures are answered in-band; only infrastructure errors are returned.
func (g *SearchGateway) search(ctx context.Context, raw string) (SearchResult, error) {
	handle := identity.NormalizeHandle(raw)
	res := SearchResult{Handle: handle}

	available, err := g.checker.CheckHandleAvailability(ctx, handle)
	if err != nil {
		if v, ok := identity.AsValidation(err); ok && len(v.Fields) > 0 {
			g.metrics.search("invalid")
			res.Message = v.Fields[0].Msg
			return res, nil
		}
		return res, err
	}

	res.Available = available
	if available {
		g.metrics.search("available")
		res.Message = identity.HandleAvailableMessage(handle)
	} else {
		g.metrics.search("taken")
		res.Message = identity.HandleTakenMessage(handle)
	}
	return res, nil
}

var errBadFrame = errors.New("bad frame")

func readRequest(ctx context.Context, conn *websocket.Conn) (SearchRequest, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return SearchRequest{}, err
	}
	if mt != websocket.MessageText {
		return SearchRequest{}, fmt.Errorf("%w: unsupported message type %v", errBadFrame, mt)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var req SearchRequest
	if err := dec.Decode(&req); err != nil {
		return SearchRequest{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return SearchRequest{}, fmt.Errorf("%w: extra data after JSON object", errBadFrame)
	}
	return req, nil
}

func writeResult(parent context.Context, conn *websocket.Conn, res SearchResult, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadFrame
)

func classifyReadErr(err error) readErrKind {
	if errors.Is(err, errBadFrame) {
		return readErrBadFrame
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
