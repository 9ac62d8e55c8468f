// Package main provides a CI-friendly WebSocket smoke test for DevTree live search.
//
// It validates:
//   - handshake + subprotocol selection
//   - an unused handle is reported available
//   - a reserved handle is reported unavailable
//   - a malformed frame gets an in-band error and the connection survives
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	searchSubprotocol = "devtree.search.v1"
	maxReadBytes      = 4 << 10
)

type searchResult struct {
	Handle    string `json:"handle"`
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

func main() {
	var (
		wsURL    = flag.String("url", "ws://127.0.0.1:4000/search/ws", "WebSocket URL")
		origin   = flag.String("origin", "http://localhost:5173", "Origin header to send (browser-like WS handshake)")
		reserved = flag.String("reserved", "search", "A handle the server must report as unavailable")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	conn := mustConnect(root, *wsURL, *origin, *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "smoke done") }()

	free := fmt.Sprintf("smoke%d", time.Now().UnixNano()%1_000_000)
	res := mustSearch(root, conn, fmt.Sprintf(`{"handle":%q}`, free), *timeout)
	if !res.Available || res.Handle != free {
		fatalf("free handle %q: unexpected result %+v", free, res)
	}
	if *verbose {
		fmt.Printf("free: %+v\n", res)
	}

	res = mustSearch(root, conn, fmt.Sprintf(`{"handle":%q}`, *reserved), *timeout)
	if res.Available {
		fatalf("reserved handle %q reported available", *reserved)
	}
	if *verbose {
		fmt.Printf("reserved: %+v\n", res)
	}

	res = mustSearch(root, conn, `{"handle":`, *timeout)
	if res.Available || strings.TrimSpace(res.Message) == "" {
		fatalf("malformed frame: unexpected result %+v", res)
	}

	// The connection must still answer after one bad frame.
	res = mustSearch(root, conn, fmt.Sprintf(`{"handle":%q}`, free), *timeout)
	if !res.Available {
		fatalf("connection did not recover after a bad frame: %+v", res)
	}

	fmt.Printf("OK: url=%s free=%s reserved=%s\n", *wsURL, free, *reserved)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{searchSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != searchSubprotocol {
		_ = conn.CloseNow()
		fatalf("subprotocol mismatch: got=%q want=%q", got, searchSubprotocol)
	}

	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustSearch(parent context.Context, conn *websocket.Conn, frame string, stepTimeout time.Duration) searchResult {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		fatalf("write %s: %v", frame, err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read reply to %s: %v (close_status=%d)", frame, err, websocket.CloseStatus(err))
	}

	var res searchResult
	if err := json.Unmarshal(data, &res); err != nil {
		fatalf("unmarshal reply %q: %v", string(data), err)
	}
	return res
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "ws-smoke: "+format+"\n", args...)
	os.Exit(1)
}
