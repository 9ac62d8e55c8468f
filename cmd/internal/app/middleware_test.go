package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  slog.Level
		wantResult string
		wantClass  string
	}{
		{status: 201, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "2xx"},
		{status: 304, wantLevel: slog.LevelInfo, wantResult: "redirect", wantClass: "3xx"},
		{status: 409, wantLevel: slog.LevelWarn, wantResult: "client_error", wantClass: "4xx"},
		{status: 500, wantLevel: slog.LevelError, wantResult: "server_error", wantClass: "5xx"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		if level != tc.wantLevel || result != tc.wantResult {
			t.Fatalf("status=%d level=%v result=%q; want level=%v result=%q", tc.status, level, result, tc.wantLevel, tc.wantResult)
		}
		if got := statusClass(tc.status); got != tc.wantClass {
			t.Fatalf("statusClass(%d)=%q want=%q", tc.status, got, tc.wantClass)
		}
	}
}

func TestWithCORS_Preflight(t *testing.T) {
	cfg := Config{
		CORSAllowedOrigins:   []string{"https://devtree.example"},
		CORSAllowCredentials: true,
		CORSMaxAgeSeconds:    600,
	}
	h := WithCORS(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("preflight must not reach the route")
	}), cfg, discardLogger())

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://devtree.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	hdr := rr.Header()
	if got := hdr.Get("Access-Control-Allow-Origin"); got != "https://devtree.example" {
		t.Fatalf("allow-origin=%q", got)
	}
	if got := hdr.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("allow-credentials=%q", got)
	}
	if got := hdr.Get("Access-Control-Allow-Methods"); got != corsAllowMethods {
		t.Fatalf("allow-methods=%q", got)
	}
	if got := hdr.Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("max-age=%q", got)
	}
}

func TestWithCORS_Rejections(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: []string{"https://devtree.example"}}

	cases := []struct {
		name   string
		origin string
	}{
		{name: "foreign origin", origin: "https://evil.example"},
		{name: "missing origin", origin: ""},
		{name: "malformed origin", origin: "not a url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
			}), cfg, discardLogger())

			req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", rr.Code)
			}
			if called {
				t.Fatalf("rejected request reached the route")
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] != msgCORSRejected {
				t.Fatalf("body=%q err=%v", rr.Body.String(), err)
			}
		})
	}
}

func TestWithCORS_OriginlessRequests(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: []string{"https://devtree.example"}}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := httptest.NewRecorder()
		WithCORS(okHandler(), cfg, discardLogger()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("probe %s: status=%d", path, rr.Code)
		}
	}

	cfg.CORSAllowAPI = true
	rr := httptest.NewRecorder()
	WithCORS(okHandler(), cfg, discardLogger()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("api client: status=%d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("originless request must not get CORS headers: %q", got)
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:*", "https://devtree.example"}

	cases := map[string]bool{
		"http://localhost:5173":     true,
		"http://localhost:3000/":    true,
		"https://localhost:5173":    false,
		"https://devtree.example":   true,
		"https://DevTree.example":   true,
		"https://devtree.example:8": false,
		"devtree.example":           false,
	}
	for origin, want := range cases {
		if got := originAllowed(origin, allowed); got != want {
			t.Fatalf("originAllowed(%q)=%v want %v", origin, got, want)
		}
	}
	if !originAllowed("https://anything.example", []string{"*"}) {
		t.Fatalf("wildcard must allow any origin")
	}
}

func TestWithSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	WithSecurityHeaders(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	want := map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"Referrer-Policy":              "no-referrer",
		"Cross-Origin-Resource-Policy": "same-site",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Fatalf("%s=%q want %q", k, got, v)
		}
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	// A valid incoming ID is propagated.
	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, incoming)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != incoming || rr.Header().Get(headerRequestID) != incoming {
		t.Fatalf("incoming id not propagated: ctx=%q header=%q", seen, rr.Header().Get(headerRequestID))
	}

	// Garbage is replaced with a fresh UUID.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "<script>")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if _, err := uuid.Parse(seen); err != nil || seen == "<script>" {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
	if rr.Header().Get(headerRequestID) != seen {
		t.Fatalf("response header does not match context id")
	}
}

func TestWithRequestLogging_RecordsRoutePattern(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{handle}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	reg := newRegistry()
	h := WithRequestLogging(mux, log, newHTTPMetrics(reg))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ghost", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}

	out := buf.String()
	for _, want := range []string{`"status":404`, `"status_class":"4xx"`, `"result":"client_error"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %s: %s", want, out)
		}
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "devtree_http_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "route" && lp.GetValue() == "GET /{handle}" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatalf("route pattern label not recorded")
	}
}
