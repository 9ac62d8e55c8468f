package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"devtree/cmd/identity"
	authapi "devtree/cmd/internal/auth/api"
	"devtree/cmd/internal/realtime"
)

const readinessTimeout = 2 * time.Second

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	pinger identity.Pinger,
	reg *prometheus.Registry,
	ws *realtime.SearchGateway,
	auth *authapi.Handler,
) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", metricsHandler(reg))

	if ws != nil {
		mux.Handle("GET /search/ws", ws)
	}
	if auth != nil {
		auth.Register(mux)
	}
}
