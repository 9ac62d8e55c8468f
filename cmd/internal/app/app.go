// Package app wires the DevTree server runtime: config, logging, storage,
// HTTP routes, the live search gateway, metrics and tracing.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"devtree/cmd/identity"
	authapi "devtree/cmd/internal/auth/api"
	"devtree/cmd/internal/realtime"
	"devtree/cmd/security/token"
)

// App is the DevTree server runtime: it owns the store, the identity service
// and the HTTP handler chain.
type App struct {
	cfg Config
	log Logger

	store  openedStore
	svc    *identity.Service
	tokens *token.Service

	registry *prometheus.Registry
	handler  http.Handler

	shutdownTracing func(context.Context) error
}

// New constructs a fully wired App. The caller must Close it (Run does so).
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shutdownTracing, err := SetupTracing(ctx, cfg.OTELEndpoint, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	hasher, tokens, err := newSecurity(cfg)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	svc, err := identity.NewService(st.store, hasher, tokens,
		identity.WithLogger(log),
		identity.WithTracer(otel.Tracer("devtree/identity")),
		identity.WithMinPasswordLength(cfg.Password.Policy.MinLength),
	)
	if err != nil {
		_ = st.close(ctx)
		_ = shutdownTracing(ctx)
		return nil, err
	}

	a := &App{
		cfg:             cfg,
		log:             log,
		store:           st,
		svc:             svc,
		tokens:          tokens,
		registry:        newRegistry(),
		shutdownTracing: shutdownTracing,
	}
	if err := a.buildHandler(); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) buildHandler() error {
	auth, err := authapi.NewHandler(a.log, a.svc, a.cfg.API, authapi.WithMetrics(authapi.NewMetrics(a.registry)))
	if err != nil {
		return err
	}
	ws, err := realtime.NewSearchGateway(a.log, a.svc, a.cfg.Realtime, realtime.WithMetrics(realtime.NewMetrics(a.registry)))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.store.pinger, a.registry, ws, auth)

	// Outermost first: request ID, security headers, logging/metrics, CORS, routes.
	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithRequestLogging(h, a.log, newHTTPMetrics(a.registry))
	h = WithSecurityHeaders(h)
	h = WithRequestID(h)
	a.handler = h
	return nil
}

// Handler returns the full middleware chain.
func (a *App) Handler() http.Handler { return a.handler }

// Service exposes the identity service (CLI user management).
func (a *App) Service() *identity.Service { return a.svc }

// Tokens exposes the token service (CLI token verification).
func (a *App) Tokens() *token.Service { return a.tokens }

// Close releases the store and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.store.close != nil {
		if err := a.store.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.cfg.Store, "token_signer", a.cfg.Token.Signer)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		_ = a.Close(shutdownCtx)
		return err
	}

	if err := a.Close(shutdownCtx); err != nil {
		a.log.Error("server.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
