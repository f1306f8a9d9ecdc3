package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthServer answers /health (liveness, always 200) and /health/ready, and
// hosts whatever is attached with Mount, which in serve is the unsubscribe
// endpoint. Readiness turns unhealthy when the scheduler has not completed a
// tick within staleAfter, which catches a wedged batch.
type HealthServer struct {
	addr       string
	logger     *slog.Logger
	isReady    atomic.Bool
	lastTick   atomic.Int64
	staleAfter time.Duration
	router     chi.Router
	server     *http.Server
}

type healthResponse struct {
	Status   string `json:"status"`
	LastTick string `json:"last_tick,omitempty"`
}

// NewHealthServer creates a server listening on addr. A zero staleAfter disables
// the tick staleness check.
func NewHealthServer(addr string, staleAfter time.Duration, logger *slog.Logger) *HealthServer {
	h := &HealthServer{
		addr:       addr,
		logger:     logger,
		staleAfter: staleAfter,
		router:     chi.NewRouter(),
	}
	h.router.Get("/health", h.handleLiveness)
	h.router.Get("/health/ready", h.handleReadiness)
	return h
}

// Mount attaches an additional handler under pattern.
func (h *HealthServer) Mount(pattern string, handler http.Handler) {
	h.router.Mount(pattern, handler)
}

// Handler returns the router, mainly for tests.
func (h *HealthServer) Handler() http.Handler {
	return h.router
}

// Start binds addr and serves until ctx is cancelled. Shutdown waits up to
// five seconds for in-flight requests; a clean stop returns http.ErrServerClosed.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		h.logger.Error("health server failed", slog.String("addr", h.addr), slog.Any("error", err))
		return err
	}
	h.server = &http.Server{
		Handler:           h.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopped := make(chan error, 1)
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- h.server.Shutdown(shutdownCtx)
	})
	defer stop()

	h.logger.Info("health server listening", slog.String("addr", ln.Addr().String()))
	if err := h.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
	if err := <-stopped; err != nil {
		h.logger.Error("health server shutdown incomplete", slog.Any("error", err))
		return err
	}
	h.logger.Info("health server stopped")
	return http.ErrServerClosed
}

// SetReady sets the readiness state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	if h.isReady.Swap(ready) != ready {
		h.logger.Info("readiness changed", slog.Bool("ready", ready))
	}
}

// RecordTick marks a completed scheduler tick.
func (h *HealthServer) RecordTick(at time.Time) {
	h.lastTick.Store(at.UnixNano())
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	var last time.Time
	if ns := h.lastTick.Load(); ns != 0 {
		last = time.Unix(0, ns)
		resp.LastTick = last.UTC().Format(time.RFC3339)
	}

	switch {
	case !h.isReady.Load():
		resp.Status, status = "not ready", http.StatusServiceUnavailable
	case h.staleAfter > 0 && !last.IsZero() && time.Since(last) > h.staleAfter:
		resp.Status, status = "stale", http.StatusServiceUnavailable
	}
	h.write(w, status, resp)
}

func (h *HealthServer) write(w http.ResponseWriter, status int, resp healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
