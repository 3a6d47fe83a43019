package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/attention/l6metrics"
	sqlite "github.com/banshee-data/attention.report/internal/attention/storage/sqlite"
	"github.com/banshee-data/attention.report/internal/httputil"
	"github.com/banshee-data/attention.report/internal/monitoring"
	"github.com/banshee-data/attention.report/internal/timeutil"
)

// DefaultRecomputeTimeout bounds a tolerance update triggered over HTTP.
const DefaultRecomputeTimeout = 30 * time.Second

// Backend is the part of the detection engine the web server needs.
// *pipeline.Engine satisfies it.
type Backend interface {
	Manager() *l5states.Manager
	Volumes() []l2volumes.Volume
	Tolerance() l3tolerance.Config
	Thresholds(observer l2volumes.ObserverID) l3tolerance.Thresholds
	SetTolerance(ctx context.Context, tol l3tolerance.Config) error
}

// WebServer exposes the engine's metrics and events over HTTP.
type WebServer struct {
	address          string
	backend          Backend
	metrics          *l6metrics.Aggregator
	store            *sqlite.EventStore
	clock            timeutil.Clock
	recomputeTimeout time.Duration
	server           *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address         string
	Backend         Backend
	Clock           timeutil.Clock
	RefreshInterval time.Duration
	// Store is optional; without it the session endpoints return 404.
	Store            *sqlite.EventStore
	RecomputeTimeout time.Duration
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	timeout := config.RecomputeTimeout
	if timeout <= 0 {
		timeout = DefaultRecomputeTimeout
	}
	ws := &WebServer{
		address:          config.Address,
		backend:          config.Backend,
		metrics:          l6metrics.NewAggregator(config.Backend, clock, config.RefreshInterval),
		store:            config.Store,
		clock:            clock,
		recomputeTimeout: timeout,
	}

	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route multiplexer, for embedding in another server.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[monitor] listening on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("monitor server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[monitor] shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("[monitor] force close error: %v", err)
		}
	}
	monitoring.Logf("[monitor] stopped")
	return nil
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", ws.handleHealth)
	mux.HandleFunc("GET /api/observers", ws.handleObservers)
	mux.HandleFunc("GET /api/observers/{id}/metrics", ws.handleObserverMetrics)
	mux.HandleFunc("GET /api/events", ws.handleEvents)
	mux.HandleFunc("GET /api/active", ws.handleActive)
	mux.HandleFunc("POST /api/tolerance", ws.handleTolerance)
	mux.HandleFunc("GET /api/sessions", ws.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}/events", ws.handleSessionEvents)
	mux.HandleFunc("GET /debug/timeline", ws.handleTimeline)

	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "attention",
		"timestamp": ws.clock.Now().UTC().Format(time.RFC3339),
	})
}

// knownObserver reports whether id is a configured volume or the global
// pseudo-observer.
func (ws *WebServer) knownObserver(id l2volumes.ObserverID) bool {
	if id == l5states.GlobalObserver {
		return true
	}
	for _, v := range ws.backend.Volumes() {
		if v.ID == id {
			return true
		}
	}
	return false
}
