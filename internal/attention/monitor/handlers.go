package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
	"github.com/banshee-data/attention.report/internal/attention/l4detect"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/attention/pipeline"
	"github.com/banshee-data/attention.report/internal/attention/report"
	sqlite "github.com/banshee-data/attention.report/internal/attention/storage/sqlite"
	"github.com/banshee-data/attention.report/internal/config"
	"github.com/banshee-data/attention.report/internal/httputil"
	"github.com/banshee-data/attention.report/internal/monitoring"
)

// maxToleranceBody matches the tuning file size limit.
const maxToleranceBody = 1 << 20

type observerInfo struct {
	Volume     l2volumes.Volume       `json:"volume"`
	Thresholds l3tolerance.Thresholds `json:"thresholds"`
}

// handleObservers lists configured volumes with their effective thresholds.
func (ws *WebServer) handleObservers(w http.ResponseWriter, r *http.Request) {
	vols := ws.backend.Volumes()
	out := make([]observerInfo, 0, len(vols))
	for _, v := range vols {
		out = append(out, observerInfo{Volume: v, Thresholds: ws.backend.Thresholds(v.ID)})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// handleObserverMetrics returns the (throttled) metrics snapshot for one
// observer. The global pseudo-observer is addressed as "*global*".
func (ws *WebServer) handleObserverMetrics(w http.ResponseWriter, r *http.Request) {
	id := l2volumes.ObserverID(r.PathValue("id"))
	if !ws.knownObserver(id) {
		httputil.NotFound(w, fmt.Sprintf("unknown observer %q", id))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ws.metrics.Snapshot(id))
}

// parseFilter reads agent, observer and state (comma separated names)
// query parameters.
func parseFilter(r *http.Request) (l5states.Filter, error) {
	q := r.URL.Query()
	f := l5states.Filter{
		Agent:    l1history.AgentID(q.Get("agent")),
		Observer: l2volumes.ObserverID(q.Get("observer")),
	}
	if states := q.Get("state"); states != "" {
		for _, name := range strings.Split(states, ",") {
			st, ok := l4detect.ParseStateType(strings.TrimSpace(name))
			if !ok {
				return l5states.Filter{}, fmt.Errorf("unknown state %q", name)
			}
			f.States = f.States.With(st)
		}
	}
	return f, nil
}

type eventsResponse struct {
	Completed []l5states.CompletedEvent `json:"completed"`
	Points    []l5states.PointEvent     `json:"points"`
}

// handleEvents lists completed and point events.
// Query params:
//   - agent, observer (optional)
//   - state (optional; comma separated, e.g. "pause,noticed")
func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	m := ws.backend.Manager()
	resp := eventsResponse{Completed: m.Completed(f), Points: m.Points(f)}
	if resp.Completed == nil {
		resp.Completed = []l5states.CompletedEvent{}
	}
	if resp.Points == nil {
		resp.Points = []l5states.PointEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleActive lists currently open duration states, optionally filtered
// like handleEvents.
func (ws *WebServer) handleActive(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	active := ws.backend.Manager().Active()
	out := make([]l5states.ActiveState, 0, len(active))
	for _, a := range active {
		if f.Match(a.Key) {
			out = append(out, a)
		}
	}
	httputil.WriteJSONList(w, out)
}

// handleTolerance accepts a JSON tuning document, validates it, and
// recomputes every event with the tolerance settings it describes. Omitted
// fields take their defaults.
func (ws *WebServer) handleTolerance(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxToleranceBody+1))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("read body: %v", err))
		return
	}
	if len(body) > maxToleranceBody {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, "tolerance document too large")
		return
	}
	tuning, err := config.ParseTuningConfig(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ws.recomputeTimeout)
	defer cancel()

	tol := l3tolerance.ConfigFromTuning(tuning)
	if err := ws.backend.SetTolerance(ctx, tol); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrSuperseded):
			status = http.StatusConflict
		case errors.Is(err, pipeline.ErrPoseUnavailable):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			status = http.StatusServiceUnavailable
		}
		monitoring.Logf("[monitor] tolerance update failed: %v", err)
		httputil.WriteJSONError(w, status, fmt.Sprintf("recompute failed: %v", err))
		return
	}
	ws.metrics.Invalidate()

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "recomputed",
		"version":   ws.backend.Manager().Version(),
		"tolerance": ws.backend.Tolerance().Base,
	})
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		httputil.NotFound(w, "no event store configured")
		return
	}
	sessions, err := ws.store.ListSessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list sessions: %v", err))
		return
	}
	httputil.WriteJSONList(w, sessions)
}

func (ws *WebServer) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		httputil.NotFound(w, "no event store configured")
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	id := r.PathValue("id")
	if _, err := ws.store.GetSession(id); err != nil {
		if errors.Is(err, sqlite.ErrSessionNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	events, err := ws.store.ListEvents(id, f)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list events: %v", err))
		return
	}
	httputil.WriteJSONList(w, events)
}

// handleTimeline renders the current events as an HTML timeline. Accepts
// the same filter parameters as /api/events.
func (ws *WebServer) handleTimeline(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	m := ws.backend.Manager()
	opts := report.TimelineOptions{
		Title:    "Behaviour timeline",
		Subtitle: fmt.Sprintf("version=%d agents=%d", m.Version(), m.AgentCount()),
	}

	var buf bytes.Buffer
	if err := report.WriteTimelineHTML(&buf, m.Completed(f), m.Points(f), opts); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
