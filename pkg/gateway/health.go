package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"flowbridge/pkg/bus"
	"flowbridge/pkg/metrics"
)

// health is the process view served on /healthz and /readyz. It is fed from
// channel lifecycle callbacks and the turn event stream.
type health struct {
	mu        sync.RWMutex
	startedAt time.Time
	lastOKAt  time.Time
	lastErr   string
	turns     turnCounts
	channels  map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type turnCounts struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Ignored   int64 `json:"ignored"`
}

type statusResponse struct {
	Status           string                  `json:"status"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	UpstreamLastOKAt string                  `json:"upstream_last_ok_at,omitempty"`
	UpstreamLastErr  string                  `json:"upstream_last_error,omitempty"`
	Turns            turnCounts              `json:"turns"`
	Channels         map[string]channelState `json:"channels"`
}

func newHealth(channelNames ...string) *health {
	h := &health{channels: make(map[string]channelState, len(channelNames))}
	for _, name := range channelNames {
		h.channels[name] = channelState{}
	}
	return h
}

func (h *health) markStarted(at time.Time) {
	h.mu.Lock()
	h.startedAt = at
	h.mu.Unlock()
}

func (h *health) setChannel(name string, running bool, err error) {
	state := channelState{Running: running}
	if err != nil {
		state.Error = err.Error()
	}

	h.mu.Lock()
	h.channels[name] = state
	h.mu.Unlock()
}

// observe folds one turn event. Any turn that got a runtime response clears
// the last upstream error; unhandled failures leave it as is.
func (h *health) observe(event bus.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch event.Type {
	case bus.EventTurnCompleted:
		h.turns.Completed++
		h.upstreamOK(event.At)
	case bus.EventTurnFailed:
		h.turns.Failed++
		switch event.Failure {
		case FailureUpstream:
			h.lastErr = event.Error
		case FailureSend:
			h.upstreamOK(event.At)
		}
	case bus.EventTurnIgnored:
		h.turns.Ignored++
	}
}

func (h *health) upstreamOK(at time.Time) {
	h.lastOKAt = at
	h.lastErr = ""
}

// ready requires at least one running channel and no outstanding upstream error.
func (h *health) ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.lastErr != "" {
		return false
	}
	for _, state := range h.channels {
		if state.Running {
			return true
		}
	}
	return false
}

func (h *health) snapshot(status string) statusResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := statusResponse{
		Status:          status,
		UpstreamLastErr: h.lastErr,
		Turns:           h.turns,
		Channels:        make(map[string]channelState, len(h.channels)),
	}
	if !h.startedAt.IsZero() {
		resp.UptimeSeconds = int64(time.Since(h.startedAt).Seconds())
	}
	if !h.lastOKAt.IsZero() {
		resp.UpstreamLastOKAt = h.lastOKAt.Format(time.RFC3339)
	}
	for name, state := range h.channels {
		resp.Channels[name] = state
	}
	return resp
}

// statusMux serves liveness, readiness and Prometheus metrics.
func statusMux(h *health, m *metrics.Metrics, log *slog.Logger) http.Handler {
	write := func(w http.ResponseWriter, code int, status string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(h.snapshot(status)); err != nil {
			log.Error("Failed to write status response", "error", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		write(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if h.ready() {
			write(w, http.StatusOK, "ready")
			return
		}
		write(w, http.StatusServiceUnavailable, "not_ready")
	})
	mux.Handle("GET /metrics", m.Handler())
	return mux
}
