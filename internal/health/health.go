// Package health exposes kaigi's local liveness and readiness endpoints.
//
// kaigi runs as a desktop process, so these routes serve an operator poking
// at localhost (or a dashboard scraping the metrics port) rather than an
// orchestrator: /healthz answers as long as the process can serve HTTP, and
// /readyz reports whether the session store and the other registered
// dependencies are usable before a meeting is started.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// defaultProbeTimeout bounds a single readiness probe. Dependencies slower
// than this are reported as failed rather than holding the request open.
const defaultProbeTimeout = 5 * time.Second

// ProbeFunc checks one dependency. A nil return means usable; a non-nil
// error describes why the dependency is not. It must honour ctx.
type ProbeFunc func(ctx context.Context) error

// Endpoint serves /healthz and /readyz. Register probes before mounting it;
// the handlers themselves are safe for concurrent use.
type Endpoint struct {
	timeout time.Duration
	names   []string
	probes  map[string]ProbeFunc
}

// Option configures an [Endpoint].
type Option func(*Endpoint)

// WithProbeTimeout overrides the per-probe deadline on /readyz.
func WithProbeTimeout(d time.Duration) Option {
	return func(e *Endpoint) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEndpoint creates an [Endpoint] with no probes registered.
func NewEndpoint(opts ...Option) *Endpoint {
	e := &Endpoint{
		timeout: defaultProbeTimeout,
		probes:  map[string]ProbeFunc{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Probe registers fn under name. Probes run on /readyz in registration
// order; registering the same name twice replaces the earlier probe.
func (e *Endpoint) Probe(name string, fn ProbeFunc) {
	if _, seen := e.probes[name]; !seen {
		e.names = append(e.names, name)
	}
	e.probes[name] = fn
}

// Routes mounts the health handlers on mux.
func (e *Endpoint) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", e.liveness)
	mux.HandleFunc("GET /readyz", e.readiness)
}

// probeResult is one dependency's entry in the /readyz body.
type probeResult struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

// readinessBody is the /readyz response.
type readinessBody struct {
	Ready  bool                   `json:"ready"`
	Probes map[string]probeResult `json:"probes,omitempty"`
}

// liveness reports that the process is up. No dependencies are consulted.
func (e *Endpoint) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

// readiness runs every registered probe and reports 200 only when all of
// them pass; any failure yields 503 with the per-probe details.
func (e *Endpoint) readiness(w http.ResponseWriter, r *http.Request) {
	body := readinessBody{
		Ready:  true,
		Probes: make(map[string]probeResult, len(e.names)),
	}

	for _, name := range e.names {
		ctx, cancel := context.WithTimeout(r.Context(), e.timeout)
		start := time.Now()
		err := e.probes[name](ctx)
		elapsed := time.Since(start)
		cancel()

		res := probeResult{OK: err == nil, Elapsed: elapsed.Round(time.Millisecond).String()}
		if err != nil {
			res.Error = err.Error()
			body.Ready = false
		}
		body.Probes[name] = res
	}

	status := http.StatusOK
	if !body.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}
