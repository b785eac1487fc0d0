// Package httpapi exposes the Router Service, Hyphal Memory Service, and
// Reinforcement Engine over the JSON/HTTP surface described in spec.md §6,
// wired with go-chi/chi/v5 exactly as the teacher's cmd/server/main.go
// composes its router.
package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/hyphal"
	"github.com/hyphalmesh/substrate/internal/metrics"
	"github.com/hyphalmesh/substrate/internal/reinforcement"
	"github.com/hyphalmesh/substrate/internal/router"
)

// Pinger is satisfied by any backing store the health check needs to
// verify reachability against (pgxpool.Pool and redis.Client both already
// expose a context-aware Ping).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds every service the HTTP surface delegates to. It carries no
// state of its own beyond these collaborators.
type Handler struct {
	router        *router.Service
	hyphal        *hyphal.Service
	reinforcement *reinforcement.Engine
	metrics       *metrics.Registry
	relational    Pinger
	cache         Pinger
	log           *zap.Logger
}

// New constructs a Handler. relational and cache may be nil in tests; the
// health handler reports "unknown" for an absent collaborator rather than
// panicking.
func New(
	routerSvc *router.Service,
	hyphalSvc *hyphal.Service,
	reinforcementEngine *reinforcement.Engine,
	metricsReg *metrics.Registry,
	relational Pinger,
	cache Pinger,
	log *zap.Logger,
) *Handler {
	return &Handler{
		router:        routerSvc,
		hyphal:        hyphalSvc,
		reinforcement: reinforcementEngine,
		metrics:       metricsReg,
		relational:    relational,
		cache:         cache,
		log:           log,
	}
}

// instrument wraps fn to record RequestsTotal/RequestDuration against
// m.metrics, grounded on etalazz/vsa's promhttp wiring pattern.
func (h *Handler) instrument(route string, fn http.HandlerFunc) http.HandlerFunc {
	if h.metrics == nil {
		return fn
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := h.metrics.ObserveRequestStart(route)
		fn(rec, r)
		timer.ObserveDuration()
		h.metrics.RequestsTotal.WithLabelValues(route, statusClass(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
