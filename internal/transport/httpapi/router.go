package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hyphalmesh/substrate/internal/auth"
)

// NewRouter mounts every handler onto a chi.Mux with the same global
// middleware stack the teacher's cmd/server/main.go composes
// (RequestID, RealIP, Logger, Recoverer, Timeout), plus instrumentation per
// route. authenticator may be nil, in which case no auth middleware is
// applied (used by tests and by local/dev runs with auth disabled).
func NewRouter(h *Handler, authenticator auth.Authenticator) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/v1/health", h.instrument("/v1/health", h.Health))
	if h.metrics != nil {
		r.Get("/metrics", h.metrics.Handler().ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		if authenticator != nil {
			r.Use(authenticator.Authenticate)
		}
		r.Post("/v1/broadcast/{tenant}/{trace}", h.instrument("/v1/broadcast", h.Broadcast))
		r.Post("/v1/collect/{tenant}", h.instrument("/v1/collect", h.Collect))
		r.Post("/v1/outcomes/{tenant}/{trace}", h.instrument("/v1/outcomes", h.RecordOutcome))
		r.Post("/v1/hyphal/{tenant}", h.instrument("/v1/hyphal", h.StoreMemory))
		r.Post("/v1/hyphal:search/{tenant}", h.instrument("/v1/hyphal:search", h.SearchMemory))
		r.Post("/v1/agents:register", h.instrument("/v1/agents:register", h.RegisterAgent))
		r.Post("/v1/agents/{tenant}/{agent}:deactivate", h.instrument("/v1/agents:deactivate", h.DeactivateAgent))
		r.Get("/v1/agents/{tenant}", h.instrument("/v1/agents", h.ListAgents))
	})

	return r
}
