package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// tenantID resolves the caller's tenant from the path (broadcast/collect/
// hyphal/outcomes all carry {tenant} in the URL, per spec.md §6's "paths
// are normative" table) and falls back to the X-Tenant-Id header for
// endpoints that don't (agents:register).
func tenantID(r *http.Request) string {
	if t := chi.URLParam(r, "tenant"); t != "" {
		return t
	}
	return r.Header.Get("X-Tenant-Id")
}

// agentIDParam resolves the {agent} path segment used by agent-scoped
// routes other than register (which takes the agent id from the body).
func agentIDParam(r *http.Request) string {
	return chi.URLParam(r, "agent")
}

// traceID resolves the call's trace id: path param, then X-Trace-Id
// header, then a freshly generated UUID (spec.md §6: "generated when
// absent").
func traceID(r *http.Request) string {
	if t := chi.URLParam(r, "trace"); t != "" {
		return t
	}
	if t := r.Header.Get("X-Trace-Id"); t != "" {
		return t
	}
	return uuid.NewString()
}
