package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/core"
)

// errorResponse is the wire shape for every non-2xx response (spec.md §7:
// "every error carries {code, message, retry_after_ms?, trace_id}").
type errorResponse struct {
	Code         core.Code `json:"code"`
	Message      string    `json:"message"`
	RetryAfterMS int64     `json:"retry_after_ms,omitempty"`
	TraceID      string    `json:"trace_id,omitempty"`
	PolicyID     string    `json:"policy_id,omitempty"`
}

// statusFor maps a core.Code to the HTTP status table in spec.md §6.
func statusFor(code core.Code) int {
	switch code {
	case core.CodeInvalidArgument:
		return http.StatusBadRequest
	case core.CodeUnauthenticated:
		return http.StatusUnauthorized
	case core.CodePermissionDenied, core.CodePolicyDenied:
		return http.StatusForbidden
	case core.CodeExpired, core.CodeAlreadyRecorded:
		return http.StatusConflict
	case core.CodeRateLimited:
		return http.StatusTooManyRequests
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err into the wire error shape and status. A bare
// (non-*core.Error) err is logged at error level and surfaced opaquely as
// Internal, per spec.md §7's "bug; logged with trace id and surfaced
// opaquely" rule.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, traceID string, err error) {
	code := core.CodeOf(err)
	resp := errorResponse{Code: code, Message: err.Error(), TraceID: traceID}
	if ce, ok := err.(*core.Error); ok {
		resp.RetryAfterMS = ce.RetryAfterMS
		resp.PolicyID = ce.PolicyID
	} else if code == core.CodeInternal {
		resp.Message = "internal error"
	}
	if code == core.CodeInternal {
		h.log.Error("internal error", zap.String("path", r.URL.Path), zap.String("trace_id", traceID), zap.Error(err))
	}
	writeJSON(w, statusFor(code), resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
