package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/iotlink/internal/node"
)

// healthCheckTimeout bounds each component health check.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports liveness and the result of each registered
// component health check. Any failing check makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	healthy := true

	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()

		if err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// handleStatus returns the node's diagnostic snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.admin.Status(r.Context())
	if err != nil {
		s.writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleReset schedules a restart. The response is written during the
// grace period, before the process exits.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	grace, err := s.admin.Reset(r.Context())
	if err != nil {
		s.writeAdminError(w, err)
		return
	}

	s.logger.Warn("reset requested via API", "request_id", r.Context().Value(ctxKeyRequestID))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "restarting",
		"grace_ms": grace.Milliseconds(),
	})
}

// writeAdminError maps errors from the admin surface to responses.
func (s *Server) writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, node.ErrNoSession):
		writeError(w, http.StatusConflict, ErrCodeConflict, "no broker session configured")
	case errors.Is(err, node.ErrNotRunning):
		writeUnavailable(w, "control loop not running")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeUnavailable(w, "request cancelled")
	default:
		s.logger.Error("admin action failed", "error", err)
		writeInternalError(w, "admin action failed")
	}
}
