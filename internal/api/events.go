package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/iotlink/internal/audit"
)

// handleListEvents returns connection lifecycle events, newest first.
//
// Query parameters:
//   - component: filter by component (network, session, node)
//   - event: filter by event (connected, connect_failed, ...)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeUnavailable(w, "event log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Component: q.Get("component"),
		Event:     q.Get("event"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
