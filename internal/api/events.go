package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-enip/internal/audit"
)

// handleListEvents returns lifecycle events, newest first.
// Query: type, run_id, limit (max 200), offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event log is not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Type:  q.Get("type"),
		RunID: q.Get("run_id"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing events failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query value.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
