package api

import (
	"io"
	"net/http"
)

// handleGetConfig returns the live configuration with secrets redacted.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Current().Redacted())
}

// handleUpdateConfig merges a JSON document onto the live configuration,
// validates it and saves it. A running bridge keeps its settings until
// the next start.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	next, err := s.settings.Current().MergeJSON(body)
	if err != nil {
		writeAction(w, http.StatusBadRequest, false, err.Error())
		return
	}
	if err := s.settings.Replace(next); err != nil {
		writeAction(w, http.StatusBadRequest, false, err.Error())
		return
	}

	s.logger.Info("configuration updated via API", "path", s.settings.Path())
	writeAction(w, http.StatusOK, true, "configuration saved; applies on next start")
}
