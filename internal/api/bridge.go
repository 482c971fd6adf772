package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-enip/internal/bridges/enip"
)

// handleBridgeStart starts the bridge with the live configuration.
//
// By default it answers 202 once the run is accepted. With ?wait=true it
// waits for the startup outcome and answers 200 or 502.
func (s *Server) handleBridgeStart(w http.ResponseWriter, r *http.Request) {
	settings := enip.SettingsFromConfig(s.settings.Current())

	result, err := s.bridge.Start(settings)
	switch {
	case errors.Is(err, enip.ErrAlreadyRunning):
		writeAction(w, http.StatusConflict, false, "bridge is already running")
		return
	case errors.Is(err, enip.ErrInvalidSettings):
		writeAction(w, http.StatusBadRequest, false, err.Error())
		return
	case err != nil:
		writeAction(w, http.StatusInternalServerError, false, "failed to start bridge: "+err.Error())
		return
	}

	s.logger.Info("bridge start requested via API", "device", settings.Device.Address, "subject", subjectFromContext(r.Context()))

	if r.URL.Query().Get("wait") != "true" {
		writeAction(w, http.StatusAccepted, true, "bridge starting")
		return
	}

	select {
	case err := <-result:
		if err != nil {
			writeAction(w, http.StatusBadGateway, false, "failed to start bridge: "+err.Error())
			return
		}
		writeAction(w, http.StatusOK, true, "bridge started")
	case <-r.Context().Done():
		// Client went away; the run carries on.
	}
}

// handleBridgeStop requests shutdown. With ?wait=true it answers once both
// sessions are closed.
func (s *Server) handleBridgeStop(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Stop(); err != nil {
		if errors.Is(err, enip.ErrNotRunning) {
			writeAction(w, http.StatusConflict, false, "bridge is not running")
			return
		}
		writeAction(w, http.StatusInternalServerError, false, "failed to stop bridge: "+err.Error())
		return
	}

	s.logger.Info("bridge stop requested via API", "subject", subjectFromContext(r.Context()))

	if r.URL.Query().Get("wait") != "true" {
		writeAction(w, http.StatusAccepted, true, "bridge stopping")
		return
	}

	select {
	case <-s.bridge.Done():
		writeAction(w, http.StatusOK, true, "bridge stopped")
	case <-r.Context().Done():
	}
}

// handleBridgeStatus returns the supervisor status.
func (s *Server) handleBridgeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}
