package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	bridge "github.com/nerrad567/gray-logic-broadlink/internal/bridges/broadlink"
	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/learning"
)

// learnRequest is the optional body of POST /devices/{selector}/learn/{kind}.
type learnRequest struct {
	// Frequency in MHz skips the RF sweep when positive.
	Frequency float64 `json:"frequency"`
}

// handleStartLearning starts an IR or RF learning session. The response
// carries the session ID; progress and the captured code arrive as
// learning.progress events on the WebSocket and on MQTT.
func (s *Server) handleStartLearning(w http.ResponseWriter, r *http.Request) {
	if s.learner == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "learning is not available")
		return
	}

	selector := chi.URLParam(r, "selector")
	kind := learning.Kind(chi.URLParam(r, "kind"))
	if kind != learning.KindIR && kind != learning.KindRF {
		writeBadRequest(w, "kind must be ir or rf")
		return
	}

	var req learnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Frequency < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "frequency must not be negative")
		return
	}

	session, err := s.learner.Learn(kind, selector, req.Frequency)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrUnsupported), errors.Is(err, bridge.ErrLearningDisabled):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupported, err.Error())
		case errors.Is(err, bridge.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		default:
			s.logger.Error("failed to start learning", "selector", selector, "kind", kind, "error", err)
			writeInternalError(w, "failed to start learning")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": session.ID(),
		"kind":       kind,
		"device":     session.Device(),
	})
}

// handleStopLearning cancels the active session of one kind, or of both
// when no kind is given.
func (s *Server) handleStopLearning(w http.ResponseWriter, r *http.Request) {
	if s.learner == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "learning is not available")
		return
	}

	kind := learning.Kind(chi.URLParam(r, "kind"))
	if err := s.learner.StopLearning(kind); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
