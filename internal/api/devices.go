package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	bridge "github.com/nerrad567/gray-logic-broadlink/internal/bridges/broadlink"
	"github.com/nerrad567/gray-logic-broadlink/internal/device"
	"github.com/nerrad567/gray-logic-broadlink/internal/dispatch"
)

// deviceView is the JSON representation of a registered device.
type deviceView struct {
	Address      string     `json:"address"`
	MAC          string     `json:"mac,omitempty"`
	Model        string     `json:"model,omitempty"`
	Type         string     `json:"type,omitempty"`
	Capabilities []string   `json:"capabilities"`
	Firmware     int        `json:"firmware,omitempty"`
	State        string     `json:"state"`
	RetryCount   int        `json:"retry_count"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
}

func viewOf(h *device.Handle) deviceView {
	d := bridge.Describe(h)
	v := deviceView{
		Address:      d.Address,
		MAC:          d.MAC,
		Model:        d.Model,
		Type:         d.Type,
		Capabilities: d.Capabilities,
		Firmware:     d.Firmware,
		State:        h.State().String(),
		RetryCount:   h.RetryCount(),
	}
	if seen := h.LastSeen(); !seen.IsZero() {
		seen = seen.UTC()
		v.LastSeen = &seen
	}
	return v
}

// handleListDevices returns every registered device in registration order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	handles := s.registry.Devices()
	views := make([]deviceView, 0, len(handles))
	for _, h := range handles {
		views = append(views, viewOf(h))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns one device by address or MAC; "_" selects the first.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	selector := chi.URLParam(r, "selector")

	h, err := s.registry.Resolve(selector, 0)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, viewOf(h))
}

// sendResponse is returned by POST /devices/{selector}/send.
type sendResponse struct {
	Selector string           `json:"selector"`
	Device   string           `json:"device,omitempty"`
	Status   bridge.AckStatus `json:"status"`
	Outcome  dispatch.Outcome `json:"outcome"`
	Message  string           `json:"message,omitempty"`
}

// handleSend dispatches a code or sequence and waits for the outcome.
//
// The body uses the MQTT command schema; only data, sequence and timeout
// are read. The request context bounds the dispatch, so a client that
// disconnects cancels the remaining sends.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	selector := chi.URLParam(r, "selector")

	var msg bridge.CommandMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if msg.Timeout < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "timeout must not be negative")
		return
	}
	cmd := msg.ToCommand()
	if err := cmd.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	resp := sendResponse{Selector: selector}
	if h, err := s.registry.Resolve(selector, device.CapSend); err == nil {
		resp.Device = h.Identity().Address
	}

	out, err := s.dispatcher.Dispatch(r.Context(), selector, cmd, time.Duration(msg.Timeout*float64(time.Second)))
	resp.Outcome = out
	if err != nil {
		switch {
		case errors.Is(err, device.ErrUnsupported):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupported, err.Error())
		case errors.Is(err, dispatch.ErrInvalidCommand):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			// Lock wait ended by the client going away.
			resp.Status = bridge.AckFailed
			resp.Message = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
		}
		return
	}

	status := http.StatusOK
	resp.Status = bridge.AckAccepted
	switch {
	case out.Failed < 0:
		status = http.StatusNotFound
		resp.Status = bridge.AckFailed
		resp.Message = "device not found; best-effort send attempted"
	case out.TimedOut:
		status = http.StatusGatewayTimeout
		resp.Status = bridge.AckTimeout
	case out.Canceled:
		status = http.StatusServiceUnavailable
		resp.Status = bridge.AckFailed
	case out.Failed > 0:
		status = http.StatusBadGateway
		resp.Status = bridge.AckFailed
	}
	writeJSON(w, status, resp)
}

// handleStats returns cumulative dispatch counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.dispatcher.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"commands_dispatched": st.Commands,
		"sends_attempted":     st.Sends,
		"sends_failed":        st.Failures,
		"sequences_timed_out": st.TimedOut,
		"devices_managed":     s.registry.Len(),
		"websocket_clients":   s.hub.ClientCount(),
	})
}
