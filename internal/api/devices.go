package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// validActions are the device actions accepted on the REST pass-through.
// They mirror what the device firmware understands; the hub only
// validates the name, not the effect.
var validActions = map[string]struct{}{
	"power":           {},
	"night-mode":      {},
	"brightness-up":   {},
	"brightness-down": {},
	"switch-temp":     {},
	"timer":           {},
	"cold":            {},
	"warm":            {},
}

// powerRequest is the body for POST /devices/{kind}/power.
type powerRequest struct {
	Data string `json:"data"`
}

// commandResponse reports how many device connections received a command.
type commandResponse struct {
	Kind       string `json:"kind"`
	Recipients int    `json:"recipients"`
}

// handleListDevices returns the canonical state of every known device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.core.DeviceStates(),
	})
}

// handleGetDevice returns the canonical state of one device kind.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")

	state, ok := s.core.DeviceStateFor(kind)
	if !ok {
		writeNotFound(w, "unknown device kind: "+kind)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handlePowerCommand relays a power on/off command to every connection
// registered as the target device kind.
func (s *Server) handlePowerCommand(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")

	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Data != "on" && req.Data != "off" {
		writeBadRequest(w, `data must be "on" or "off"`)
		return
	}

	if _, ok := s.core.DeviceStateFor(kind); !ok {
		writeNotFound(w, "unknown device kind: "+kind)
		return
	}

	payload, err := json.Marshal(map[string]string{
		"type": "power",
		"data": req.Data,
	})
	if err != nil {
		writeInternalError(w, "failed to encode command")
		return
	}

	sent := s.core.BroadcastCommand(kind, payload)
	writeJSON(w, http.StatusOK, commandResponse{Kind: kind, Recipients: sent})
}

// handleActionCommand relays a named action to every connection
// registered as the target device kind.
func (s *Server) handleActionCommand(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	action := chi.URLParam(r, "action")

	if _, ok := validActions[action]; !ok {
		writeBadRequest(w, "unknown action: "+action)
		return
	}
	if _, ok := s.core.DeviceStateFor(kind); !ok {
		writeNotFound(w, "unknown device kind: "+kind)
		return
	}

	payload, err := json.Marshal(map[string]string{"action": action})
	if err != nil {
		writeInternalError(w, "failed to encode command")
		return
	}

	sent := s.core.BroadcastCommand(kind, payload)
	writeJSON(w, http.StatusOK, commandResponse{Kind: kind, Recipients: sent})
}

// handleNotificationTest fires a test push notification to all
// registered tokens.
func (s *Server) handleNotificationTest(w http.ResponseWriter, _ *http.Request) {
	if s.notifier == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "notifications are not configured")
		return
	}

	s.notifier.Notify("Test Notification")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
