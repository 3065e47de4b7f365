package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"appliancebridge/internal/appliance"
)

// controlRequest is the request body for POST /appliances/control.
type controlRequest struct {
	Pins     map[string]string `json:"pins"`
	Password string            `json:"password"`
}

// controlResponse is the success response for command endpoints.
type controlResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	PinsUpdated []string `json:"pins_updated"`
}

// stateResponse is the payload for GET /appliances/state and the
// WebSocket state feed.
type stateResponse struct {
	Pins      map[string]string `json:"pins"`
	Connected bool              `json:"connected"`
}

// handleControl relays an explicit pin assignment map to the board.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	// An absent or empty pins map is a valid (no-op) command: the
	// password is still checked and the empty mapping is published.
	if req.Pins == nil {
		req.Pins = map[string]string{}
	}

	updated, err := s.relay.SubmitCommand(r.Context(), req.Pins, req.Password)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{
		Success:     true,
		Message:     "command sent",
		PinsUpdated: updated,
	})
}

// handleState returns the last state reported by the board.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	pins, connected := s.relay.GetState()
	writeJSON(w, http.StatusOK, stateResponse{
		Pins:      pins,
		Connected: connected,
	})
}

// handleToggle flips a single pin based on its last reported state.
// The password travels as a query parameter so the endpoint stays a
// bare POST with no body.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	pin := chi.URLParam(r, "pin_name")
	password := r.URL.Query().Get("password")

	updated, err := s.relay.Toggle(r.Context(), pin, password)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{
		Success:     true,
		Message:     fmt.Sprintf("toggled %s", strings.ToLower(pin)),
		PinsUpdated: updated,
	})
}

// handleSetAll drives every pin to the same state in one command.
func (s *Server) handleSetAll(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	password := r.URL.Query().Get("password")

	updated, err := s.relay.SetAll(r.Context(), state, password)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{
		Success:     true,
		Message:     fmt.Sprintf("all pins set to %s", strings.ToLower(state)),
		PinsUpdated: updated,
	})
}

// writeCommandError maps relay command errors to HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	var pinErr *appliance.InvalidPinError
	var stateErr *appliance.InvalidStateError

	switch {
	case errors.Is(err, appliance.ErrUnauthorized):
		writeUnauthorized(w, "invalid password")
	case errors.As(err, &pinErr):
		writeBadRequest(w, fmt.Sprintf("invalid pin %q (must be d0-d8)", pinErr.Name))
	case errors.As(err, &stateErr):
		writeBadRequest(w, fmt.Sprintf("invalid state %q (must be on, off, high or low)", stateErr.State))
	case errors.Is(err, appliance.ErrUnavailable):
		writeServiceUnavailable(w, "appliance channel unavailable")
	default:
		s.logger.Error("command failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "command could not be delivered")
	}
}
