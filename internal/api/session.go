package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"can-session-logger/internal/models"
	"can-session-logger/internal/session"

	"github.com/goccy/go-json"
)

// SessionAPI handles the session control endpoints
type SessionAPI struct {
	ctrl            *session.Controller
	defaultInterval time.Duration
}

// NewSessionAPI creates a new session API handler
func NewSessionAPI(ctrl *session.Controller, defaultInterval time.Duration) *SessionAPI {
	return &SessionAPI{ctrl: ctrl, defaultInterval: defaultInterval}
}

// SendRequest is the body of POST /api/session/send
type SendRequest struct {
	CANID    string `json:"can_id"`
	Data     string `json:"data"`
	Extended bool   `json:"extended"`
}

// GetStatus handles GET /api/session
func (api *SessionAPI) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	respondWithJSON(w, http.StatusOK, api.ctrl.Snapshot())
}

// ToggleLogging handles POST /api/session/logging
func (api *SessionAPI) ToggleLogging(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	logging, err := api.ctrl.ToggleLogging()
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"logging":  logging,
		"log_path": api.ctrl.Snapshot().LogPath,
	})
}

// TogglePeriodic handles POST /api/session/periodic?interval_ms=
func (api *SessionAPI) TogglePeriodic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	interval := api.defaultInterval
	if ms := r.URL.Query().Get("interval_ms"); ms != "" {
		n, err := strconv.Atoi(ms)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid interval_ms %q", ms))
			return
		}
		interval = time.Duration(n) * time.Millisecond
	}

	active, err := api.ctrl.TogglePeriodicSend(interval)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"periodic_send": active,
		"interval_ms":   interval.Milliseconds(),
	})
}

// Send handles POST /api/session/send. An empty body sends the next
// synthetic test frame.
func (api *SessionAPI) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !api.ctrl.State().Connected() {
		respondWithError(w, http.StatusConflict, "not connected")
		return
	}

	var req SendRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	}

	if req.CANID == "" {
		if !api.ctrl.SendTestFrame() {
			respondWithError(w, http.StatusBadGateway, "send failed")
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]any{
			"sent":         true,
			"send_counter": api.ctrl.State().SendCounter(),
		})
		return
	}

	id, err := models.ParseID(req.CANID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid can_id: %v", err))
		return
	}
	data, err := hex.DecodeString(req.Data)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid data: %v", err))
		return
	}

	frame := models.NewFrame(id, data, req.Extended)
	if err := frame.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !api.ctrl.Send(id, data, req.Extended) {
		respondWithError(w, http.StatusBadGateway, "send failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"sent":   true,
		"can_id": models.FormatID(id),
	})
}
