package callsession

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/donorlink/callops/pkg/logging"
)

// Handler is the staff-portal JSON surface: click-to-call and status polling.
type Handler struct {
	launcher *Launcher
	sessions *Store
	logger   *logging.Logger
}

// NewHandler wires the portal handler.
func NewHandler(launcher *Launcher, sessions *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{launcher: launcher, sessions: sessions, logger: logger}
}

type initiateCallRequest struct {
	AgentID    int64  `json:"agent_id"`
	DonorID    int64  `json:"donor_id"`
	AgentPhone string `json:"agent_phone"`
}

type sessionStatusResponse struct {
	Success         bool   `json:"success"`
	SessionID       string `json:"session_id"`
	CallSID         string `json:"call_sid,omitempty"`
	Status          string `json:"status"`
	Stage           string `json:"conversation_stage"`
	Outcome         string `json:"outcome,omitempty"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	RecordingURL    string `json:"recording_url,omitempty"`
}

// InitiateCall handles POST /api/calls.
func (h *Handler) InitiateCall(w http.ResponseWriter, r *http.Request) {
	var req initiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DonorID <= 0 || req.AgentID <= 0 {
		writeJSONError(w, http.StatusBadRequest, "agent_id and donor_id are required")
		return
	}

	result, err := h.launcher.Launch(r.Context(), LaunchRequest{
		AgentID:    req.AgentID,
		DonorID:    req.DonorID,
		AgentPhone: req.AgentPhone,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidDonor) {
			writeJSONError(w, http.StatusUnprocessableEntity, ErrInvalidDonor.Error())
			return
		}
		h.logger.Error("call launch failed", "error", err, "donor_id", req.DonorID)
		writeJSONError(w, http.StatusBadGateway, "call could not be placed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"session_id": result.SessionID,
		"call_sid":   result.CallSID,
		"poll_url":   result.PollURL,
	})
}

// PollStatus handles GET /api/calls/{sessionID}.
func (h *Handler) PollStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("session poll failed", "error", err, "session_id", sessionID)
		writeJSONError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, sessionStatusResponse{
		Success:         true,
		SessionID:       sess.ID.String(),
		CallSID:         sess.CallSID,
		Status:          sess.Status,
		Stage:           sess.Stage,
		Outcome:         sess.Outcome,
		DurationSeconds: sess.DurationSeconds,
		ErrorCode:       sess.ErrorCode,
		ErrorMessage:    sess.ErrorMessage,
		RecordingURL:    sess.RecordingURL,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
