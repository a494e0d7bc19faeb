// Package gateway exposes the poll engine's operations over HTTP and pushes
// snapshots to WebSocket observers. It is a thin adapter: every request maps
// to exactly one engine operation or one state read.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/classpoll/livepoll/internal/models"
	"github.com/classpoll/livepoll/internal/session"
)

// DefaultPollDurationSec is used when a create-poll request omits the
// duration.
const DefaultPollDurationSec = 60

// Handler serves the session API.
type Handler struct {
	engine *session.Engine
	hub    *Hub
}

// NewHandler creates the HTTP handler for an engine and its WebSocket hub.
func NewHandler(engine *session.Engine, hub *Hub) *Handler {
	return &Handler{engine: engine, hub: hub}
}

// RegisterRoutes registers the session API on a mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/polls", h.handleCreatePoll)
	mux.HandleFunc("POST /api/answers", h.handleSubmitAnswer)
	mux.HandleFunc("POST /api/students", h.handleRegisterStudent)
	mux.HandleFunc("POST /api/students/{id}/kick", h.handleKickStudent)
	mux.HandleFunc("POST /api/chat", h.handlePostChat)
	mux.HandleFunc("GET /api/state", h.handleGetState)
	mux.HandleFunc("GET /api/state/remaining", h.handleTimeRemaining)
	if h.hub != nil {
		mux.HandleFunc("GET /ws", h.hub.HandleConnection)
	}
}

type createPollRequest struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	DurationSec        int      `json:"duration"`
	CorrectOptionIndex *int     `json:"correctOptionIndex"`
}

func (h *Handler) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DurationSec == 0 {
		req.DurationSec = DefaultPollDurationSec
	}
	poll, err := h.engine.CreatePoll(r.Context(), req.Question, req.Options, req.DurationSec, req.CorrectOptionIndex)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, poll)
}

type submitAnswerRequest struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	OptionIndex int    `json:"optionIndex"`
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.engine.SubmitAnswer(r.Context(), req.StudentID, req.StudentName, req.OptionIndex); err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type registerStudentRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.engine.RegisterStudent(r.Context(), req.Name)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"studentId": id})
}

func (h *Handler) handleKickStudent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "student id is required")
		return
	}
	h.engine.KickStudent(r.Context(), id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type postChatRequest struct {
	Message    string            `json:"message"`
	SenderType models.SenderType `json:"senderType"`
	SenderName string            `json:"senderName"`
}

func (h *Handler) handlePostChat(w http.ResponseWriter, r *http.Request) {
	var req postChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.engine.PostChatMessage(r.Context(), req.Message, req.SenderType, req.SenderName); err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.State())
}

func (h *Handler) handleTimeRemaining(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"timeRemainingSec": h.engine.TimeRemaining()})
}

// writeRejection maps engine rejections onto HTTP statuses. Anything the
// engine does not recognize is a server fault.
func writeRejection(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidInput), errors.Is(err, session.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrPollInProgress), errors.Is(err, session.ErrNoActivePoll), errors.Is(err, session.ErrDuplicateAnswer):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrStudentKicked):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		log.Error().Err(err).Msg("unexpected engine error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
