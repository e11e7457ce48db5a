package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oklog/ulid/v2"

	"parley/internal/domain"
)

// ChatRequest is the body of POST /api/chat. ConversationID is optional; a
// new ULID is minted when it is absent.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
	InputTokens    int    `json:"input_tokens"`
	OutputTokens   int    `json:"output_tokens"`
}

// SessionListResponse is the body returned by GET /api/sessions.
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
}

// DeleteResponse is the body returned by DELETE /api/sessions/{id}.
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", domain.CodeInvalidInput)
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = ulid.Make().String()
	}

	if !s.limiter.Allow(conversationID) {
		s.logger.Warn("chat request rate limited", "conversation_id", conversationID)
		writeError(w, http.StatusTooManyRequests, "too many requests for this conversation", domain.CodeRateLimit)
		return
	}

	result, err := s.turns.ProcessTurn(r.Context(), conversationID, req.Message)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID: conversationID,
		Response:       result.FinalText,
		InputTokens:    result.InputTokens,
		OutputTokens:   result.OutputTokens,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: ids})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.sessions.History(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if msgs == nil {
		msgs = []domain.StoredMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	n, err := s.sessions.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

func (s *Server) handleDailyUsage(w http.ResponseWriter, r *http.Request) {
	sums, err := s.usage.Daily(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if sums == nil {
		sums = []domain.UsageSummary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleMonthlyUsage(w http.ResponseWriter, r *http.Request) {
	sums, err := s.usage.Monthly(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if sums == nil {
		sums = []domain.UsageSummary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps a domain error onto an HTTP status. Upstream model
// failures deliberately return a generic message; the underlying detail goes
// to the log only.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), code)
	case errors.Is(err, domain.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found", code)
	case errors.Is(err, domain.ErrRateLimit):
		writeError(w, http.StatusTooManyRequests, "too many requests", code)
	case errors.Is(err, domain.ErrUpstream), errors.Is(err, domain.ErrAuthInvalid):
		s.logger.Error("upstream model call failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "error communicating with the chat service", code)
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", code)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, code domain.ErrorCode) {
	writeJSON(w, status, errorResponse{Error: msg, Code: string(code)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
