package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"deepchat/internal/chat"
	"deepchat/internal/deepseek"
	"deepchat/internal/prompt"
	"deepchat/internal/types"
)

// successResponse is the envelope for successful requests.
type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// errorResponse is the envelope for failed requests.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code"`
}

// messageRequest is the body of the message and stream endpoints.
type messageRequest struct {
	Message     string            `json:"message"`
	SessionID   string            `json:"sessionId"`
	PromptID    string            `json:"promptId"`
	UserContext map[string]string `json:"userContext"`
	Options     completionOptions `json:"options"`
}

// completionOptions are the per-request overrides clients may pass.
type completionOptions struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

func (o completionOptions) toOptions() deepseek.Options {
	return deepseek.Options{
		Model:       o.Model,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, code string) {
	s.writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeEngineError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var status int
	var code string

	var tagged *types.Error
	if !errors.As(err, &tagged) {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "internal error", Message: err.Error(), Code: "INTERNAL_ERROR",
		})
		return
	}

	switch tagged.Kind {
	case types.KindNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	case types.KindDuplicateBuiltin:
		status, code = http.StatusConflict, "DUPLICATE_BUILTIN"
	case types.KindImmutableBuiltin:
		status, code = http.StatusConflict, "IMMUTABLE_BUILTIN"
	case types.KindUpstream:
		status, code = http.StatusBadGateway, "UPSTREAM_ERROR"
	default:
		status, code = http.StatusInternalServerError, "INTERNAL_ERROR"
	}

	s.writeJSON(w, status, errorResponse{
		Error: tagged.Message, Message: tagged.Error(), Code: code,
	})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return false
	}
	return true
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return fallback
	}
	return limit
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "Message is required", "MISSING_MESSAGE")
		return
	}

	result, err := s.engine.SendMessage(r.Context(), req.SessionID, req.Message, chat.SendOptions{
		PromptID:    req.PromptID,
		UserContext: req.UserContext,
		Completion:  req.Options.toOptions(),
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: result})
}

func (s *Server) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "Message is required", "MISSING_MESSAGE")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported", "STREAM_ERROR")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := s.engine.StreamMessage(r.Context(), req.SessionID, req.Message, chat.SendOptions{
		PromptID:    req.PromptID,
		UserContext: req.UserContext,
		Completion:  req.Options.toOptions(),
	})

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Warn("event encoding failed", zap.Error(err))
			continue
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			// Client hung up; the engine notices via the request context.
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromptID    string            `json:"promptId"`
		UserContext map[string]string `json:"userContext"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	conv := s.engine.CreateSession(req.PromptID, req.UserContext)
	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: map[string]interface{}{
		"sessionId": conv.SessionID,
		"title":     conv.Title,
		"promptId":  conv.PromptID,
		"createdAt": conv.CreatedAt,
	}})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	conv, ok := s.engine.GetHistory(sessionID, limitParam(r, 50))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Conversation not found", "CONVERSATION_NOT_FOUND")
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: conv})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations := s.engine.ListConversations(limitParam(r, 50))
	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: conversations})
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req struct {
		Title string `json:"title"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		s.writeError(w, http.StatusBadRequest, "Title is required", "MISSING_TITLE")
		return
	}

	conv, err := s.engine.RenameSession(sessionID, title)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: map[string]interface{}{
		"sessionId":   conv.SessionID,
		"title":       conv.Title,
		"lastUpdated": conv.LastUpdated,
	}})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if !s.engine.DeleteSession(sessionID) {
		s.writeError(w, http.StatusNotFound, "Conversation not found", "CONVERSATION_NOT_FOUND")
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{
		Success: true, Message: "Conversation deleted successfully",
	})
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: s.prompts.List()})
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
		Icon        string `json:"icon"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.Name == "" || req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, "ID, name, and prompt are required", "MISSING_REQUIRED_FIELDS")
		return
	}

	created, err := s.prompts.CreateCustom(req.ID, prompt.CustomData{
		Name:        req.Name,
		Description: req.Description,
		Prompt:      req.Prompt,
		Icon:        req.Icon,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: created})
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
		Icon        string `json:"icon"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	updated, err := s.prompts.UpdateCustom(id, prompt.CustomData{
		Name:        req.Name,
		Description: req.Description,
		Prompt:      req.Prompt,
		Icon:        req.Icon,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: updated})
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.prompts.DeleteCustom(id); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{
		Success: true, Message: "Prompt deleted successfully",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "deepchat",
	})
}
