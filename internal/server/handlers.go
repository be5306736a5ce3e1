package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/verdiyev/caremate/internal/chat"
	"github.com/verdiyev/caremate/internal/domain"
	"github.com/verdiyev/caremate/internal/llm"
	"github.com/verdiyev/caremate/internal/version"
)

// ValidationError describes a rejected request field. It maps to HTTP 400
// and its message is safe to return to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// chatRequest is the body of POST /chat and of WebSocket chat frames.
type chatRequest struct {
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// chatResponse is the success body of POST /chat.
type chatResponse struct {
	Reply      string `json:"reply"`
	SessionID  string `json:"sessionId"`
	Model      string `json:"model,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// validate checks the request fields and converts them into a turn request.
// Gender is free text; anything unrecognized normalizes to "other".
func (req *chatRequest) validate() (chat.TurnRequest, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return chat.TurnRequest{}, &ValidationError{Field: "name", Message: "is required"}
	}
	if req.Age < 1 || req.Age > 120 {
		return chat.TurnRequest{}, &ValidationError{Field: "age", Message: "must be between 1 and 120"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return chat.TurnRequest{}, &ValidationError{Field: "message", Message: "is required"}
	}

	return chat.TurnRequest{
		Profile: domain.Profile{
			Name:   name,
			Age:    req.Age,
			Gender: domain.NormalizeGender(req.Gender),
		},
		Message:   req.Message,
		SessionID: strings.TrimSpace(req.SessionID),
	}, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	turn, err := req.validate()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.orch.HandleTurn(r.Context(), turn)
	if err != nil {
		// Detail stays in the log; the client gets a generic message so
		// provider internals never leak to the edge.
		var genErr *chat.GenerationError
		if errors.As(err, &genErr) {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "the assistant is temporarily unavailable, please try again"})
			return
		}
		s.log.Error().Err(err).Msg("chat turn failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:      result.Reply,
		SessionID:  result.SessionID,
		Model:      result.Model,
		DurationMs: result.Duration.Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "caremate",
		"version": version.Version,
		"endpoints": []string{
			"POST /chat",
			"GET /health",
			"GET /ws",
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

// wsFrame is one server-to-client WebSocket message. Type is "delta" while
// the reply is being generated, then a single "done" with the full reply,
// or "error".
type wsFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Reply     string `json:"reply,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20) // 1MB
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Msg("websocket closed")
			} else {
				s.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		turn, err := req.validate()
		if err != nil {
			conn.WriteJSON(wsFrame{Type: "error", Error: err.Error()})
			continue
		}

		result, err := s.orch.HandleTurnStream(r.Context(), turn, func(evt llm.StreamEvent) {
			if evt.Type == "delta" {
				conn.WriteJSON(wsFrame{Type: "delta", Content: evt.Content})
			}
		})
		if err != nil {
			conn.WriteJSON(wsFrame{Type: "error", Error: "the assistant is temporarily unavailable, please try again"})
			continue
		}

		conn.WriteJSON(wsFrame{
			Type:      "done",
			Reply:     result.Reply,
			SessionID: result.SessionID,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
