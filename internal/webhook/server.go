// internal/webhook/server.go
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/user/ohime/internal/telegram"
	"github.com/user/ohime/internal/types"
	"github.com/user/ohime/pkg/llm"
)

// UpdateHandler routes a Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u *telegram.Update)
}

// ThreadReader lists the stored turns of a chat.
type ThreadReader interface {
	Messages(ctx context.Context, chatID types.ChatID) ([]types.ThreadMessage, error)
}

// Resetter resets a conversation: thread, pending alarm and state.
type Resetter interface {
	Reset(chatID types.ChatID, messageID int) error
}

// SystemPrompter renders the current system prompt.
type SystemPrompter interface {
	SystemPrompt(ctx context.Context) ([]llm.Message, error)
}

// Deps are the collaborators of a Server. Any of them may be nil, which
// disables the endpoints that need it.
type Deps struct {
	Updates UpdateHandler
	Secret  string
	Threads ThreadReader
	Resets  Resetter
	Prompts SystemPrompter
	Metrics http.Handler
}

// Server is the HTTP surface: the Telegram webhook, health, metrics and a
// small admin API over threads and the system prompt.
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// NewServer creates a Server and registers its routes.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /telegram/{secret}", s.handleTelegram)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /api/threads/{chat_id}", s.handleThread)
	s.mux.HandleFunc("DELETE /api/threads/{chat_id}", s.handleThreadReset)
	s.mux.HandleFunc("GET /api/prompt", s.handlePrompt)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	if s.deps.Updates == nil || s.deps.Secret == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.PathValue("secret")), []byte(s.deps.Secret)) != 1 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var u telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// Routing outlives the request: Telegram may drop the connection once
	// it has its 200.
	s.deps.Updates.HandleUpdate(context.WithoutCancel(r.Context()), &u)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics not configured")
		return
	}
	s.deps.Metrics.ServeHTTP(w, r)
}

func chatIDFromPath(w http.ResponseWriter, r *http.Request) (types.ChatID, bool) {
	id, err := types.ParseChatID(r.PathValue("chat_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	if s.deps.Threads == nil {
		writeError(w, http.StatusServiceUnavailable, "thread API not configured")
		return
	}
	chatID, ok := chatIDFromPath(w, r)
	if !ok {
		return
	}
	msgs, err := s.deps.Threads.Messages(r.Context(), chatID)
	if err != nil {
		slog.Error("read thread failed", "chat_id", chatID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if msgs == nil {
		msgs = []types.ThreadMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleThreadReset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resets == nil {
		writeError(w, http.StatusServiceUnavailable, "thread API not configured")
		return
	}
	chatID, ok := chatIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.deps.Resets.Reset(chatID, 0); err != nil {
		slog.Error("enqueue reset failed", "chat_id", chatID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "reset not accepted")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset queued"})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prompts == nil {
		writeError(w, http.StatusServiceUnavailable, "prompt API not configured")
		return
	}
	msgs, err := s.deps.Prompts.SystemPrompt(r.Context())
	if err != nil {
		slog.Error("compose prompt failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
