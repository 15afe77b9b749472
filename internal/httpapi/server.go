package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/anvh/mentora/internal/agent"
	"github.com/anvh/mentora/internal/config"
	"github.com/anvh/mentora/internal/enrich"
	"github.com/anvh/mentora/internal/observability"
	"github.com/anvh/mentora/internal/profile"
	"github.com/anvh/mentora/internal/registry"
)

// ChatRequest is the payload for one chat exchange.
type ChatRequest struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// ChatResponse carries the assistant's reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ChatMessage is one decoded history turn.
type ChatMessage struct {
	Role     string `json:"role"`
	Contents string `json:"contents"`
}

var (
	errUnavailable = errors.New("resources unavailable")
	errAgent       = errors.New("agent call failed")
	errPersist     = errors.New("checkpoint persistence failed")
)

type Server struct {
	cfg      config.Config
	registry *registry.Registry
	profiles profile.Store
	agent    *agent.Agent
	enricher *enrich.Service
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

func New(
	cfg config.Config,
	reg *registry.Registry,
	profiles profile.Store,
	ag *agent.Agent,
	enricher *enrich.Service,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:         cfg,
		registry:    reg,
		profiles:    profiles,
		agent:       ag,
		enricher:    enricher,
		metrics:     metrics,
		threadLocks: make(map[string]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive a user's chat
				// session if the service is exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/chat/history/{user_id}/{thread_id}", s.handleHistory)
	r.Get("/v1/profile/{user_id}", s.handleProfile)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.ThreadID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_id and thread_id are required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	reply, err := s.completeExchange(r.Context(), req.UserID, req.ThreadID, req.Message)
	switch {
	case errors.Is(err, errUnavailable):
		s.metrics.ChatRequests.WithLabelValues("unavailable").Inc()
		respondError(w, http.StatusServiceUnavailable, "agent_unavailable", err.Error())
		return
	case errors.Is(err, errAgent):
		s.metrics.ChatRequests.WithLabelValues("agent_error").Inc()
		respondError(w, http.StatusBadGateway, "agent_error", err.Error())
		return
	case errors.Is(err, errPersist):
		s.metrics.ChatRequests.WithLabelValues("store_error").Inc()
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	case err != nil:
		s.metrics.ChatRequests.WithLabelValues("error").Inc()
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.metrics.ChatRequests.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

// completeExchange runs the primary chat path: resources, profile-prefixed
// reply, checkpoint persistence, then the detached enrichment signal.
func (s *Server) completeExchange(ctx context.Context, userID, threadID, message string) (string, error) {
	res, err := s.registry.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnavailable, err)
	}

	// Personalization is best-effort: a failed profile read falls back to an
	// unpersonalized reply rather than failing the exchange.
	prof, err := s.profiles.FindOne(ctx, userID)
	if err != nil {
		prof = nil
	}

	reply, err := s.agent.Reply(ctx, prof, message)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errAgent, err)
	}

	// Persistence and turn-counting for one thread must not interleave:
	// the cadence gate relies on the count matching what was stored.
	unlock := s.lockThread(userID, threadID)
	defer unlock()
	if err := res.Writer.AppendExchange(ctx, threadID, message, reply); err != nil {
		return "", fmt.Errorf("%w: %v", errPersist, err)
	}

	s.enricher.ObserveExchange(userID, threadID)
	return reply, nil
}

func (s *Server) lockThread(userID, threadID string) func() {
	k := userID + "/" + threadID
	s.mu.Lock()
	l, ok := s.threadLocks[k]
	if !ok {
		l = &sync.Mutex{}
		s.threadLocks[k] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	threadID := chi.URLParam(r, "thread_id")

	res, err := s.registry.Get(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "agent_unavailable", err.Error())
		return
	}

	turns, err := res.Digger.Decode(r.Context(), threadID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "decode_error", err.Error())
		return
	}
	if len(turns) == 0 {
		respondError(w, http.StatusNotFound, "history_not_found", "no chat history for this thread")
		return
	}

	history := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		history = append(history, ChatMessage{Role: string(t.Role), Contents: t.Text})
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	prof, err := s.profiles.FindOne(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if prof == nil {
		respondError(w, http.StatusNotFound, "profile_not_found", "no profile for this user")
		return
	}
	respondJSON(w, http.StatusOK, prof)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	threadID := strings.TrimSpace(r.URL.Query().Get("thread_id"))
	if userID == "" || threadID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameters user_id and thread_id are required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		return nil
	})

	for {
		var req struct {
			Message string `json:"message"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		s.metrics.WSMessages.WithLabelValues("inbound").Inc()

		if strings.TrimSpace(req.Message) == "" {
			continue
		}

		reply, err := s.completeExchange(r.Context(), userID, threadID, req.Message)
		out := map[string]string{"reply": reply}
		if err != nil {
			out = map[string]string{"error": err.Error()}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			return
		}
		s.metrics.WSMessages.WithLabelValues("outbound").Inc()
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
