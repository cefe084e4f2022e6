package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"QuizMaster/internal/session"
)

//go:embed static/index.html
var static embed.FS

const maxBodyBytes = 1 << 20

// Chatter answers one user message given the visible history.
type Chatter interface {
	Chat(ctx context.Context, message string, history []session.Message) (string, error)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string            `json:"message"`
	History []session.Message `json:"history"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the chat widget over HTTP and WebSocket.
type Server struct {
	chatter Chatter
	backend string
	logger  *slog.Logger
	router  chi.Router

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer builds the router.
func NewServer(chatter Chatter, backend string, logger *slog.Logger) (*Server, error) {
	if chatter == nil {
		return nil, fmt.Errorf("chatter cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Server{
		chatter: chatter,
		backend: backend,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.index)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Post("/api/chat", s.chat)
	r.Get("/ws", s.socket)

	s.router = r
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled. Shutdown also closes
// open WebSocket sessions, which http.Server does not track once hijacked.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.CloseSockets)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("chat server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.logger.Info("chat server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Message == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	reply, err := s.chatter.Chat(r.Context(), req.Message, req.History)
	if err != nil {
		s.logger.Error("chat turn failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to generate reply"})
		return
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
