package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"QuizMaster/internal/session"
)

// SocketRequest is one client frame on /ws.
type SocketRequest struct {
	Message string `json:"message"`
}

// SocketResponse is one server frame on /ws.
type SocketResponse struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// socket upgrades the connection and serves it until the client leaves.
// The handler blocks so the request context stays live for the session.
func (s *Server) socket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.track(conn)
	defer s.untrack(conn)

	s.serveSocket(r.Context(), conn)
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// CloseSockets closes every open /ws connection. Their handlers return once
// the pending read fails.
func (s *Server) CloseSockets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) serveSocket(ctx context.Context, conn net.Conn) {
	sess := session.New(s.backend)
	log := s.logger.With("session_id", sess.ID)
	log.Info("chat session opened")
	defer func() {
		log.Info("chat session closed", "messages", len(sess.Messages))
	}()

	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			var closed wsutil.ClosedError
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.As(err, &closed) {
				log.Warn("failed to read frame", "error", err)
			}
			return
		}
		if op != ws.OpText {
			continue
		}

		var req SocketRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Message == "" {
			if !s.writeFrame(conn, SocketResponse{Error: "expected {\"message\": \"...\"}"}) {
				return
			}
			continue
		}

		reply, err := s.chatter.Chat(ctx, req.Message, sess.History())
		if err != nil {
			log.Error("chat turn failed", "error", err)
			if !s.writeFrame(conn, SocketResponse{Error: "failed to generate reply"}) {
				return
			}
			continue
		}
		sess.Append(req.Message, reply)

		if !s.writeFrame(conn, SocketResponse{Role: session.RoleAssistant, Content: reply}) {
			return
		}
	}
}

func (s *Server) writeFrame(conn net.Conn, resp SocketResponse) bool {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode frame", "error", err)
		return false
	}
	if err := wsutil.WriteServerText(conn, payload); err != nil {
		s.logger.Warn("failed to write frame", "error", err)
		return false
	}
	return true
}
