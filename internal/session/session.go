package session

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message shown in the widget
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the in-memory history of one chat. It is owned by a single
// connection or terminal and is not safe for concurrent use.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Backend   string    `json:"backend"`
	Messages  []Message `json:"messages"`
}

// New starts an empty session.
func New(backend string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Backend:   backend,
		Messages:  []Message{},
	}
}

// Append records a completed turn.
func (s *Session) Append(userMessage, reply string) {
	now := time.Now()
	s.Messages = append(s.Messages,
		Message{Role: RoleUser, Content: userMessage, Timestamp: now},
		Message{Role: RoleAssistant, Content: reply, Timestamp: now},
	)
}

// History returns a copy of the messages so far.
func (s *Session) History() []Message {
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Reset clears the history and assigns a fresh ID.
func (s *Session) Reset() {
	s.ID = uuid.NewString()
	s.StartTime = time.Now()
	s.Messages = []Message{}
}
