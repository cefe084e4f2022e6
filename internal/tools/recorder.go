package tools

import (
	"context"
	"fmt"
	"log/slog"

	"QuizMaster/internal/notify"
)

const (
	defaultName  = "Name not provided"
	defaultNotes = "not provided"
)

// Result is what both recording tools return to the model.
type Result struct {
	Recorded string `json:"recorded"`
}

// Acknowledged is the fixed result of a successful recording.
var Acknowledged = Result{Recorded: "ok"}

// UserDetails are the arguments of record_user_details.
type UserDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// UnknownQuestion are the arguments of record_unknown_question.
type UnknownQuestion struct {
	Question string `json:"question"`
}

// Recorder implements the recording tools on top of a Notifier.
type Recorder struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(notifier notify.Notifier, logger *slog.Logger) (*Recorder, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Recorder{notifier: notifier, logger: logger}, nil
}

// RecordUserDetails notifies the owner that a user left contact details.
func (r *Recorder) RecordUserDetails(ctx context.Context, d UserDetails) (Result, error) {
	if d.Name == "" {
		d.Name = defaultName
	}
	if d.Notes == "" {
		d.Notes = defaultNotes
	}
	r.logger.Info("recording user details", "email", d.Email, "name", d.Name)
	r.notifier.Push(ctx, fmt.Sprintf("Recording interest from %s with email %s and notes %s", d.Name, d.Email, d.Notes))
	return Acknowledged, nil
}

// RecordUnknownQuestion notifies the owner of a question the user could not answer.
func (r *Recorder) RecordUnknownQuestion(ctx context.Context, q UnknownQuestion) (Result, error) {
	r.logger.Info("recording unknown question", "question", q.Question)
	r.notifier.Push(ctx, fmt.Sprintf("Recording %s asked that User couldn't answer", q.Question))
	return Acknowledged, nil
}

// Handlers maps every declared tool name to its typed handler.
func (r *Recorder) Handlers() map[string]Handler {
	return map[string]Handler{
		RecordUserDetailsName:     Typed(r.RecordUserDetails),
		RecordUnknownQuestionName: Typed(r.RecordUnknownQuestion),
	}
}
