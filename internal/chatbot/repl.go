package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"QuizMaster/internal/session"
)

// ModelLister is implemented by clients that can enumerate backend models.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// handleCommand handles special commands
func (b *Bot) handleCommand(ctx context.Context, cmd string, sess *session.Session, out io.Writer) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		sess.Reset()
		b.logger.Info("created new session", "session_id", sess.ID)
		fmt.Fprintln(out, "Started new session:", sess.ID)
		return false, nil

	case "/models":
		lister, ok := b.client.(ModelLister)
		if !ok {
			return false, fmt.Errorf("backend does not support listing models")
		}
		models, err := lister.ListModels(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list models: %w", err)
		}
		fmt.Fprintln(out, "\nAvailable models:")
		for i, model := range models.Models {
			current := ""
			if model.ID == b.model {
				current = " (current)"
			}
			fmt.Fprintf(out, "%d. %s%s\n", i+1, model.ID, current)
		}
		fmt.Fprintln(out)
		return false, nil

	case "/help":
		fmt.Fprintln(out, "Available commands:")
		fmt.Fprintln(out, "  /quit, /exit   - Exit the quiz")
		fmt.Fprintln(out, "  /new-session   - Start over with an empty history")
		fmt.Fprintln(out, "  /models        - List models offered by the backend")
		fmt.Fprintln(out, "  /help          - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
}

// RunREPL reads user messages line by line from in and writes replies to
// out until EOF or /quit.
func (b *Bot) RunREPL(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session) error {
	fmt.Fprintln(out, "=== Simple Python Quiz ===")
	fmt.Fprintf(out, "Session: %s\n", sess.ID)
	fmt.Fprintf(out, "Model: %s\n", b.model)
	fmt.Fprintln(out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := b.handleCommand(ctx, input, sess, out)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				b.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		reply, err := b.Chat(ctx, input, sess.History())
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			b.logger.Error("failed to send message", "session_id", sess.ID, "error", err)
			continue
		}
		sess.Append(input, reply)

		fmt.Fprintf(out, "Quizmaster: %s\n\n", reply)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(out, "Goodbye!")
	return nil
}
