package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"QuizMaster/internal/session"
	"QuizMaster/internal/telemetry"
	"QuizMaster/internal/tools"
)

var (
	// ErrMaxIterations is returned when the model keeps requesting tools past
	// the configured number of requests.
	ErrMaxIterations = errors.New("tool call limit reached")
	// ErrEmptyResponse is returned when the model answers without a usable choice.
	ErrEmptyResponse = errors.New("empty response from model")
)

// emptyToolResult is sent back for tool names the registry does not know.
const emptyToolResult = "{}"

// ChatCompleter is the part of the chat-completions API the bot needs.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures a Bot.
type Options struct {
	Model         string
	SystemPrompt  string
	MaxIterations int
	Logger        *slog.Logger
	Telemetry     telemetry.Providers
}

// Bot runs quiz turns against a chat-completions backend.
type Bot struct {
	client        ChatCompleter
	registry      *tools.Registry
	model         string
	systemPrompt  string
	maxIterations int
	logger        *slog.Logger
	tracer        trace.Tracer

	requestDuration metric.Float64Histogram
	toolCalls       metric.Int64Counter
	unknownTools    metric.Int64Counter
	promptTokens    metric.Int64Counter
	replyTokens     metric.Int64Counter
}

// New creates a Bot.
func New(client ChatCompleter, registry *tools.Registry, opts Options) (*Bot, error) {
	if client == nil {
		return nil, fmt.Errorf("chat client cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry cannot be nil")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if opts.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be at least 1, got %d", opts.MaxIterations)
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	tel := opts.Telemetry.OrNoop()

	b := &Bot{
		client:        client,
		registry:      registry,
		model:         opts.Model,
		systemPrompt:  opts.SystemPrompt,
		maxIterations: opts.MaxIterations,
		logger:        opts.Logger,
		tracer:        tel.Tracer,
	}

	var err error
	if b.requestDuration, err = tel.Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}
	if b.toolCalls, err = tel.Meter.Int64Counter(
		"quiz.tool.calls",
		metric.WithDescription("Tool calls executed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if b.unknownTools, err = tel.Meter.Int64Counter(
		"quiz.tool.unknown",
		metric.WithDescription("Tool calls naming an unregistered tool"),
	); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if b.promptTokens, err = tel.Meter.Int64Counter("llm.usage.prompt_tokens"); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if b.replyTokens, err = tel.Meter.Int64Counter("llm.usage.completion_tokens"); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return b, nil
}

// Model returns the model identifier sent with every request.
func (b *Bot) Model() string {
	return b.model
}

// Chat answers one user message given the prior visible history.
// Only user and assistant entries of history are forwarded.
func (b *Bot) Chat(ctx context.Context, message string, history []session.Message) (string, error) {
	ctx, span := b.tracer.Start(ctx, "chat_turn")
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: b.systemPrompt,
	})
	for _, msg := range history {
		switch msg.Role {
		case session.RoleUser, session.RoleAssistant:
			messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
		default:
			b.logger.Warn("dropping history entry", "role", msg.Role)
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	answer, _, err := b.Complete(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		return "", err
	}
	return answer, nil
}

// Complete runs the tool-calling loop on messages until the model produces
// a final answer. It returns the answer and the accumulated conversation.
// On error the conversation may end with assistant and tool messages the
// model has not seen yet.
func (b *Bot) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, []openai.ChatCompletionMessage, error) {
	for request := 1; request <= b.maxIterations; request++ {
		resp, err := b.request(ctx, messages)
		if err != nil {
			return "", messages, err
		}
		if len(resp.Choices) == 0 {
			return "", messages, ErrEmptyResponse
		}

		choice := resp.Choices[0]
		calls := choice.Message.ToolCalls
		if len(calls) == 0 {
			if choice.FinishReason == openai.FinishReasonToolCalls {
				return "", messages, fmt.Errorf("%w: tool calls signalled but none listed", ErrEmptyResponse)
			}
			b.logger.Info("model answered", "requests", request, "finish_reason", string(choice.FinishReason))
			return choice.Message.Content, messages, nil
		}

		assistant := choice.Message
		if assistant.Role == "" {
			assistant.Role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, assistant)

		for _, call := range calls {
			result, err := b.runTool(ctx, call)
			if err != nil {
				return "", messages, err
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	b.logger.Error("model kept requesting tools", "limit", b.maxIterations)
	return "", messages, fmt.Errorf("%w after %d requests", ErrMaxIterations, b.maxIterations)
}

func (b *Bot) request(ctx context.Context, messages []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error) {
	ctx, span := b.tracer.Start(ctx, "model_request", trace.WithAttributes(
		attribute.String("llm.model", b.model),
		attribute.Int("llm.messages", len(messages)),
	))
	defer span.End()

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: messages,
		Tools:    b.registry.Tools(),
	})
	b.requestDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return resp, fmt.Errorf("chat completion failed: %w", err)
	}

	b.promptTokens.Add(ctx, int64(resp.Usage.PromptTokens))
	b.replyTokens.Add(ctx, int64(resp.Usage.CompletionTokens))
	return resp, nil
}

// runTool executes one call. Unknown tools degrade to an empty result;
// every other failure aborts the turn.
func (b *Bot) runTool(ctx context.Context, call openai.ToolCall) (string, error) {
	name := call.Function.Name
	ctx, span := b.tracer.Start(ctx, "tool_call", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	b.logger.Info("tool called", "tool", name, "call_id", call.ID)
	b.toolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool.name", name)))

	result, err := b.registry.Dispatch(ctx, name, call.Function.Arguments)
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		b.logger.Warn("model requested unknown tool", "tool", name, "call_id", call.ID)
		b.unknownTools.Add(ctx, 1)
		span.AddEvent("unknown tool")
		return emptyToolResult, nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		b.logger.Error("tool call failed", "tool", name, "error", err)
		return "", err
	}
	return result, nil
}
