package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	// ErrUnknownTool is returned when the model names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when tool arguments cannot be decoded.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Handler executes one tool call with already-parsed JSON arguments.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Typed adapts a function taking a struct argument into a Handler.
// Arguments are decoded by json tag; keys the struct does not declare are
// rejected.
func Typed[T any, R any](fn func(context.Context, T) (R, error)) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		var in T
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &in,
			TagName:     "json",
			ErrorUnused: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create argument decoder: %w", err)
		}
		if err := decoder.Decode(args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		return fn(ctx, in)
	}
}

type entry struct {
	tool     openai.Tool
	required []string
	handler  Handler
}

// Registry maps declared tool names to handlers. It is immutable after
// construction.
type Registry struct {
	tools   []openai.Tool
	entries map[string]entry
}

// NewRegistry pairs declarations with handlers. Every declared tool must
// have a handler and every handler a declaration.
func NewRegistry(declared []openai.Tool, handlers map[string]Handler) (*Registry, error) {
	r := &Registry{
		tools:   make([]openai.Tool, 0, len(declared)),
		entries: make(map[string]entry, len(declared)),
	}

	for _, tool := range declared {
		if tool.Function == nil || tool.Function.Name == "" {
			return nil, fmt.Errorf("tool declaration without a function name")
		}
		name := tool.Function.Name
		if _, dup := r.entries[name]; dup {
			return nil, fmt.Errorf("tool %s declared twice", name)
		}
		handler, ok := handlers[name]
		if !ok || handler == nil {
			return nil, fmt.Errorf("tool %s has no handler", name)
		}
		r.entries[name] = entry{
			tool:     tool,
			required: requiredFields(tool.Function.Parameters),
			handler:  handler,
		}
		r.tools = append(r.tools, tool)
	}

	var orphans []string
	for name := range handlers {
		if _, ok := r.entries[name]; !ok {
			orphans = append(orphans, name)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		return nil, fmt.Errorf("handlers without declaration: %v", orphans)
	}

	return r, nil
}

func requiredFields(params interface{}) []string {
	switch p := params.(type) {
	case jsonschema.Definition:
		return p.Required
	case *jsonschema.Definition:
		if p != nil {
			return p.Required
		}
	}
	return nil
}

// Tools returns the declarations in registration order.
func (r *Registry) Tools() []openai.Tool {
	out := make([]openai.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Dispatch runs the named tool with JSON-encoded arguments and returns the
// JSON-encoded result. Arguments are parsed before the name is looked up, so
// malformed JSON is ErrInvalidArguments even for unknown tools.
func (r *Registry) Dispatch(ctx context.Context, name, arguments string) (string, error) {
	args := map[string]interface{}{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
		}
	}

	e, ok := r.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	for _, field := range e.required {
		if _, ok := args[field]; !ok {
			return "", fmt.Errorf("%w: %s: missing required field %q", ErrInvalidArguments, name, field)
		}
	}

	result, err := e.handler(ctx, args)
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", name, err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s result: %w", name, err)
	}
	return string(out), nil
}
