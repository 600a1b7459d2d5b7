package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dicklesworthstone/quorum/internal/tools"
)

// defaultMaxToolRounds bounds the tool-use loop of a single agent invocation.
const defaultMaxToolRounds = 20

// ErrExceedMaxToolRounds is returned when an agent's tool loop does not
// produce a plain answer within its round limit.
var ErrExceedMaxToolRounds = errors.New("exceeds max tool rounds")

// ToolDefinition describes a tool to a chat model.
type ToolDefinition struct {
	// Name is the tool identifier the model uses in tool calls.
	Name string `json:"name"`
	// Description tells the model what the tool does and when to use it.
	Description string `json:"description"`
	// Parameters is the JSON Schema for the tool's argument object.
	Parameters map[string]any `json:"parameters"`
}

// ChatModel is a single chat-completion backend. One call is one completion:
// the model reads the conversation and either answers or requests tool calls.
type ChatModel interface {
	Chat(ctx context.Context, msgs []*Message, toolDefs []ToolDefinition) (*Message, error)
}

// ModelAgent is one reasoning agent bound to a specific backend model.
// Invoke accepts a prompt and returns the agent's final answer; any tool use
// happens internally. Implementations are opaque to the orchestrator.
type ModelAgent interface {
	// Identifier returns the stable "provider:model-name" string for this
	// agent. It is the merge key for aggregation and must not change.
	Identifier() string

	// Invoke runs the agent on a prompt and returns its final message.
	Invoke(ctx context.Context, prompt string) (*Message, error)
}

// ToolLoopAgent drives a ChatModel through a bounded tool-use loop with a
// fixed toolset. It is the standard ModelAgent implementation: dispatch the
// prompt, execute any requested tools, feed results back, and stop when the
// model replies without tool calls.
type ToolLoopAgent struct {
	// Model is the "provider:model-name" identifier.
	Model string

	// Chat is the backend completion client.
	Chat ChatModel

	// Tools is the fixed toolset available to the model.
	Tools *tools.Registry

	// SystemPrompt is prepended to every invocation.
	SystemPrompt string

	// MaxToolRounds overrides the default tool-loop bound when positive.
	MaxToolRounds int

	// Logger receives per-round events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Identifier returns the agent's model identifier.
func (a *ToolLoopAgent) Identifier() string {
	return a.Model
}

// Invoke runs the tool loop until the model produces a plain answer.
func (a *ToolLoopAgent) Invoke(ctx context.Context, prompt string) (*Message, error) {
	if a.Chat == nil {
		return nil, errors.New("tool loop agent has no chat model")
	}

	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRounds := a.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	var toolDefs []ToolDefinition
	if a.Tools != nil {
		for _, tool := range a.Tools.List() {
			toolDefs = append(toolDefs, ToolDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			})
		}
	}

	msgs := []*Message{UserMessage(prompt)}
	if a.SystemPrompt != "" {
		msgs = append([]*Message{SystemMessage(a.SystemPrompt)}, msgs...)
	}

	for round := 0; round < maxRounds; round++ {
		reply, err := a.Chat.Chat(ctx, msgs, toolDefs)
		if err != nil {
			return nil, fmt.Errorf("chat %s: %w", a.Model, err)
		}

		if len(reply.ToolCalls) == 0 {
			return reply, nil
		}

		msgs = append(msgs, reply)
		for _, call := range reply.ToolCalls {
			result := a.runTool(ctx, call, logger)
			msgs = append(msgs, ToolMessage(result, call.ID, call.Name))
		}
	}

	return nil, fmt.Errorf("agent %s: %w", a.Model, ErrExceedMaxToolRounds)
}

// runTool executes one requested tool call. Tool errors are reported back to
// the model as text so it can recover; they never abort the invocation.
func (a *ToolLoopAgent) runTool(ctx context.Context, call ToolCall, logger *slog.Logger) string {
	if a.Tools == nil {
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}
	tool, ok := a.Tools.Get(call.Name)
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}

	result, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		logger.Warn("agent tool call failed",
			"model", a.Model,
			"tool", call.Name,
			"error", err,
		)
		return fmt.Sprintf("error: %v", err)
	}

	logger.Debug("agent tool call complete",
		"model", a.Model,
		"tool", call.Name,
	)
	return result
}
