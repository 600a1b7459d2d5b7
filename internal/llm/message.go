// Package llm defines the boundary to language-model backends: chat messages,
// the per-model agent interface, and a generic chat-completions adapter.
// Orchestration code depends only on the interfaces here; backends vary in
// wire format and in the shape of the content they return.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleSystem marks instruction messages injected by the orchestrator.
	RoleSystem Role = "system"
	// RoleUser marks messages originating from the caller's question.
	RoleUser Role = "user"
	// RoleAssistant marks model-generated messages.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool execution results fed back to the model.
	RoleTool Role = "tool"
)

// ToolCall is a single tool invocation requested by an assistant message.
type ToolCall struct {
	// ID uniquely identifies the call within one exchange.
	ID string `json:"id"`
	// Name is the tool being invoked.
	Name string `json:"name"`
	// Arguments is the JSON-encoded argument object.
	Arguments string `json:"arguments"`
}

// ContentPart is one piece of a multi-part message body. Some backends return
// structured part lists instead of a flat string.
type ContentPart struct {
	// Type is the part discriminator; "text" parts carry Text.
	Type string `json:"type"`
	// Text is the textual payload for text parts.
	Text string `json:"text,omitempty"`
	// Extra holds backend-specific fields preserved for fallback rendering.
	Extra map[string]any `json:"extra,omitempty"`
}

// Message is one turn in a conversation with a model.
type Message struct {
	// Role is the message author.
	Role Role `json:"role"`

	// Content is the flat text body. Empty when Parts carries the content.
	Content string `json:"content"`

	// Parts is the structured multi-part body some backends return.
	Parts []ContentPart `json:"parts,omitempty"`

	// ToolCalls are tool invocations requested by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-result message to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is the tool that produced a tool-result message.
	ToolName string `json:"tool_name,omitempty"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string, toolCalls []ToolCall) *Message {
	return &Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage builds a tool-result message for the given call ID.
func ToolMessage(content, toolCallID, toolName string) *Message {
	return &Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, ToolName: toolName}
}

// TextExtractable is implemented by values that can render themselves as
// best-effort plain text. Backend adapters implement this for their native
// response shapes so aggregation never has to type-switch on payloads.
type TextExtractable interface {
	// ExtractText returns the primary textual content of the value.
	// It never fails; adapters fall back to a stringified representation.
	ExtractText() string
}

var _ TextExtractable = (*Message)(nil)

// ExtractText returns the message's primary text. Flat content wins; otherwise
// the first text part is used; otherwise the parts are stringified so callers
// always get something renderable. Terminal escapes are stripped since some
// CLI-driven backends leak them into output.
func (m *Message) ExtractText() string {
	if m == nil {
		return ""
	}
	if m.Content != "" {
		return ansi.Strip(m.Content)
	}

	for _, part := range m.Parts {
		if part.Type == "text" && part.Text != "" {
			return ansi.Strip(part.Text)
		}
	}

	if len(m.Parts) > 0 {
		blob, err := json.Marshal(m.Parts)
		if err != nil {
			return fmt.Sprintf("%+v", m.Parts)
		}
		return string(blob)
	}

	return ""
}

// String renders the message for logs and transcripts.
func (m *Message) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", m.Role, m.ExtractText())
	for _, tc := range m.ToolCalls {
		fmt.Fprintf(&sb, "\ntool_call %s %s(%s)", tc.ID, tc.Name, tc.Arguments)
	}
	if m.ToolCallID != "" {
		fmt.Fprintf(&sb, "\ntool_call_id: %s", m.ToolCallID)
	}
	return sb.String()
}
