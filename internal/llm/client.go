package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultChatTimeout = 120 * time.Second

// ProviderConfig holds the connection settings for one backend provider.
type ProviderConfig struct {
	// BaseURL is the chat-completions endpoint root, e.g.
	// "https://api.openai.com/v1". Required.
	BaseURL string `json:"base_url" toml:"base_url"`

	// APIKey authenticates requests when set.
	APIKey string `json:"-" toml:"api_key"`
}

// SplitModelID splits a "provider:model-name" identifier into its parts.
// Model names may themselves contain colons; only the first separates.
func SplitModelID(id string) (provider, model string, err error) {
	provider, model, found := strings.Cut(id, ":")
	if !found || provider == "" || model == "" {
		return "", "", fmt.Errorf("model identifier %q is not in provider:model-name form", id)
	}
	return provider, model, nil
}

// HTTPChatModel is a chat-completions client for OpenAI-compatible endpoints.
// Most hosted providers and local gateways speak this shape; anything else
// needs its own ChatModel implementation.
type HTTPChatModel struct {
	// Model is the bare model name sent on the wire (no provider prefix).
	Model string

	// Provider holds endpoint and credentials.
	Provider ProviderConfig

	// HTTPClient overrides the HTTP client, mainly for tests.
	HTTPClient *http.Client
}

type wireToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Arguments   string         `json:"arguments,omitempty"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type wireChoice struct {
	Message struct {
		Role      string          `json:"role"`
		Content   json.RawMessage `json:"content"`
		ToolCalls []wireToolCall  `json:"tool_calls,omitempty"`
	} `json:"message"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat implements ChatModel over the OpenAI-compatible wire shape.
func (c *HTTPChatModel) Chat(ctx context.Context, msgs []*Message, toolDefs []ToolDefinition) (*Message, error) {
	if c.Provider.BaseURL == "" {
		return nil, errors.New("chat model has no base URL configured")
	}

	req := wireRequest{Model: c.Model}
	for _, msg := range msgs {
		content, err := json.Marshal(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("encode message content: %w", err)
		}
		wm := wireMessage{
			Role:       string(msg.Role),
			Content:    content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		req.Messages = append(req.Messages, wm)
	}
	for _, def := range toolDefs {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	url := strings.TrimRight(c.Provider.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Provider.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultChatTimeout}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("chat API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("chat response has no choices")
	}

	return decodeWireMessage(parsed.Choices[0])
}

// decodeWireMessage converts one response choice into a Message, tolerating
// both flat string content and structured part lists.
func decodeWireMessage(choice wireChoice) (*Message, error) {
	msg := &Message{Role: RoleAssistant}

	if len(choice.Message.Content) > 0 && string(choice.Message.Content) != "null" {
		var flat string
		if err := json.Unmarshal(choice.Message.Content, &flat); err == nil {
			msg.Content = flat
		} else {
			var parts []ContentPart
			if err := json.Unmarshal(choice.Message.Content, &parts); err == nil {
				msg.Parts = parts
			} else {
				// Unknown shape: keep it renderable rather than failing.
				msg.Content = string(choice.Message.Content)
			}
		}
	}

	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return msg, nil
}
