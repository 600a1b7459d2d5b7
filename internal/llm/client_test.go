package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPChatModel_FlatContent(t *testing.T) {
	var gotAuth string
	var gotBody wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Paris"}}]}`))
	}))
	defer server.Close()

	model := &HTTPChatModel{
		Model:    "gpt-5-mini",
		Provider: ProviderConfig{BaseURL: server.URL, APIKey: "sk-test"},
	}

	reply, err := model.Chat(context.Background(), []*Message{UserMessage("capital of France?")}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.ExtractText() != "Paris" {
		t.Errorf("reply = %q, want Paris", reply.ExtractText())
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.Model != "gpt-5-mini" {
		t.Errorf("wire model = %q", gotBody.Model)
	}
}

func TestHTTPChatModel_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "add" {
			t.Errorf("tools on the wire = %+v", req.Tools)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,` +
			`"tool_calls":[{"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":1,\"b\":2}"}}]}}]}`))
	}))
	defer server.Close()

	model := &HTTPChatModel{Model: "m", Provider: ProviderConfig{BaseURL: server.URL}}
	toolDefs := []ToolDefinition{{Name: "add", Description: "Add two numbers.", Parameters: map[string]any{"type": "object"}}}

	reply, err := model.Chat(context.Background(), []*Message{UserMessage("1+2?")}, toolDefs)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(reply.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(reply.ToolCalls))
	}
	tc := reply.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "add" || tc.Arguments != `{"a":1,"b":2}` {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestHTTPChatModel_StructuredContentParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant",` +
			`"content":[{"type":"text","text":"structured answer"}]}}]}`))
	}))
	defer server.Close()

	model := &HTTPChatModel{Model: "m", Provider: ProviderConfig{BaseURL: server.URL}}
	reply, err := model.Chat(context.Background(), []*Message{UserMessage("q")}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.ExtractText() != "structured answer" {
		t.Errorf("reply = %q", reply.ExtractText())
	}
}

func TestHTTPChatModel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	model := &HTTPChatModel{Model: "m", Provider: ProviderConfig{BaseURL: server.URL}}
	_, err := model.Chat(context.Background(), []*Message{UserMessage("q")}, nil)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %v, want status code mentioned", err)
	}
}

func TestHTTPChatModel_NoBaseURL(t *testing.T) {
	model := &HTTPChatModel{Model: "m"}
	if _, err := model.Chat(context.Background(), []*Message{UserMessage("q")}, nil); err == nil {
		t.Fatal("expected error when base URL is missing")
	}
}
