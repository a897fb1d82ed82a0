package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func float(v float64) *float64 { return &v }

// --- OpenAI provider name detection ---

func TestOpenAIProvider_NameDetection(t *testing.T) {
	tests := []struct {
		baseURL  string
		expected string
	}{
		{"", "openai"},
		{"https://api.groq.com/openai/v1", "groq"},
		{"https://api.deepseek.com", "deepseek"},
		{"https://api.moonshot.cn/v1", "kimi"},
		{"https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen"},
		{"https://open.bigmodel.cn/api/paas/v4/", "glm"},
		{"https://example.internal/v1", "openai"},
	}
	for _, tt := range tests {
		p := NewOpenAIProvider("key", tt.baseURL, "m")
		if got := p.Name(); got != tt.expected {
			t.Errorf("Name() for %q = %q, want %q", tt.baseURL, got, tt.expected)
		}
	}
}

func TestOpenAIProvider_DefaultModelFallback(t *testing.T) {
	p := NewOpenAIProvider("key", "", "")
	if p.DefaultModel() != "gpt-4o-mini" {
		t.Errorf("DefaultModel() = %q, want gpt-4o-mini", p.DefaultModel())
	}
}

// --- OpenAI request shaping against a fake server ---

func TestOpenAIProvider_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "llama-3.3-70b-versatile",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Osmosis is diffusion of water."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, "llama-3.3-70b-versatile")
	resp, err := p.Complete(context.Background(), &ChatRequest{
		SystemPrompt: "be brief",
		Messages:     []Message{{Role: RoleUser, Content: "What is osmosis"}},
		Temperature:  float(0.5),
		TopP:         float(1),
		MaxTokens:    31200,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Text != "Osmosis is diffusion of water." {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 7 {
		t.Errorf("Usage = %+v, want 12/7", resp.Usage)
	}

	if got["model"] != "llama-3.3-70b-versatile" {
		t.Errorf("model = %v", got["model"])
	}
	if got["temperature"] != 0.5 {
		t.Errorf("temperature = %v, want 0.5", got["temperature"])
	}
	if got["top_p"] != 1.0 {
		t.Errorf("top_p = %v, want 1", got["top_p"])
	}
	if got["max_completion_tokens"] != 31200.0 {
		t.Errorf("max_completion_tokens = %v, want 31200", got["max_completion_tokens"])
	}
	if _, ok := got["stop"]; ok {
		t.Error("stop should not be sent")
	}
	if stream, ok := got["stream"]; ok && stream != false {
		t.Errorf("stream = %v, want absent or false", stream)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages len = %d, want 2", len(msgs))
	}
	first := msgs[0].(map[string]any)
	second := msgs[1].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Errorf("first message = %v", first)
	}
	if second["role"] != "user" || second["content"] != "What is osmosis" {
		t.Errorf("second message = %v", second)
	}
}

func TestOpenAIProvider_ServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, "m")
	_, err := p.Complete(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, "m")
	_, err := p.Complete(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != ErrEmptyCompletion {
		t.Errorf("err = %v, want ErrEmptyCompletion", err)
	}
}

// --- Anthropic ---

func TestAnthropicProvider_Metadata(t *testing.T) {
	p := NewAnthropicProvider("key", "", "")
	if p.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", p.Name())
	}
	if p.DefaultModel() != "claude-sonnet-4-20250514" {
		t.Errorf("DefaultModel() = %q", p.DefaultModel())
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Hello "}, {"type": "text", "text": "there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("key", srv.URL, "claude-test")
	resp, err := p.Complete(context.Background(), &ChatRequest{
		SystemPrompt: "sys",
		Messages:     []Message{{Role: RoleUser, Content: "hi"}},
		Temperature:  float(0.5),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Hello there" {
		t.Errorf("Text = %q, want %q", resp.Text, "Hello there")
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if got["max_tokens"] != float64(anthropicDefaultMaxTokens) {
		t.Errorf("max_tokens = %v, want default %d", got["max_tokens"], anthropicDefaultMaxTokens)
	}
	if got["temperature"] != 0.5 {
		t.Errorf("temperature = %v", got["temperature"])
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleUser.Valid() || !RoleAssistant.Valid() {
		t.Error("user and assistant must be valid")
	}
	if Role("system").Valid() {
		t.Error("system is not a conversation role")
	}
}
