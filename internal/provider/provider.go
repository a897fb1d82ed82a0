// Package provider defines the unified interface and shared types for all LLM providers.
// Each provider adapter (openai.go, anthropic.go) implements the Provider interface,
// normalizing a vendor-specific chat completion into a single Response.
package provider

import (
	"context"
	"errors"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the conversation roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single turn sent to the model.
type Message struct {
	Role    Role
	Content string
}

// ── Request / response types ─────────────────────────────────────────────────

// ChatRequest is the unified request format sent to a provider.
// Nil sampling fields leave the vendor default in place.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  *float64
	TopP         *float64
	MaxTokens    int
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a complete, non-streamed model answer.
type Response struct {
	Text         string
	Model        string
	FinishReason string
	Usage        Usage
}

// ErrEmptyCompletion is returned when the API answers without any choices.
var ErrEmptyCompletion = errors.New("provider: completion returned no choices")

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM providers.
// Implementations make exactly one request per call; they never retry.
type Provider interface {
	// Complete sends req and blocks until the full completion is available.
	Complete(ctx context.Context, req *ChatRequest) (*Response, error)

	// Name returns the provider identifier, e.g. "groq", "openai", "anthropic".
	Name() string

	// DefaultModel returns the model used when ChatRequest.Model is empty.
	DefaultModel() string
}
