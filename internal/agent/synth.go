package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/wikichat/internal/provider"
)

const (
	// DefaultSystemPrompt frames every completion.
	DefaultSystemPrompt = "You are a knowledgeable AI assistant. Provide clear, concise, and accurate information."

	// Apology replaces the answer when the completion fails.
	Apology = "I apologize, but I encountered an error while generating the answer. Please try again."
)

// UserPrompt builds the user turn: a summarization request when background is
// non-blank, otherwise a request to answer from general knowledge.
func UserPrompt(background, topic string) string {
	if strings.TrimSpace(background) == "" {
		return fmt.Sprintf("No Wikipedia results were found for the topic '%s'. Please provide an informative answer on this topic.", topic)
	}
	return fmt.Sprintf("Summarize the following Wikipedia content for the topic '%s':\n\n%s", topic, background)
}

// Sampling holds the fixed completion parameters.
type Sampling struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultSampling returns temperature 0.5, top_p 1, 31200 max tokens and a
// 120s timeout.
func DefaultSampling() Sampling {
	return Sampling{Temperature: 0.5, TopP: 1, MaxTokens: 31200, Timeout: 120 * time.Second}
}

// Completion is the outcome of Synthesize. On failure Text is Apology and
// Err holds the cause.
type Completion struct {
	Text  string
	Model string
	Usage provider.Usage
	Err   error
}

var errBlankCompletion = errors.New("completion returned no text")

// Synthesizer turns retrieved context into an answer with one
// non-streaming chat completion.
type Synthesizer struct {
	provider     provider.Provider
	model        string
	systemPrompt string
	sampling     Sampling
	log          zerolog.Logger
}

// SynthesizerOptions configures a Synthesizer. Empty fields use defaults.
type SynthesizerOptions struct {
	Model        string
	SystemPrompt string
	Sampling     Sampling
	Logger       zerolog.Logger
}

// NewSynthesizer creates a Synthesizer on top of p.
func NewSynthesizer(p provider.Provider, opts SynthesizerOptions) *Synthesizer {
	s := &Synthesizer{
		provider:     p,
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		sampling:     opts.Sampling,
		log:          opts.Logger,
	}
	if s.model == "" {
		s.model = p.DefaultModel()
	}
	if s.systemPrompt == "" {
		s.systemPrompt = DefaultSystemPrompt
	}
	if s.sampling == (Sampling{}) {
		s.sampling = DefaultSampling()
	}
	if s.sampling.Timeout <= 0 {
		s.sampling.Timeout = DefaultSampling().Timeout
	}
	return s
}

// Model returns the model used for completions.
func (s *Synthesizer) Model() string { return s.model }

// Synthesize asks the model about topic given the retrieved background text. It never returns an
// error directly: failures come back as Apology with Err set.
func (s *Synthesizer) Synthesize(ctx context.Context, background, topic string) Completion {
	ctx, cancel := contextWithTimeout(ctx, s.sampling.Timeout)
	defer cancel()

	temp, topP := s.sampling.Temperature, s.sampling.TopP
	req := &provider.ChatRequest{
		Model:        s.model,
		SystemPrompt: s.systemPrompt,
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: UserPrompt(background, topic)},
		},
		Temperature: &temp,
		TopP:        &topP,
		MaxTokens:   s.sampling.MaxTokens,
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = errBlankCompletion
	}
	if err != nil {
		s.log.Warn().Err(err).Str("provider", s.provider.Name()).Str("model", s.model).Msg("completion failed")
		return Completion{Text: Apology, Model: s.model, Err: err}
	}

	s.log.Debug().
		Str("provider", s.provider.Name()).
		Str("model", resp.Model).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("completion done")
	return Completion{Text: resp.Text, Model: resp.Model, Usage: resp.Usage}
}

func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
