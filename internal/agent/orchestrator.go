package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apexion-ai/wikichat/internal/provider"
	"github.com/apexion-ai/wikichat/internal/wiki"
)

// Retriever fetches background text for a topic. *wiki.Client implements it.
type Retriever interface {
	Retrieve(ctx context.Context, topic string) wiki.Retrieval
}

// Stage names the pipeline step a Warning came from.
type Stage string

const (
	StageSearch     Stage = "search"
	StageExtract    Stage = "extract"
	StageCompletion Stage = "completion"
	StagePersist    Stage = "persist"
)

// Warning is a non-fatal diagnostic returned next to a result.
type Warning struct {
	Stage Stage
	Err   error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Stage, w.Err)
}

// Result is the answer to one question plus what it was based on.
type Result struct {
	RequestID string
	Text      string
	Context   string
	Source    *wiki.SearchHit
	Model     string
	Usage     provider.Usage
	Warnings  []Warning
}

// Failed reports whether the completion failed and Text is the apology.
func (r Result) Failed() bool {
	for _, w := range r.Warnings {
		if w.Stage == StageCompletion {
			return true
		}
	}
	return false
}

// Orchestrator runs retrieval then synthesis for a topic.
type Orchestrator struct {
	retriever Retriever
	synth     *Synthesizer
	log       zerolog.Logger
}

// NewOrchestrator wires a Retriever to a Synthesizer.
func NewOrchestrator(r Retriever, s *Synthesizer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{retriever: r, synth: s, log: log}
}

// Synthesizer returns the underlying synthesizer.
func (o *Orchestrator) Synthesizer() *Synthesizer { return o.synth }

// Answer retrieves context for topic and synthesizes an answer. It never
// fails; retrieval and completion errors are returned as warnings.
func (o *Orchestrator) Answer(ctx context.Context, topic string) Result {
	res := Result{RequestID: uuid.NewString()}
	log := o.log.With().Str("request_id", res.RequestID).Logger()

	r := o.retriever.Retrieve(ctx, topic)
	if r.SearchErr != nil {
		res.Warnings = append(res.Warnings, Warning{Stage: StageSearch, Err: r.SearchErr})
	}
	if r.ExtractErr != nil {
		res.Warnings = append(res.Warnings, Warning{Stage: StageExtract, Err: r.ExtractErr})
	}
	res.Context = r.Context
	res.Source = r.Hit

	ev := log.Debug().Str("topic", topic).Int("context_len", len(r.Context))
	if r.Hit != nil {
		ev = ev.Int("page_id", r.Hit.PageID).Str("page", r.Hit.Title)
	}
	ev.Msg("retrieved")

	c := o.synth.Synthesize(ctx, r.Context, topic)
	res.Text = c.Text
	res.Model = c.Model
	res.Usage = c.Usage
	if c.Err != nil {
		res.Warnings = append(res.Warnings, Warning{Stage: StageCompletion, Err: c.Err})
	}

	for _, w := range res.Warnings {
		log.Warn().Str("stage", string(w.Stage)).Err(w.Err).Msg("answer degraded")
	}
	return res
}
