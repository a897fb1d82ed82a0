package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/wikichat/internal/provider"
	"github.com/apexion-ai/wikichat/internal/session"
)

// ErrEmptyQuestion is returned by Ask for blank input.
var ErrEmptyQuestion = errors.New("question is empty")

// Exchange is one question/answer cycle recorded in a session.
type Exchange struct {
	SessionID string
	Question  session.Message
	Answer    session.Message
	Result    Result
}

// Warnings returns retrieval, completion and persistence warnings together.
func (e Exchange) Warnings() []Warning { return e.Result.Warnings }

// Chat drives the per-submission cycle against the session store:
// append the question, answer it, append the answer.
type Chat struct {
	sessions *session.Manager
	orch     *Orchestrator
	log      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewChat creates a Chat.
func NewChat(m *session.Manager, o *Orchestrator, log zerolog.Logger) *Chat {
	return &Chat{sessions: m, orch: o, log: log, locks: make(map[string]*sync.Mutex)}
}

// Sessions returns the session manager.
func (c *Chat) Sessions() *session.Manager { return c.sessions }

// Orchestrator returns the orchestrator used for answers.
func (c *Chat) Orchestrator() *Orchestrator { return c.orch }

func (c *Chat) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

// Ask records text as a user question in session id, answers it and records
// the answer. Submissions to the same session are serialized. Errors are
// returned only for blank input and unknown sessions; persistence failures
// are reported as StagePersist warnings.
func (c *Chat) Ask(ctx context.Context, id, text string) (Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return Exchange{}, ErrEmptyQuestion
	}
	if !c.sessions.Has(id) {
		return Exchange{}, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}

	l := c.lockFor(id)
	l.Lock()
	defer l.Unlock()

	ex := Exchange{SessionID: id}
	var persistWarnings []Warning

	q, err := c.sessions.Append(id, provider.RoleUser, text)
	if err != nil && !errors.Is(err, session.ErrNotPersisted) {
		return Exchange{}, err
	}
	if err != nil {
		persistWarnings = append(persistWarnings, Warning{Stage: StagePersist, Err: err})
	}
	ex.Question = q

	ex.Result = c.orch.Answer(ctx, text)

	a, err := c.sessions.Append(id, provider.RoleAssistant, ex.Result.Text)
	if err != nil && !errors.Is(err, session.ErrNotPersisted) {
		// The session was deleted while the answer was being produced.
		return ex, err
	}
	if err != nil {
		persistWarnings = append(persistWarnings, Warning{Stage: StagePersist, Err: err})
	}
	ex.Answer = a
	ex.Result.Warnings = append(ex.Result.Warnings, persistWarnings...)

	c.log.Debug().
		Str("session", id).
		Str("request_id", ex.Result.RequestID).
		Int("warnings", len(ex.Result.Warnings)).
		Msg("exchange recorded")
	return ex, nil
}
