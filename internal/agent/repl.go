// Package agent composes retrieval and synthesis into answers, records
// them in chat sessions and drives the interactive loop.
package agent

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/wikichat/internal/config"
	"github.com/apexion-ai/wikichat/internal/session"
	"github.com/apexion-ai/wikichat/internal/tui"
)

// REPL is the interactive chat loop.
type REPL struct {
	chat   *Chat
	io     tui.IO
	config *config.Config
	log    zerolog.Logger
}

// NewREPL creates a loop reading from ui. cfg is only used for /config.
func NewREPL(chat *Chat, ui tui.IO, cfg *config.Config, log zerolog.Logger) *REPL {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &REPL{chat: chat, io: ui, config: cfg, log: log}
}

// Run reads input until EOF or /quit. Each cycle makes sure a session
// exists, then handles a slash command or answers a question.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		id, err := r.chat.Sessions().EnsureSession()
		if err != nil {
			r.io.Warning(string(StagePersist), err.Error())
		}
		r.refreshPrompt(id)

		input, err := r.io.ReadInput()
		// Interrupted while waiting for input: the line is never asked.
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}

		// Slash commands are intercepted before answering.
		if strings.HasPrefix(input, "/") {
			handled, shouldQuit := r.handleSlashCommand(input)
			if shouldQuit {
				return nil
			}
			if handled {
				continue
			}
		}

		r.ask(ctx, id, input)
	}
}

// RunOnce answers a single question in the current session.
func (r *REPL) RunOnce(ctx context.Context, question string) error {
	id, err := r.chat.Sessions().EnsureSession()
	if err != nil && !errors.Is(err, session.ErrNotPersisted) {
		return err
	}
	return r.ask(ctx, id, question)
}

func (r *REPL) ask(ctx context.Context, id, input string) error {
	r.io.UserMessage(input)
	r.io.ThinkingStart()

	ex, err := r.chat.Ask(ctx, id, input)
	if err != nil {
		r.io.Error(err.Error())
		return err
	}
	for _, w := range ex.Warnings() {
		r.io.Warning(string(w.Stage), w.Err.Error())
	}
	source := ""
	if ex.Result.Source != nil && ex.Result.Context != "" {
		source = ex.Result.Source.Title
	}
	r.io.Answer(ex.Result.Text, source)
	return nil
}

func (r *REPL) refreshPrompt(id string) {
	title := ""
	if s, ok := r.chat.Sessions().Get(id); ok {
		title = s.Title
	}
	r.io.SetSession(id, title)
}
