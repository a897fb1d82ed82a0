package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apexion-ai/wikichat/internal/session"
	"github.com/apexion-ai/wikichat/internal/tui"
)

// handleSlashCommand runs a /command. It returns (handled, shouldQuit).
func (r *REPL) handleSlashCommand(input string) (bool, bool) {
	// Parse command and arguments.
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		r.io.SystemMessage("Bye.")
		return true, true
	case "/new":
		return r.handleNew(), false
	case "/list", "/sessions":
		return r.handleList(), false
	case "/switch", "/resume":
		return r.handleSwitch(arg), false
	case "/delete":
		return r.handleDelete(arg), false
	case "/history":
		return r.handleHistory(), false
	case "/config":
		return r.handleConfig(), false
	case "/help":
		return r.handleHelp(), false
	default:
		r.io.Error(fmt.Sprintf("Unknown command %s. Type /help for the list.", cmd))
		return true, false
	}
}

func (r *REPL) reportPersist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, session.ErrNotPersisted) {
		r.io.Warning(string(StagePersist), err.Error())
		return false
	}
	r.io.Error(err.Error())
	return true
}

func (r *REPL) handleNew() bool {
	id, err := r.chat.Sessions().Create()
	if r.reportPersist(err) {
		return true
	}
	r.io.SystemMessage(fmt.Sprintf("Started new chat %s.", id))
	return true
}

func (r *REPL) handleList() bool {
	m := r.chat.Sessions()
	r.io.SystemMessage(tui.FormatSessionList(m.List(), m.Capacity()))
	return true
}

// resolve maps a user-typed id prefix to a session, reporting failures.
func (r *REPL) resolve(cmd, prefix string) (string, bool) {
	if prefix == "" {
		r.io.SystemMessage(fmt.Sprintf("Usage: %s <session-id-prefix>", cmd))
		return "", false
	}
	id, err := r.chat.Sessions().Resolve(prefix)
	switch {
	case errors.Is(err, session.ErrAmbiguous):
		r.io.SystemMessage(fmt.Sprintf("%v\nProvide a longer prefix.", err))
		return "", false
	case err != nil:
		r.io.Error(fmt.Sprintf("No session found matching %q", prefix))
		return "", false
	}
	return id, true
}

func (r *REPL) handleSwitch(prefix string) bool {
	id, ok := r.resolve("/switch", prefix)
	if !ok {
		return true
	}
	if r.reportPersist(r.chat.Sessions().Select(id)) {
		return true
	}
	s, _ := r.chat.Sessions().Get(id)
	r.io.SystemMessage(fmt.Sprintf("Switched to %s (%s, %d messages).", id, s.Title, len(s.Messages)))
	return true
}

func (r *REPL) handleDelete(prefix string) bool {
	id, ok := r.resolve("/delete", prefix)
	if !ok {
		return true
	}
	if r.reportPersist(r.chat.Sessions().Delete(id)) {
		return true
	}
	r.io.SystemMessage(fmt.Sprintf("Deleted %s.", id))
	return true
}

func (r *REPL) handleHistory() bool {
	m := r.chat.Sessions()
	s, ok := m.Get(m.Current())
	if !ok {
		r.io.SystemMessage("No current session.")
		return true
	}
	r.io.SystemMessage(tui.FormatHistory(s))
	return true
}

func (r *REPL) handleConfig() bool {
	cfg := r.config
	synth := r.chat.Orchestrator().Synthesizer()
	storage := cfg.Storage.Backend + " (" + cfg.StoragePath() + ")"
	info := fmt.Sprintf(`Current configuration:
  Provider:    %s
  Model:       %s
  Temperature: %g
  Top-p:       %g
  Max tokens:  %d
  Wikipedia:   %s (%s)
  Storage:     %s
  Sessions:    %d/%d
  Current:     %s`,
		cfg.Provider,
		synth.Model(),
		cfg.Sampling.Temperature,
		cfg.Sampling.TopP,
		cfg.Sampling.MaxTokens,
		cfg.Wiki.APIURL,
		cfg.Wiki.ExtractFormat,
		storage,
		r.chat.Sessions().Len(),
		r.chat.Sessions().Capacity(),
		r.chat.Sessions().Current(),
	)
	r.io.SystemMessage(info)
	return true
}

func (r *REPL) handleHelp() bool {
	help := `Type a topic or question to get a Wikipedia-grounded answer.

Available commands:
  /new               Start a new chat (the oldest is evicted at capacity)
  /list              List chats; * marks the current one
  /switch <id>       Switch to a chat (id prefix is enough)
  /delete <id>       Delete a chat
  /history           Show the current chat's messages
  /config            Show current configuration
  /help              Show this help message
  /quit              Exit`
	r.io.SystemMessage(help)
	return true
}
