package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/wikichat/internal/agent"
	"github.com/apexion-ai/wikichat/internal/logging"
	"github.com/apexion-ai/wikichat/internal/session"
	"github.com/apexion-ai/wikichat/internal/tui"
)

func newAskCmd() *cobra.Command {
	var (
		sessionFlag string
		noSave      bool
	)

	cmd := &cobra.Command{
		Use:   "ask <topic>",
		Short: "Answer a single question and exit",
		Example: `  wikichat ask "What is osmosis"
  wikichat ask --session new "Who was Ada Lovelace"
  wikichat ask --no-save "Rust programming language"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.TrimSpace(strings.Join(args, " "))
			if topic == "" {
				return agent.ErrEmptyQuestion
			}
			return runAsk(topic, sessionFlag, noSave)
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "current", `session to continue: "current", "new" or an id prefix`)
	cmd.Flags().BoolVar(&noSave, "no-save", false, "answer without recording the exchange")

	return cmd
}

// runAsk answers topic once. Unless noSave is set the exchange is appended to
// the chosen session, which becomes the current one.
func runAsk(topic, target string, noSave bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	ui := tui.NewPlainIO()

	if noSave {
		res := a.chat.Orchestrator().Answer(ctx, topic)
		for _, w := range res.Warnings {
			ui.Warning(string(w.Stage), w.Err.Error())
		}
		source := ""
		if res.Source != nil && res.Context != "" {
			source = res.Source.Title
		}
		ui.Answer(res.Text, source)
		return nil
	}

	if err := chooseSession(a.sessions, target, ui); err != nil {
		return err
	}
	return agent.NewREPL(a.chat, ui, a.cfg, logging.Component(a.log, "repl")).RunOnce(ctx, topic)
}

// chooseSession selects target, reporting a failed save as a warning. The
// selection still holds in memory for this run.
func chooseSession(m *session.Manager, target string, ui tui.IO) error {
	err := selectTarget(m, target)
	if errors.Is(err, session.ErrNotPersisted) {
		ui.Warning(string(agent.StagePersist), err.Error())
		return nil
	}
	return err
}

// selectTarget makes the session named by target current.
func selectTarget(m *session.Manager, target string) error {
	var err error
	switch target {
	case "", "current":
		return nil
	case "new":
		_, err = m.Create()
	default:
		var id string
		id, err = m.Resolve(target)
		if err != nil {
			return fmt.Errorf("session %q: %w", target, err)
		}
		err = m.Select(id)
	}
	return err
}
