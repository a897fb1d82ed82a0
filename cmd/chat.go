package cmd

import (
	"github.com/spf13/cobra"

	"github.com/apexion-ai/wikichat/internal/agent"
	"github.com/apexion-ai/wikichat/internal/logging"
	"github.com/apexion-ai/wikichat/internal/tui"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}
}

// runChat starts the interactive chat (REPL) mode.
func runChat() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ui := tui.NewPlainIO()
	ui.SystemMessage("wikichat " + displayVersion() + " (" + a.cfg.Provider + "/" + a.cfg.Model + "). Type /help for commands.")

	ctx, cancel := signalContext()
	defer cancel()

	return agent.NewREPL(a.chat, ui, a.cfg, logging.Component(a.log, "repl")).Run(ctx)
}
