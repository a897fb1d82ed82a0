package cmd

import (
	"github.com/spf13/cobra"

	"github.com/apexion-ai/wikichat/internal/logging"
	"github.com/apexion-ai/wikichat/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP tool server over stdio",
		Long: "Exposes the ask_wikipedia and list_sessions tools to an MCP client.\n" +
			"Stdout carries the protocol, so logs go to stderr or log.file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			return mcp.Serve(ctx, a.chat, appVersion, logging.Component(a.log, "mcp"))
		},
	}
}
