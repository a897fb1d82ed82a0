package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/wikichat/internal/logging"
	"github.com/apexion-ai/wikichat/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat over an HTTP JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx, cancel := signalContext()
			defer cancel()

			srv := server.New(a.chat, a.cfg.Server.AllowedOrigins, logging.Component(a.log, "server"))
			srv.SetWriteTimeout(server.WriteTimeout(a.cfg.Wiki.Timeout, a.cfg.Sampling.Timeout))
			fmt.Fprintf(cmd.ErrOrStderr(), "wikichat %s listening on %s\n", displayVersion(), addr)
			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
