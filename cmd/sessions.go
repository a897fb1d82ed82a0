package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/apexion-ai/wikichat/internal/session"
	"github.com/apexion-ai/wikichat/internal/tui"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and manage saved chat sessions",
	}
	cmd.AddCommand(newSessionsListCmd(), newSessionsShowCmd(), newSessionsDeleteCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved sessions, oldest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore()
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(cmd.OutOrStdout(), tui.FormatSessionList(a.sessions.List(), a.sessions.Capacity()))
			return nil
		},
	}
}

// sessionDoc is the exported shape of a session for show --format json|yaml.
type sessionDoc struct {
	ID        string       `json:"id" yaml:"id"`
	Title     string       `json:"title" yaml:"title"`
	CreatedAt string       `json:"created_at" yaml:"created_at"`
	Messages  []messageDoc `json:"messages" yaml:"messages"`
}

type messageDoc struct {
	Role      string `json:"role" yaml:"role"`
	Content   string `json:"content" yaml:"content"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
}

func newSessionDoc(s session.Session) sessionDoc {
	doc := sessionDoc{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		Messages:  make([]messageDoc, 0, len(s.Messages)),
	}
	for _, m := range s.Messages {
		doc.Messages = append(doc.Messages, messageDoc{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	return doc
}

func writeSession(w io.Writer, s session.Session, format string) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprintln(w, tui.FormatHistory(s))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newSessionDoc(s))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(newSessionDoc(s))
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func newSessionsShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show [id-prefix]",
		Short: "Print a session transcript (default: the current session)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			id := a.sessions.Current()
			if len(args) == 1 {
				if id, err = a.sessions.Resolve(args[0]); err != nil {
					return fmt.Errorf("session %q: %w", args[0], err)
				}
			}
			s, ok := a.sessions.Get(id)
			if !ok {
				return fmt.Errorf("no sessions saved yet")
			}
			return writeSession(cmd.OutOrStdout(), s, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id-prefix>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStore()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.sessions.Resolve(args[0])
			if err != nil {
				return fmt.Errorf("session %q: %w", args[0], err)
			}
			if err := a.sessions.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", id)
			return nil
		},
	}
}
