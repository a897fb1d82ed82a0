// Package mcp exposes wikichat as a Model Context Protocol tool server.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/apexion-ai/wikichat/internal/agent"
	"github.com/apexion-ai/wikichat/internal/session"
)

const (
	ServerName   = "wikichat"
	AskToolName  = "ask_wikipedia"
	ListToolName = "list_sessions"
)

// AskInput is the ask_wikipedia argument schema.
type AskInput struct {
	Topic string `json:"topic" jsonschema:"the topic or question to look up on Wikipedia"`
	Save  bool   `json:"save,omitempty" jsonschema:"record the question and answer in the current chat session"`
}

// AskOutput is the structured ask_wikipedia result.
type AskOutput struct {
	Answer    string   `json:"answer"`
	Source    string   `json:"source,omitempty"`
	PageID    int      `json:"page_id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ListInput takes no arguments.
type ListInput struct{}

// SessionInfo describes one stored session.
type SessionInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	Messages  int    `json:"messages"`
	Current   bool   `json:"current"`
}

// ListOutput is the structured list_sessions result.
type ListOutput struct {
	Current  string        `json:"current"`
	Sessions []SessionInfo `json:"sessions"`
}

func toSessionInfo(s session.Summary) SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		Messages:  s.Messages,
		Current:   s.Current,
	}
}

// NewServer builds an MCP server with the wikichat tools registered.
func NewServer(chat *agent.Chat, version string, log zerolog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	h := &handlers{chat: chat, log: log}

	mcp.AddTool(server, &mcp.Tool{
		Name: AskToolName,
		Description: "Answer a question using the introduction of the best-matching Wikipedia article, " +
			"summarized by a language model. Set save to keep the exchange in the current chat.",
	}, h.ask)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ListToolName,
		Description: "List the stored chat sessions, oldest first.",
	}, h.list)
	return server
}

// Serve runs the server over stdin/stdout until the client disconnects or
// ctx is cancelled.
func Serve(ctx context.Context, chat *agent.Chat, version string, log zerolog.Logger) error {
	return NewServer(chat, version, log).Run(ctx, &mcp.StdioTransport{})
}

type handlers struct {
	chat *agent.Chat
	log  zerolog.Logger
}

func (h *handlers) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return nil, AskOutput{}, fmt.Errorf("topic is required")
	}

	var (
		res agent.Result
		out AskOutput
	)
	if in.Save {
		id, err := h.chat.Sessions().EnsureSession()
		if err != nil {
			out.Warnings = append(out.Warnings, err.Error())
		}
		ex, err := h.chat.Ask(ctx, id, in.Topic)
		if err != nil {
			return nil, AskOutput{}, err
		}
		res = ex.Result
		out.SessionID = id
	} else {
		res = h.chat.Orchestrator().Answer(ctx, in.Topic)
	}

	out.Answer = res.Text
	if res.Source != nil {
		out.Source = res.Source.Title
		out.PageID = res.Source.PageID
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	h.log.Debug().Str("request_id", res.RequestID).Bool("save", in.Save).Msg("mcp ask")

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Text}},
		IsError: res.Failed(),
	}, out, nil
}

func (h *handlers) list(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, ListOutput, error) {
	m := h.chat.Sessions()
	out := ListOutput{Current: m.Current(), Sessions: []SessionInfo{}}
	for _, s := range m.List() {
		out.Sessions = append(out.Sessions, toSessionInfo(s))
	}

	var sb strings.Builder
	if len(out.Sessions) == 0 {
		sb.WriteString("No sessions.")
	}
	for _, s := range out.Sessions {
		marker := " "
		if s.Current {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %s  %s  (%d messages)\n", marker, s.ID, s.Title, s.Messages)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.TrimRight(sb.String(), "\n")}},
	}, out, nil
}
