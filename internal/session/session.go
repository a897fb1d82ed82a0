// Package session holds the bounded chat history: sessions, their messages,
// the current-session pointer and the persisters that store them.
package session

import (
	"strings"
	"time"

	"github.com/apexion-ai/wikichat/internal/provider"
)

const (
	// DefaultTitle is shown until the first user message names the session.
	DefaultTitle = "New Chat"

	// TitleMaxRunes is the title length before truncation adds "...".
	TitleMaxRunes = 30

	// IDLayout formats session IDs from their creation time.
	IDLayout = "20060102_150405"

	// DisplayTimeLayout formats message timestamps for display.
	DisplayTimeLayout = "15:04"
)

// Message is a single chat turn. Messages are immutable once appended.
type Message struct {
	Role      provider.Role `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
}

// DisplayTime returns the timestamp as HH:MM in local time.
func (m Message) DisplayTime() string {
	return m.Timestamp.Local().Format(DisplayTimeLayout)
}

// Session is one conversation.
type Session struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// clone returns a copy whose message slice can be handed to callers.
func (s *Session) clone() Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	return c
}

// Summary is a lightweight view of a session for listing.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  int       `json:"messages"`
	Current   bool      `json:"current"`
}

// TitleFrom derives a session title from the first user message: the text
// itself up to TitleMaxRunes runes, or its first TitleMaxRunes runes plus "...".
func TitleFrom(content string) string {
	r := []rune(content)
	if len(r) <= TitleMaxRunes {
		return content
	}
	return string(r[:TitleMaxRunes]) + "..."
}

// hasTitleSource reports whether content can name a session.
func hasTitleSource(content string) bool {
	return strings.TrimSpace(content) != ""
}
