package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// BufferIO replays scripted input lines and records every event. It is
// used for tests and for running slash commands non-interactively.
type BufferIO struct {
	mu       sync.Mutex
	inputs   []string
	buf      strings.Builder
	answers  []string
	warnings []string
	errors   []string
	session  string
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that returns inputs in order, then io.EOF.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs}
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	in := b.inputs[0]
	b.inputs = b.inputs[1:]
	return strings.TrimSpace(in), nil
}

func (b *BufferIO) UserMessage(text string) { b.write("> " + text) }
func (b *BufferIO) ThinkingStart()          {}

func (b *BufferIO) Answer(text, source string) {
	b.mu.Lock()
	b.answers = append(b.answers, text)
	b.mu.Unlock()
	if source != "" {
		text += "\nSource: " + source
	}
	b.write(text)
}

func (b *BufferIO) Warning(stage, msg string) {
	line := fmt.Sprintf("warning (%s): %s", stage, msg)
	b.mu.Lock()
	b.warnings = append(b.warnings, line)
	b.mu.Unlock()
	b.write(line)
}

func (b *BufferIO) SystemMessage(text string) { b.write(text) }

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	b.errors = append(b.errors, msg)
	b.mu.Unlock()
	b.write("error: " + msg)
}

func (b *BufferIO) SetSession(id, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = id
}

func (b *BufferIO) write(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

// Output returns everything written so far.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Answers returns the answers shown, in order.
func (b *BufferIO) Answers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.answers...)
}

// Warnings returns the warnings shown, in order.
func (b *BufferIO) Warnings() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.warnings...)
}

// Errors returns the errors shown, in order.
func (b *BufferIO) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}

// Session returns the last session ID passed to SetSession.
func (b *BufferIO) Session() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}
