package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PlainIO implements IO on a line-oriented terminal. Answers are rendered as
// markdown with glamour when stdout is a terminal.
type PlainIO struct {
	scanner  *bufio.Scanner
	out      io.Writer
	errOut   io.Writer
	markdown bool
	width    int

	mu      sync.Mutex
	session string
}

// NewPlainIO creates a PlainIO bound to stdin/stdout/stderr.
func NewPlainIO() *PlainIO {
	fd := int(os.Stdout.Fd())
	p := NewPlainIOWith(os.Stdin, os.Stdout, os.Stderr)
	if term.IsTerminal(fd) {
		p.markdown = true
		if w, _, err := term.GetSize(fd); err == nil {
			p.width = w
		}
	}
	return p
}

// NewPlainIOWith creates a PlainIO on arbitrary streams without markdown
// rendering or colors.
func NewPlainIOWith(in io.Reader, out, errOut io.Writer) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{scanner: s, out: out, errOut: errOut}
}

func (p *PlainIO) ReadInput() (string, error) {
	p.mu.Lock()
	prompt := "> "
	if p.session != "" {
		prompt = fmt.Sprintf("[%s] > ", p.session)
	}
	p.mu.Unlock()

	fmt.Fprint(p.out, "\n"+prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// Plain terminal: the user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	fmt.Fprintln(p.out, p.style(systemStyle.Render, "Searching Wikipedia..."))
}

func (p *PlainIO) Answer(text, source string) {
	body := text
	if p.markdown {
		body = renderMarkdown(text, p.width)
	}
	fmt.Fprintln(p.out, body)
	if source != "" {
		fmt.Fprintln(p.out, p.style(hintStyle.Render, "Source: "+source))
	}
}

func (p *PlainIO) Warning(stage, msg string) {
	fmt.Fprintln(p.errOut, p.style(warningStyle.Render, fmt.Sprintf("warning (%s): %s", stage, msg)))
}

func (p *PlainIO) SystemMessage(text string) {
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	fmt.Fprintln(p.errOut, p.style(errorStyle.Render, "error: "+msg))
}

func (p *PlainIO) SetSession(id, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = truncate(title, 20)
	if p.session == "" {
		p.session = id
	}
}

// style applies render only when output goes to a terminal.
func (p *PlainIO) style(render func(...string) string, s string) string {
	if !p.markdown {
		return s
	}
	return render(s)
}

// truncate shortens s to maxLen runes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
