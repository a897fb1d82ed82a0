// Package tui defines the IO interface between the chat loop and the
// terminal, plus PlainIO (line-oriented terminal) and BufferIO (scripted,
// for tests and non-interactive runs).
package tui

// IO is the contract between the chat loop and the UI layer.
// Every method maps to a distinct visual event so the loop never depends on
// a specific rendering implementation.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// UserMessage displays the user's submitted question.
	UserMessage(text string)

	// ThinkingStart signals that retrieval and synthesis have started.
	ThinkingStart()

	// Answer displays the assistant's reply. source names the Wikipedia
	// page it was grounded on, or is empty.
	Answer(text, source string)

	// Warning displays a non-fatal diagnostic for one pipeline stage.
	Warning(stage, msg string)

	// SystemMessage displays a system-level notice (command feedback,
	// session listings, history).
	SystemMessage(text string)

	// Error displays an error message with prominent styling.
	Error(msg string)

	// SetSession updates the current session shown in the prompt.
	SetSession(id, title string)
}
