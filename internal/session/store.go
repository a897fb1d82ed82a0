package session

import "errors"

// SchemaVersion is the version of the persisted snapshot layout.
const SchemaVersion = 1

// ErrUnsupportedVersion is returned by Load when the stored snapshot was
// written with a different schema version.
var ErrUnsupportedVersion = errors.New("session: unsupported snapshot version")

// Snapshot is the full persisted state of the session store.
type Snapshot struct {
	Version  int       `json:"version"`
	Current  string    `json:"current"`
	NextSeq  uint64    `json:"next_seq"`
	Sessions []Session `json:"sessions"`
}

// Persister abstracts snapshot persistence (JSON file, SQLite, memory).
// Load on a store that was never saved returns an error; callers treat any
// Load error as an empty store.
type Persister interface {
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
	Close() error
}
