package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    seq        INTEGER NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    messages   TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_sessions_seq ON sessions(seq);
CREATE TABLE IF NOT EXISTS store_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// SQLitePersister stores the snapshot in a SQLite database: one row per
// session plus a key/value meta table for version, current and next_seq.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (or creates) a SQLite database at dbPath and
// ensures the schema exists.
func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases and transactions coherent.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

func (p *SQLitePersister) Load() (*Snapshot, error) {
	meta, err := p.loadMeta()
	if err != nil {
		return nil, err
	}
	rawVersion, ok := meta["version"]
	if !ok {
		return nil, ErrNoSnapshot
	}
	version, err := strconv.Atoi(rawVersion)
	if err != nil || version != SchemaVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, rawVersion)
	}

	snap := &Snapshot{Version: version, Current: meta["current"]}
	if v := meta["next_seq"]; v != "" {
		if snap.NextSeq, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("parse next_seq: %w", err)
		}
	}

	rows, err := p.db.Query(`SELECT id, seq, title, created_at, messages FROM sessions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s                  Session
			createdAt, msgJSON string
		)
		if err := rows.Scan(&s.ID, &s.Seq, &s.Title, &createdAt, &msgJSON); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("session %s: parse created_at: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(msgJSON), &s.Messages); err != nil {
			return nil, fmt.Errorf("session %s: unmarshal messages: %w", s.ID, err)
		}
		snap.Sessions = append(snap.Sessions, s)
	}
	return snap, rows.Err()
}

func (p *SQLitePersister) loadMeta() (map[string]string, error) {
	rows, err := p.db.Query(`SELECT key, value FROM store_meta`)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Save replaces the stored state with snap in a single transaction.
func (p *SQLitePersister) Save(snap *Snapshot) (err error) {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	for _, s := range snap.Sessions {
		msgs := s.Messages
		if msgs == nil {
			msgs = []Message{}
		}
		var msgJSON []byte
		if msgJSON, err = json.Marshal(msgs); err != nil {
			return fmt.Errorf("marshal messages: %w", err)
		}
		if _, err = tx.Exec(`
			INSERT INTO sessions (id, seq, title, created_at, messages)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.Seq, s.Title, s.CreatedAt.Format(time.RFC3339Nano), string(msgJSON),
		); err != nil {
			return fmt.Errorf("insert session %s: %w", s.ID, err)
		}
	}

	meta := map[string]string{
		"version":  strconv.Itoa(snap.Version),
		"current":  snap.Current,
		"next_seq": strconv.FormatUint(snap.NextSeq, 10),
	}
	for k, v := range meta {
		if _, err = tx.Exec(`INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *SQLitePersister) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}
