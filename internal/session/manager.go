package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/wikichat/internal/provider"
)

var (
	// ErrNotFound is returned for operations on an unknown session ID.
	ErrNotFound = errors.New("session not found")

	// ErrAmbiguous is returned by Resolve when a prefix matches several sessions.
	ErrAmbiguous = errors.New("session prefix is ambiguous")

	// ErrNotPersisted wraps persister failures. The in-memory change that
	// triggered the save is kept.
	ErrNotPersisted = errors.New("session state not persisted")
)

// DefaultCapacity is the number of sessions kept when Options.Capacity is unset.
const DefaultCapacity = 5

// Options configures a Manager.
type Options struct {
	// Capacity is the maximum number of sessions; values < 1 use DefaultCapacity.
	Capacity int

	// Now overrides the clock (tests).
	Now func() time.Time

	Logger zerolog.Logger
}

// Manager owns the bounded, insertion-ordered session store and the
// current-session pointer. Every mutation is persisted before it returns.
// All methods are safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	persister Persister
	capacity  int
	now       func() time.Time
	log       zerolog.Logger

	sessions map[string]*Session
	order    []string // ascending Seq
	current  string
	nextSeq  uint64
}

// Open builds a Manager from whatever p has stored. Any load failure (missing,
// corrupt or incompatible state) starts an empty store.
func Open(p Persister, opts Options) *Manager {
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		persister: p,
		capacity:  opts.Capacity,
		now:       opts.Now,
		log:       opts.Logger,
		sessions:  make(map[string]*Session),
		nextSeq:   1,
	}

	snap, err := p.Load()
	if err != nil {
		m.log.Debug().Err(err).Msg("no usable session state, starting empty")
		return m
	}
	m.restore(snap)
	m.log.Debug().Int("sessions", len(m.order)).Str("current", m.current).Msg("session state loaded")
	return m
}

func (m *Manager) restore(snap *Snapshot) {
	loaded := append([]Session(nil), snap.Sessions...)
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].Seq < loaded[j].Seq })

	for i := range loaded {
		s := loaded[i]
		if s.ID == "" || m.sessions[s.ID] != nil {
			continue
		}
		if s.Title == "" {
			s.Title = DefaultTitle
		}
		m.sessions[s.ID] = &s
		m.order = append(m.order, s.ID)
		if s.Seq >= m.nextSeq {
			m.nextSeq = s.Seq + 1
		}
	}
	if snap.NextSeq > m.nextSeq {
		m.nextSeq = snap.NextSeq
	}

	for len(m.order) > m.capacity {
		m.evictOldest()
	}

	if _, ok := m.sessions[snap.Current]; ok {
		m.current = snap.Current
	} else if n := len(m.order); n > 0 {
		m.current = m.order[n-1]
	}
}

// persist saves the full state. Callers hold m.mu.
func (m *Manager) persist() error {
	snap := &Snapshot{
		Version:  SchemaVersion,
		Current:  m.current,
		NextSeq:  m.nextSeq,
		Sessions: make([]Session, 0, len(m.order)),
	}
	for _, id := range m.order {
		snap.Sessions = append(snap.Sessions, m.sessions[id].clone())
	}
	if err := m.persister.Save(snap); err != nil {
		m.log.Warn().Err(err).Msg("persist session state")
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	return nil
}

// evictOldest removes the session with the smallest Seq. Callers hold m.mu.
func (m *Manager) evictOldest() {
	if len(m.order) == 0 {
		return
	}
	oldest := 0
	for i, id := range m.order {
		if m.sessions[id].Seq < m.sessions[m.order[oldest]].Seq {
			oldest = i
		}
	}
	id := m.order[oldest]
	m.remove(oldest)
	m.log.Debug().Str("session", id).Msg("evicted oldest session")
}

func (m *Manager) remove(idx int) {
	id := m.order[idx]
	delete(m.sessions, id)
	m.order = append(m.order[:idx], m.order[idx+1:]...)
	if m.current == id {
		m.current = ""
	}
}

func (m *Manager) newID(now time.Time) string {
	base := now.Format(IDLayout)
	id := base
	for n := 2; m.sessions[id] != nil; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	return id
}

// Create starts an empty session, evicting the oldest sessions first when
// the store is at capacity. The new session becomes current.
func (m *Manager) Create() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create()
}

func (m *Manager) create() (string, error) {
	for len(m.order) >= m.capacity {
		m.evictOldest()
	}

	now := m.now()
	s := &Session{
		ID:        m.newID(now),
		Seq:       m.nextSeq,
		Title:     DefaultTitle,
		CreatedAt: now,
		Messages:  []Message{},
	}
	m.nextSeq++
	m.sessions[s.ID] = s
	m.order = append(m.order, s.ID)
	m.current = s.ID

	m.log.Debug().Str("session", s.ID).Uint64("seq", s.Seq).Msg("session created")
	return s.ID, m.persist()
}

// Delete removes a session. If it was current, the first remaining session
// becomes current. Deleting an unknown ID does nothing.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, sid := range m.order {
		if sid == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	wasCurrent := m.current == id
	m.remove(idx)
	if wasCurrent && len(m.order) > 0 {
		m.current = m.order[0]
	}
	return m.persist()
}

// Append adds a message to a session. The first non-blank user message of a
// session still titled DefaultTitle names it.
func (m *Manager) Append(id string, role provider.Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("invalid message role %q", role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	msg := Message{Role: role, Content: content, Timestamp: m.now()}
	if role == provider.RoleUser && s.Title == DefaultTitle && !s.hasUserMessage() && hasTitleSource(content) {
		s.Title = TitleFrom(content)
	}
	s.Messages = append(s.Messages, msg)

	return msg, m.persist()
}

func (s *Session) hasUserMessage() bool {
	for _, msg := range s.Messages {
		if msg.Role == provider.RoleUser {
			return true
		}
	}
	return false
}

// EnsureSession returns the current session ID, creating a session when the
// store is empty and selecting the newest one when none is current.
func (m *Manager) EnsureSession() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		return m.create()
	}
	if m.current != "" {
		return m.current, nil
	}
	m.current = m.order[len(m.order)-1]
	return m.current, m.persist()
}

// Select makes id the current session.
func (m *Manager) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.current == id {
		return nil
	}
	m.current = id
	return m.persist()
}

// Current returns the current session ID, or "" when the store is empty.
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Has reports whether id is a stored session.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// List returns session summaries in insertion order.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.order))
	for _, id := range m.order {
		s := m.sessions[id]
		out = append(out, Summary{
			ID:        s.ID,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			Messages:  len(s.Messages),
			Current:   s.ID == m.current,
		})
	}
	return out
}

// Len returns the number of stored sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Capacity returns the maximum number of sessions.
func (m *Manager) Capacity() int { return m.capacity }

// Resolve maps an exact ID or a unique ID prefix to a stored session ID.
func (m *Manager) Resolve(prefix string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix = strings.TrimSpace(prefix)
	if _, ok := m.sessions[prefix]; ok {
		return prefix, nil
	}
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	var matches []string
	for _, id := range m.order {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s matches %s", ErrAmbiguous, prefix, strings.Join(matches, ", "))
	}
}

// Close flushes nothing (every mutation is already saved) and closes the persister.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persister.Close()
}
