package session

import (
	"encoding/json"
	"errors"
	"sync"
)

// ErrNoSnapshot is returned by MemoryPersister.Load before the first Save.
var ErrNoSnapshot = errors.New("session: no snapshot saved")

// MemoryPersister keeps the snapshot in process memory. It is used by tests
// and as the fallback when no durable store can be opened.
type MemoryPersister struct {
	mu    sync.Mutex
	data  []byte
	saves int

	// FailSave makes every Save fail with this error when set.
	FailSave error
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (p *MemoryPersister) Load() (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil, ErrNoSnapshot
	}
	return decodeSnapshot(p.data)
}

func (p *MemoryPersister) Save(snap *Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailSave != nil {
		return p.FailSave
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	p.data = data
	p.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (p *MemoryPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

func (p *MemoryPersister) Close() error { return nil }
