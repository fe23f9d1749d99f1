// Package memory implements the ability to save and load a snapshot in
// memory.
package memory

import (
	"sync"

	"github.com/ardanlabs/blocksim/foundation/blockchain/snapshot"
)

// Memory represents the in memory implementation of the snapshot.Storer
// interface.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{}
}

// Save keeps a copy of the snapshot.
func (m *Memory) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the last saved snapshot.
func (m *Memory) Load() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return nil, snapshot.ErrNotFound
	}

	return append([]byte(nil), m.data...), nil
}
