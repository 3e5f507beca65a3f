package session

import (
	"sync"

	"github.com/muurk/keytune/internal/transport"
)

// MemoryStore is a PairingStore that lives only as long as the process.
// It backs --simulate runs and tests.
type MemoryStore struct {
	mu sync.Mutex
	id transport.StableID
}

// NewMemoryStore returns a store already paired with id ("" for none).
func NewMemoryStore(id transport.StableID) *MemoryStore {
	return &MemoryStore{id: id}
}

func (m *MemoryStore) Load() (transport.StableID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryStore) Save(info transport.DeviceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = info.StableID()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	return nil
}
