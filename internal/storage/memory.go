package storage

import (
	"context"
	"sync"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// MemoryStorage keeps the snapshot in process. Saves are counted so tests
// can assert that transitions were persisted.
type MemoryStorage struct {
	mu       sync.RWMutex
	snapshot []byte
	saves    int
}

// NewMemoryStorage creates an empty in-memory repository
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Save(_ context.Context, session *models.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = data
	m.saves++
	return nil
}

func (m *MemoryStorage) Load(_ context.Context) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return nil, nil
	}
	return decodeSession(m.snapshot)
}

func (m *MemoryStorage) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = nil
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// Saves returns how many snapshots were written
func (m *MemoryStorage) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.saves
}
