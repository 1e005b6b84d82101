package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// Repository persists the current session as one full snapshot.
// Load returns nil without error when nothing is stored.
type Repository interface {
	Save(ctx context.Context, session *models.Session) error
	Load(ctx context.Context) (*models.Session, error)
	Clear(ctx context.Context) error
	Close() error
}

// currentSlot is the key under which the live session is stored
const currentSlot = "current"

func encodeSession(session *models.Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}
	return data, nil
}

func decodeSession(data []byte) (*models.Session, error) {
	session := &models.Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return session, nil
}

// Open builds the repository selected by backend
func Open(backend, sqlitePath, badgerPath string) (Repository, error) {
	switch backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "badger":
		return NewBadgerStorage(badgerPath)
	default:
		return NewSQLiteStorage(sqlitePath)
	}
}
