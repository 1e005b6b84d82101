package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// sessionRecord is the badgerhold value holding one snapshot
type sessionRecord struct {
	SessionID string
	Snapshot  []byte
	UpdatedAt time.Time
}

// BadgerStorage implements the Repository interface on an embedded Badger store
type BadgerStorage struct {
	store *badgerhold.Store
}

// NewBadgerStorage opens (or creates) a Badger store in dir
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &BadgerStorage{store: store}, nil
}

// Save replaces the stored snapshot
func (b *BadgerStorage) Save(ctx context.Context, session *models.Session) error {
	snapshot, err := encodeSession(session)
	if err != nil {
		return err
	}

	record := &sessionRecord{SessionID: session.ID, Snapshot: snapshot, UpdatedAt: time.Now()}
	if err := b.store.Upsert(currentSlot, record); err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// Load retrieves the stored snapshot
func (b *BadgerStorage) Load(ctx context.Context) (*models.Session, error) {
	var record sessionRecord
	err := b.store.Get(currentSlot, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeSession(record.Snapshot)
}

// Clear deletes the stored snapshot
func (b *BadgerStorage) Clear(ctx context.Context) error {
	err := b.store.Delete(currentSlot, sessionRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the store
func (b *BadgerStorage) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
