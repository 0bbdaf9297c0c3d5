package remote

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Several coordinators sharing one
// MemoryStore behave like clients sharing one remote document store.
type MemoryStore struct {
	mu       sync.Mutex
	presence *PresenceRecord
	health   *ServerHealth
	readErr  error
	writeErr error
	writes   int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SetReadError makes every subsequent read and ping fail with err (nil clears it).
func (m *MemoryStore) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetWriteError makes every subsequent write fail with err (nil clears it).
func (m *MemoryStore) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// PresenceWrites returns how many presence writes succeeded.
func (m *MemoryStore) PresenceWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// ReadPresence implements Store.
func (m *MemoryStore) ReadPresence(ctx context.Context) (PresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return PresenceRecord{}, err
	}
	if m.readErr != nil {
		return PresenceRecord{}, m.readErr
	}
	if m.presence == nil {
		return PresenceRecord{}, fmt.Errorf("presence: %w", ErrNotFound)
	}
	return *m.presence, nil
}

// WritePresence implements Store.
func (m *MemoryStore) WritePresence(ctx context.Context, rec PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.presence = &rec
	m.writes++
	return nil
}

// ReadHealth implements Store.
func (m *MemoryStore) ReadHealth(ctx context.Context) (ServerHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ServerHealth{}, err
	}
	if m.readErr != nil {
		return ServerHealth{}, m.readErr
	}
	if m.health == nil {
		return ServerHealth{}, fmt.Errorf("health: %w", ErrNotFound)
	}
	return *m.health, nil
}

// WriteHealth implements Store.
func (m *MemoryStore) WriteHealth(ctx context.Context, h ServerHealth) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.health = &h
	return nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.readErr
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
