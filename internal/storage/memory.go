package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

// MemoryStorage keeps interactions in process memory. It has the same
// semantics as the durable backends but loses everything on restart. It is
// used for tests, the console simulator, and as the fallback when the
// configured backend cannot be reached.
type MemoryStorage struct {
	mu           sync.RWMutex
	interactions map[string]*state.Interaction
	versions     map[string]int64 // last version issued, kept after a clear
	pingError    error
	fallbackFor  string
}

// Ensure MemoryStorage implements Storage interface
var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		interactions: make(map[string]*state.Interaction),
		versions:     make(map[string]int64),
	}
}

// newFallbackStorage creates an in-memory store standing in for backend.
func newFallbackStorage(backend string) *MemoryStorage {
	m := NewMemoryStorage()
	m.fallbackFor = backend
	return m
}

// FallbackFor returns the backend this store replaces, or "" when memory was
// configured on purpose.
func (m *MemoryStorage) FallbackFor() string {
	return m.fallbackFor
}

// IsFallback reports whether s is an in-memory store standing in for an
// unreachable durable backend.
func IsFallback(s Storage) bool {
	m, ok := s.(*MemoryStorage)
	return ok && m.fallbackFor != ""
}

// SetPingError configures the store to fail on ping with the given error, or
// succeed when err is nil
func (m *MemoryStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pingError != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, m.pingError)
	}
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backend() string { return "memory" }

func (m *MemoryStorage) Durable() bool { return false }

// Len returns the number of stored interactions.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.interactions)
}

func (m *MemoryStorage) GetInteraction(ctx context.Context, userID string) (*state.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, exists := m.interactions[userID]
	if !exists {
		return nil, nil // Return nil for not found
	}
	return in.Clone(), nil
}

func (m *MemoryStorage) SaveInteraction(ctx context.Context, in *state.Interaction) (*state.Interaction, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil record", state.ErrInvalidInteraction)
	}
	return m.update(in.UserID, saveFunc(in))
}

func (m *MemoryStorage) PatchInteraction(ctx context.Context, userID string, p state.Patch) (*state.Interaction, error) {
	return m.update(userID, patchFunc(userID, p))
}

func (m *MemoryStorage) ClearInteraction(ctx context.Context, userID string) error {
	_, err := m.update(userID, clearFunc)
	return err
}

func (m *MemoryStorage) SwapInteraction(ctx context.Context, userID string, expectedVersion int64, next *state.Interaction) (*state.Interaction, error) {
	return m.update(userID, swapFunc(expectedVersion, next))
}

func (m *MemoryStorage) update(userID string, fn updateFunc) (*state.Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.interactions[userID]
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	stored, err := prepare(userID, lastVersion(cur, m.versions[userID]), next)
	if err != nil {
		return nil, err
	}

	if cur != nil || stored != nil {
		m.versions[userID] = max(versionOf(cur), versionOf(stored), m.versions[userID])
	}
	if stored == nil {
		delete(m.interactions, userID)
		return nil, nil
	}
	m.interactions[userID] = stored
	return stored.Clone(), nil
}
