package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLookup хранит соответствие имён и UUID в памяти.
type MemoryLookup struct {
	mu    sync.RWMutex
	names map[string]uuid.UUID

	// Delay имитирует медленный внешний сервис.
	Delay time.Duration
}

// NewMemoryLookup создаёт пустой справочник.
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{names: make(map[string]uuid.UUID)}
}

// Register добавляет игрока. Имена сравниваются без учёта регистра.
func (m *MemoryLookup) Register(name string, id uuid.UUID) {
	m.mu.Lock()
	m.names[strings.ToLower(name)] = id
	m.mu.Unlock()
}

func (m *MemoryLookup) Lookup(ctx context.Context, name string) (uuid.UUID, bool, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return uuid.Nil, false, ctx.Err()
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.names[strings.ToLower(name)]
	return id, ok, nil
}
