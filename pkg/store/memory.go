package store

import (
	"context"
	"sync"
)

// DefaultHistorySize is how many transactions the memory backend keeps.
const DefaultHistorySize = 100

// NewMemory creates a store that lives only in memory.
func NewMemory() *DocumentStore {
	s, _ := newDocumentStore(context.Background(), &memoryBackend{limit: DefaultHistorySize}, "memory")
	return s
}

type memoryBackend struct {
	mu      sync.Mutex
	limit   int
	records []TransactionRecord
}

func (m *memoryBackend) load(context.Context) (map[string]any, error) { return nil, nil }

func (m *memoryBackend) save(context.Context, map[string]any) error { return nil }

func (m *memoryBackend) record(_ context.Context, rec TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if len(m.records) > m.limit {
		m.records = m.records[len(m.records)-m.limit:]
	}
	return nil
}

func (m *memoryBackend) history(_ context.Context, limit int) ([]TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]TransactionRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *memoryBackend) close() error { return nil }
