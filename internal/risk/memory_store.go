package risk

import (
	"context"
	"sync"
)

// MemoryStore keeps assessments in memory. Used for tests and when no
// DATABASE_URL is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	byHash  map[string][]*RiskAssessment
	ordered []*RiskAssessment
	max     int
}

const memoryStoreCap = 10000

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string][]*RiskAssessment),
		max:    memoryStoreCap,
	}
}

func (m *MemoryStore) Record(_ context.Context, a *RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.byHash[a.TxHash] = append(m.byHash[a.TxHash], &cp)
	m.ordered = append(m.ordered, &cp)

	if len(m.ordered) > m.max {
		evicted := m.ordered[0]
		m.ordered = m.ordered[1:]
		list := m.byHash[evicted.TxHash]
		for i, e := range list {
			if e == evicted {
				m.byHash[evicted.TxHash] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(m.byHash[evicted.TxHash]) == 0 {
			delete(m.byHash, evicted.TxHash)
		}
	}
	return nil
}

func (m *MemoryStore) ListByHash(_ context.Context, txHash string, limit int) ([]*RiskAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	list := m.byHash[txHash]
	var result []*RiskAssessment
	for i := len(list) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *list[i]
		result = append(result, &cp)
	}
	return result, nil
}

// Len returns the number of stored assessments (for testing).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ordered)
}
