// Package alerts turns high-risk assessments into deduplicated alert records
// and delivers them to an external sink with bounded retries.
//
// Delivery is fully decoupled from the scoring path: the dispatcher accepts
// handoffs without blocking and runs its own delivery worker. A sink failure
// is retried with backoff, then recorded as failed for audit; it is never
// propagated back to the caller of AssessRisk.
package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/mbd888/dexguard/internal/risk"
)

// State is the delivery status of an alert.
type State string

const (
	StatePending State = "pending"
	StateSent    State = "sent"
	StateFailed  State = "failed"
)

// Alert is one deduplicated (tx hash, alert type) record derived from a
// risk assessment. Updated on retry; terminal once sent or failed.
type Alert struct {
	ID           string        `json:"id"`
	TxHash       string        `json:"txHash"`
	Kind         risk.Kind     `json:"alertType"`
	Severity     risk.Severity `json:"severity"`
	Message      string        `json:"message"`
	AssessmentID string        `json:"assessmentId"`
	Score        float64       `json:"riskScore"`
	Level        string        `json:"riskLevel"`
	FirstSeen    time.Time     `json:"firstSeen"`
	LastSeen     time.Time     `json:"lastSeen"`
	Status       State         `json:"status"`
	Attempts     int           `json:"attempts"`
}

// Sink delivers alerts to an external system (webhook, queue). A nil error
// means the alert was accepted; anything else is retried by the dispatcher.
type Sink interface {
	Deliver(ctx context.Context, a *Alert) error
}

// Store persists alerts for audit. Save upserts by alert ID.
type Store interface {
	Save(ctx context.Context, a *Alert) error
	List(ctx context.Context, limit int) ([]*Alert, error)
}

// MemoryStore is an in-memory alert store for tests and storeless deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Alert
	ordered []string
}

// NewMemoryStore creates an in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Alert)}
}

func (m *MemoryStore) Save(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; !ok {
		m.ordered = append(m.ordered, a.ID)
	}
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var result []*Alert
	for i := len(m.ordered) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *m.byID[m.ordered[i]]
		result = append(result, &cp)
	}
	return result, nil
}
