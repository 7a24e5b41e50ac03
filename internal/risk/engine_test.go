package risk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector returns a fixed finding set.
type stubDetector struct {
	name     string
	findings []Finding
}

func (d *stubDetector) Name() string { return d.name }
func (d *stubDetector) Detect(*Transaction, *DetectContext) []Finding {
	return d.findings
}

// stubScorer returns a fixed result or error.
type stubScorer struct {
	result AnomalyResult
	err    error
	delay  time.Duration
}

func (s *stubScorer) Score(ctx context.Context, _ Vector) (AnomalyResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return AnomalyResult{}, ctx.Err()
		}
	}
	return s.result, s.err
}

// captureNotifier records every notified assessment.
type captureNotifier struct {
	mu       sync.Mutex
	received []*RiskAssessment
}

func (n *captureNotifier) Notify(a *RiskAssessment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, a)
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.received)
}

func TestAssessRisk_CombinesSignals(t *testing.T) {
	det := &stubDetector{name: "stub", findings: []Finding{{Kind: KindFlashLoan, Severity: SeverityMedium}}}
	scorer := &stubScorer{result: AnomalyResult{Score: 0.8, Issues: []string{"high_slippage"}}}

	e := NewEngine([]Detector{det}, scorer)

	a, err := e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xabc", Amount: 100},
	})
	require.NoError(t, err)

	// flash_loan 0.15 + anomaly 0.8*0.3 = 0.39
	assert.Equal(t, 0.39, a.Score)
	assert.Equal(t, LevelLow, a.Level)
	assert.Equal(t, "low", a.LevelName)
	assert.Len(t, a.Findings, 2) // detector finding + synthetic anomaly finding
	assert.True(t, strings.HasPrefix(a.ID, "asmt_"))
	assert.Equal(t, "0xabc", a.TxHash)

	// Anomaly issues surface as notes.
	found := false
	for _, n := range a.Notes {
		if n.Field == "anomaly" && n.Message == "high_slippage" {
			found = true
		}
	}
	assert.True(t, found, "expected anomaly issue note")
}

func TestAssessRisk_InvalidTransaction(t *testing.T) {
	e := NewEngine(nil, nil)

	_, err := e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Amount: 100}, // no hash
	})
	assert.ErrorContains(t, err, "invalid transaction")

	_, err = e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xabc", Amount: -5},
	})
	assert.ErrorContains(t, err, "amount must be non-negative")
}

func TestAssessRisk_ScorerFailureDegradesToNeutral(t *testing.T) {
	det := &stubDetector{name: "stub", findings: []Finding{{Kind: KindMEV}}}
	scorer := &stubScorer{err: errors.New("connection refused")}

	e := NewEngine([]Detector{det}, scorer)

	a, err := e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xabc"},
	})
	require.NoError(t, err)

	// Pattern signal still counts; anomaly contributes nothing.
	assert.Equal(t, 0.25, a.Score)

	degraded := false
	for _, n := range a.Notes {
		if strings.Contains(n.Message, "anomaly scorer unavailable") {
			degraded = true
		}
	}
	assert.True(t, degraded, "expected degraded-scorer note")
}

func TestAssessRisk_ScorerTimeout(t *testing.T) {
	scorer := &stubScorer{result: AnomalyResult{Score: 0.9}, delay: time.Second}

	e := NewEngine(nil, scorer).WithScoreTimeout(5 * time.Millisecond)

	start := time.Now()
	a, err := e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xabc"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, a.Score)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAssessRisk_ChecksDisablePatterns(t *testing.T) {
	det := &stubDetector{name: "stub", findings: []Finding{{Kind: KindFlashLoan}}}
	e := NewEngine([]Detector{det}, nil)

	a, err := e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xabc"},
		Checks:      &Checks{Patterns: false, Anomaly: true, History: true},
	})
	require.NoError(t, err)
	assert.Empty(t, a.Findings)
	assert.Equal(t, 0.0, a.Score)
}

func TestAssessRisk_NotifierReceivesAssessment(t *testing.T) {
	det := &stubDetector{name: "stub", findings: []Finding{{Kind: KindMEV}}}
	notifier := &captureNotifier{}

	e := NewEngine([]Detector{det}, nil).WithNotifier(notifier)

	_, err := e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xabc"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count())
}

func TestAssessRisk_RecordsToStore(t *testing.T) {
	store := NewMemoryStore()
	e := NewEngine(nil, nil).WithStore(store)

	_, err := e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xstored"},
	})
	require.NoError(t, err)

	// Record is async; poll briefly.
	deadline := time.Now().Add(time.Second)
	for store.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("assessment was never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	list, err := store.ListByHash(context.Background(), "0xstored", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "0xstored", list[0].TxHash)
}

func TestEngine_ReloadSwapsAtomically(t *testing.T) {
	e := NewEngine([]Detector{
		&stubDetector{name: "a", findings: []Finding{{Kind: KindFlashLoan}}},
	}, nil)

	w := DefaultWeights()
	w.FlashLoan = 0.5
	require.NoError(t, e.Reload([]Detector{
		&stubDetector{name: "b", findings: []Finding{{Kind: KindFlashLoan}}},
	}, w))

	a, err := e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xabc"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, a.Score)

	// Invalid weights are rejected and the old snapshot stays.
	bad := DefaultWeights()
	bad.MEV = -1
	assert.Error(t, e.Reload(nil, bad))

	a, err = e.AssessRisk(context.Background(), &Request{
		Transaction: Transaction{Hash: "0xabc"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, a.Score)
}

func TestEngine_ConcurrentAssessAndReload(t *testing.T) {
	e := NewEngine([]Detector{
		&stubDetector{name: "a", findings: []Finding{{Kind: KindMEV}}},
	}, &stubScorer{result: AnomalyResult{Score: 0.2}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := e.AssessRisk(context.Background(), &Request{
					Transaction: Transaction{Hash: "0xabc"},
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			_ = e.Reload([]Detector{
				&stubDetector{name: "b", findings: []Finding{{Kind: KindSandwich}}},
			}, DefaultWeights())
		}
	}()
	wg.Wait()
}
