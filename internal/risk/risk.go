// Package risk implements real-time fraud risk assessment for DEX transactions.
//
// Every transaction is scored by combining independent detection signals:
// deterministic pattern detectors (flash loan, sandwich, MEV, unusual user
// behavior) and a pluggable statistical anomaly scorer. Signals converge in an
// additive aggregator that produces a composite score in [0, 1] and an ordinal
// risk level. Assessments at or above the dispatch threshold are handed to an
// asynchronous alert dispatcher; the scoring path itself never blocks on I/O.
package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Level is the ordinal risk verdict for a transaction.
type Level int

const (
	LevelSafe Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = [...]string{"safe", "low", "medium", "high", "critical"}

func (l Level) String() string {
	if l < LevelSafe || l > LevelCritical {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel converts a level name back to its ordinal. Unknown names map to
// LevelSafe with ok=false.
func ParseLevel(s string) (Level, bool) {
	for i, name := range levelNames {
		if name == s {
			return Level(i), true
		}
	}
	return LevelSafe, false
}

// Severity tiers for individual findings.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind identifies which detector family produced a finding.
type Kind string

const (
	KindFlashLoan      Kind = "flash_loan"
	KindSandwich       Kind = "sandwich"
	KindMEV            Kind = "mev"
	KindUnusualPattern Kind = "unusual_pattern"
	KindContractRisk   Kind = "contract_risk"
)

// Finding is a single detector's positive signal about a transaction.
// Findings are value objects; a detector that cannot evaluate a condition
// returns no finding rather than a zero-confidence one.
type Finding struct {
	Kind        Kind     `json:"kind"`
	Tag         string   `json:"tag,omitempty"` // sub-pattern, e.g. "rapid_trading"
	Severity    Severity `json:"severity"`
	Confidence  float64  `json:"confidence"` // [0, 1]
	Description string   `json:"description"`
	Action      string   `json:"recommendedAction"`
}

// Transaction is the immutable per-request input to an assessment.
type Transaction struct {
	Hash                string    `json:"txHash"`
	From                string    `json:"fromAddress"`
	To                  string    `json:"toAddress"`
	Amount              float64   `json:"amount"`
	TokenPair           string    `json:"tokenPair"`
	Timestamp           time.Time `json:"timestamp"`
	GasPrice            float64   `json:"gasPrice"`
	Slippage            float64   `json:"slippage"`
	RouteLength         int       `json:"routeLength"`
	ContractInteraction bool      `json:"contractInteraction"`
}

// Validate reports malformed required input. This is the only error category
// that fails an assessment; optional-field problems degrade to notes instead.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.Hash) == "" {
		return fmt.Errorf("transaction hash is required")
	}
	if t.Amount < 0 {
		return fmt.Errorf("amount must be non-negative, got %v", t.Amount)
	}
	if t.GasPrice < 0 {
		return fmt.Errorf("gas price must be non-negative, got %v", t.GasPrice)
	}
	if t.Slippage < 0 {
		return fmt.Errorf("slippage must be non-negative, got %v", t.Slippage)
	}
	if t.RouteLength < 0 {
		return fmt.Errorf("route length must be non-negative, got %d", t.RouteLength)
	}
	// Addresses are optional, but when given in 0x form they must be valid.
	if t.From != "" && strings.HasPrefix(t.From, "0x") && !common.IsHexAddress(t.From) {
		return fmt.Errorf("from address %q is not a valid hex address", t.From)
	}
	if t.To != "" && strings.HasPrefix(t.To, "0x") && !common.IsHexAddress(t.To) {
		return fmt.Errorf("to address %q is not a valid hex address", t.To)
	}
	return nil
}

// HistoryWindow is an ordered sequence of the same actor's prior transactions,
// supplied by the caller and read-only to the engine.
type HistoryWindow []Transaction

// Note is a non-fatal data-quality remark attached to an assessment, e.g. a
// missing optional field that was defaulted or a degraded dependency.
type Note struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RiskAssessment is the composite per-transaction result. Immutable once built.
type RiskAssessment struct {
	ID        string        `json:"id"`
	TxHash    string        `json:"txHash"`
	Score     float64       `json:"riskScore"` // [0, 1]
	Level     Level         `json:"-"`
	LevelName string        `json:"riskLevel"`
	Findings  []Finding     `json:"findings"`
	Notes     []Note        `json:"notes,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"-"`
	LatencyMS float64       `json:"latencyMs"`
}

// AnomalyResult is the anomaly scorer's contribution to one assessment:
// a normalized outlier score plus any threshold issue codes. The zero value
// is the degraded-but-safe default used when the model is unavailable.
type AnomalyResult struct {
	Score  float64  `json:"score"` // [0, 1]
	Issues []string `json:"issues,omitempty"`
}

// DetectContext carries the optional surroundings a detector may inspect.
// Detectors skip conditions whose inputs are absent.
type DetectContext struct {
	History  HistoryWindow // prior transactions by the same actor
	Recent   []Transaction // surrounding/mempool transactions
	Bytecode string        // hex bytecode of the interacted contract, if known
	Now      time.Time     // evaluation reference time; zero means time.Now()
}

// At returns the reference time for history-relative checks.
func (c *DetectContext) At() time.Time {
	if c == nil || c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// Detector is a single stateless pattern evaluator. Implementations must be
// safe for concurrent use and must not retain or mutate their inputs.
type Detector interface {
	Name() string
	Detect(tx *Transaction, dctx *DetectContext) []Finding
}

// Scorer is the boundary to the external statistical anomaly model. A scorer
// that has no fitted model returns the neutral AnomalyResult and no error;
// transport or timeout errors are degraded by the engine, never surfaced.
type Scorer interface {
	Score(ctx context.Context, v Vector) (AnomalyResult, error)
}

// Recorder receives observation events from the engine and dispatcher.
// Implementations live outside the core (see internal/metrics).
type Recorder interface {
	ObserveAssessment(level string, score float64, latency time.Duration)
	IncFinding(kind string)
	ObserveAnomalyScore(score float64)
	IncDispatch(result string)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) ObserveAssessment(string, float64, time.Duration) {}
func (NopRecorder) IncFinding(string)                                {}
func (NopRecorder) ObserveAnomalyScore(float64)                      {}
func (NopRecorder) IncDispatch(string)                               {}

// Notifier receives completed assessments that crossed the dispatch threshold.
// Implementations must not block (see internal/alerts.Dispatcher).
type Notifier interface {
	Notify(a *RiskAssessment)
}

// Store persists assessments for audit trail.
type Store interface {
	Record(ctx context.Context, a *RiskAssessment) error
	ListByHash(ctx context.Context, txHash string, limit int) ([]*RiskAssessment, error)
}
