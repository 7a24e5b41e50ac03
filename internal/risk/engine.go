package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/dexguard/internal/idgen"
	"github.com/mbd888/dexguard/internal/traces"
)

// DefaultScoreTimeout bounds the anomaly scorer boundary call. On timeout the
// anomaly signal degrades to neutral; the assessment still completes.
const DefaultScoreTimeout = 50 * time.Millisecond

// Checks selects which detector families run for one assessment.
type Checks struct {
	Patterns bool `json:"patterns"`
	Anomaly  bool `json:"anomaly"`
	History  bool `json:"history"`
}

// AllChecks enables every detector family (the default).
func AllChecks() Checks {
	return Checks{Patterns: true, Anomaly: true, History: true}
}

// Request is one risk-assessment call. Checks == nil means run everything.
type Request struct {
	Transaction Transaction   `json:"transaction"`
	History     HistoryWindow `json:"userHistory,omitempty"`
	Recent      []Transaction `json:"recentTransactions,omitempty"`
	Bytecode    string        `json:"contractBytecode,omitempty"`
	Checks      *Checks       `json:"checks,omitempty"`
}

// Engine orchestrates one assessment: feature extraction feeds the pattern
// detectors and the anomaly scorer in parallel, results converge in the
// aggregator, and qualifying assessments are handed off asynchronously.
//
// Safe for concurrent use: per-request state is local, and the detector set
// and weights are swapped atomically on reload, never mutated in place.
type Engine struct {
	detectors    atomic.Value // []Detector
	weights      atomic.Pointer[Weights]
	scorer       Scorer
	store        Store
	recorder     Recorder
	notifier     Notifier
	logger       *slog.Logger
	scoreTimeout time.Duration
}

// NewEngine creates an engine running the given detectors and anomaly scorer.
// A nil scorer disables the anomaly signal entirely.
func NewEngine(detectors []Detector, scorer Scorer) *Engine {
	e := &Engine{
		scorer:       scorer,
		recorder:     NopRecorder{},
		logger:       slog.Default(),
		scoreTimeout: DefaultScoreTimeout,
	}
	e.detectors.Store(detectors)
	w := DefaultWeights()
	e.weights.Store(&w)
	return e
}

// WithStore attaches an audit store. Records are written asynchronously,
// best-effort.
func (e *Engine) WithStore(s Store) *Engine {
	e.store = s
	return e
}

// WithRecorder attaches a metrics recorder.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	if r != nil {
		e.recorder = r
	}
	return e
}

// WithNotifier attaches the alert handoff target.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithLogger overrides the default logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	if l != nil {
		e.logger = l
	}
	return e
}

// WithWeights overrides the default aggregation weights. The weights must
// already be validated.
func (e *Engine) WithWeights(w Weights) *Engine {
	e.weights.Store(&w)
	return e
}

// WithScoreTimeout bounds the anomaly scorer call.
func (e *Engine) WithScoreTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.scoreTimeout = d
	}
	return e
}

// Reload atomically swaps the detector set and weights. In-flight assessments
// keep the snapshot they started with.
func (e *Engine) Reload(detectors []Detector, w Weights) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("reload rejected: %w", err)
	}
	e.detectors.Store(detectors)
	e.weights.Store(&w)
	return nil
}

// AssessRisk evaluates one transaction and returns a complete assessment.
// It fails only on malformed required input; unavailable optional signals
// degrade to neutral defaults recorded as notes.
func (e *Engine) AssessRisk(ctx context.Context, req *Request) (*RiskAssessment, error) {
	start := time.Now()

	tx := &req.Transaction
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}

	ctx, span := traces.StartSpan(ctx, "risk.assess", traces.TxHash(tx.Hash))
	defer span.End()

	checks := AllChecks()
	if req.Checks != nil {
		checks = *req.Checks
	}

	history := req.History
	if !checks.History {
		history = nil
	}

	features, notes := ExtractFeatures(tx, history)

	dctx := &DetectContext{
		History:  history,
		Recent:   req.Recent,
		Bytecode: req.Bytecode,
		Now:      tx.Timestamp,
	}

	var (
		findings []Finding
		anomaly  AnomalyResult
	)

	// Pattern detection and anomaly scoring are independent; run them in
	// parallel and converge in the aggregator. Neither branch returns an
	// error: degraded signals become notes, not failures.
	g, gctx := errgroup.WithContext(ctx)
	if checks.Patterns {
		g.Go(func() error {
			for _, d := range e.currentDetectors() {
				findings = append(findings, d.Detect(tx, dctx)...)
			}
			return nil
		})
	}
	if checks.Anomaly && e.scorer != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, e.scoreTimeout)
			defer cancel()
			res, err := e.scorer.Score(sctx, features)
			if err != nil {
				e.logger.Warn("anomaly scorer unavailable, using neutral score",
					"tx_hash", tx.Hash, "error", err)
				notes = append(notes, Note{Message: "anomaly scorer unavailable; contribution degraded to 0"})
				return nil
			}
			anomaly = res
			return nil
		})
	}
	_ = g.Wait()

	for _, issue := range anomaly.Issues {
		notes = append(notes, Note{Field: "anomaly", Message: issue})
	}

	weights := e.weights.Load()
	score, level, allFindings := weights.Aggregate(findings, anomaly)

	latency := time.Since(start)
	a := &RiskAssessment{
		ID:        idgen.WithPrefix("asmt_"),
		TxHash:    tx.Hash,
		Score:     score,
		Level:     level,
		LevelName: level.String(),
		Findings:  allFindings,
		Notes:     notes,
		Timestamp: time.Now().UTC(),
		Latency:   latency,
		LatencyMS: float64(latency.Microseconds()) / 1000,
	}
	span.SetAttributes(traces.RiskLevel(a.LevelName))

	e.recorder.ObserveAssessment(a.LevelName, a.Score, latency)
	e.recorder.ObserveAnomalyScore(anomaly.Score)
	for _, f := range a.Findings {
		e.recorder.IncFinding(string(f.Kind))
	}

	// Persist asynchronously (best-effort audit trail).
	if e.store != nil {
		go func() {
			if err := e.store.Record(context.Background(), a); err != nil {
				e.logger.Warn("failed to record assessment", "id", a.ID, "error", err)
			}
		}()
	}

	// Alert handoff is decoupled from the scoring path; the dispatcher
	// applies its own threshold and dedup.
	if e.notifier != nil {
		e.notifier.Notify(a)
	}

	return a, nil
}

func (e *Engine) currentDetectors() []Detector {
	v, _ := e.detectors.Load().([]Detector)
	return v
}
