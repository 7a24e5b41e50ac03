package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/dexguard/internal/idgen"
	"github.com/mbd888/dexguard/internal/retry"
	"github.com/mbd888/dexguard/internal/risk"
)

// Config controls dispatch thresholds, deduplication, and retry behavior.
type Config struct {
	// DispatchLevel is the minimum risk level that produces alerts.
	DispatchLevel risk.Level
	// DedupWindow merges repeated detections of the same (tx hash, kind).
	DedupWindow time.Duration
	// MaxAttempts bounds delivery retries; RetryBase is the initial backoff.
	MaxAttempts int
	RetryBase   time.Duration
	// QueueSize caps the handoff queue; overflow drops (scoring never blocks).
	QueueSize int
}

// DefaultConfig returns the stock dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		DispatchLevel: risk.LevelHigh,
		DedupWindow:   time.Hour,
		MaxAttempts:   3,
		RetryBase:     100 * time.Millisecond,
		QueueSize:     256,
	}
}

// Validate rejects configurations that cannot have come from a sane file.
func (c Config) Validate() error {
	if c.DispatchLevel < risk.LevelSafe || c.DispatchLevel > risk.LevelCritical {
		return fmt.Errorf("dispatch level out of range: %d", c.DispatchLevel)
	}
	if c.DedupWindow < 0 {
		return fmt.Errorf("dedup window must be non-negative, got %v", c.DedupWindow)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.RetryBase < 0 {
		return fmt.Errorf("retry base must be non-negative, got %v", c.RetryBase)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	return nil
}

type dedupKey struct {
	txHash string
	kind   risk.Kind
}

type dedupEntry struct {
	alert   *Alert
	expires time.Time
}

// Dispatcher implements risk.Notifier. Notify never blocks: qualifying
// assessments are deduplicated under a single mutex and enqueued to the
// delivery worker, which owns the sink exclusively.
type Dispatcher struct {
	cfg      atomic.Pointer[Config]
	sink     Sink
	store    Store
	recorder risk.Recorder
	logger   *slog.Logger

	queue chan *Alert

	mu   sync.Mutex
	seen map[dedupKey]*dedupEntry
}

// NewDispatcher creates a dispatcher delivering to sink. cfg must be valid.
func NewDispatcher(sink Sink, cfg Config) *Dispatcher {
	d := &Dispatcher{
		sink:     sink,
		recorder: risk.NopRecorder{},
		logger:   slog.Default(),
		queue:    make(chan *Alert, cfg.QueueSize),
		seen:     make(map[dedupKey]*dedupEntry),
	}
	d.cfg.Store(&cfg)
	return d
}

// WithStore attaches an audit store for created and terminal alerts.
func (d *Dispatcher) WithStore(s Store) *Dispatcher {
	d.store = s
	return d
}

// WithRecorder attaches a metrics recorder.
func (d *Dispatcher) WithRecorder(r risk.Recorder) *Dispatcher {
	if r != nil {
		d.recorder = r
	}
	return d
}

// WithLogger overrides the default logger.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	if l != nil {
		d.logger = l
	}
	return d
}

// Reload atomically swaps dispatch configuration. The queue size is fixed at
// construction; other fields take effect for subsequent handoffs.
func (d *Dispatcher) Reload(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("reload rejected: %w", err)
	}
	d.cfg.Store(&cfg)
	return nil
}

// Notify hands off an assessment. One alert is created per distinct finding
// kind at or above the dispatch threshold; repeats within the dedup window
// update last_seen instead of producing duplicates. Never blocks.
func (d *Dispatcher) Notify(a *risk.RiskAssessment) {
	cfg := d.cfg.Load()
	if a.Level < cfg.DispatchLevel {
		return
	}

	now := time.Now().UTC()
	for _, kind := range distinctKinds(a.Findings) {
		key := dedupKey{txHash: a.TxHash, kind: kind}

		d.mu.Lock()
		if entry, ok := d.seen[key]; ok && now.Before(entry.expires) {
			// Repeat detection inside the window: merge, don't duplicate.
			entry.alert.LastSeen = now
			updated := *entry.alert
			d.mu.Unlock()
			d.recorder.IncDispatch("deduped")
			d.persist(&updated)
			continue
		}

		alert := &Alert{
			ID:           idgen.WithPrefix("alert_"),
			TxHash:       a.TxHash,
			Kind:         kind,
			Severity:     maxSeverity(a.Findings, kind),
			Message:      fmt.Sprintf("%s risk on %s (score %.3f, %s)", kind, a.TxHash, a.Score, a.LevelName),
			AssessmentID: a.ID,
			Score:        a.Score,
			Level:        a.LevelName,
			FirstSeen:    now,
			LastSeen:     now,
			Status:       StatePending,
		}
		d.seen[key] = &dedupEntry{alert: alert, expires: now.Add(cfg.DedupWindow)}
		d.pruneLocked(now)
		d.mu.Unlock()

		select {
		case d.queue <- alert:
		default:
			// Queue full: dropping beats blocking the scoring path.
			d.logger.Warn("alert queue full, dropping alert",
				"tx_hash", alert.TxHash, "kind", string(alert.Kind))
			d.recorder.IncDispatch("dropped")
		}
	}
}

// Run is the delivery loop. Call in a goroutine; exits when ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			d.deliver(ctx, alert)
		}
	}
}

// deliver attempts sink delivery with bounded exponential backoff, then
// records the terminal state. The alert is shared with the dedup map, so all
// mutations happen under d.mu; the sink call itself runs unlocked.
func (d *Dispatcher) deliver(ctx context.Context, alert *Alert) {
	cfg := d.cfg.Load()

	err := retry.Do(ctx, cfg.MaxAttempts, cfg.RetryBase, func() error {
		d.mu.Lock()
		alert.Attempts++
		payload := *alert
		d.mu.Unlock()
		return d.sink.Deliver(ctx, &payload)
	})

	d.mu.Lock()
	if err != nil {
		alert.Status = StateFailed
	} else {
		alert.Status = StateSent
	}
	terminal := *alert
	d.mu.Unlock()

	if err != nil {
		d.logger.Error("alert delivery failed permanently",
			"id", terminal.ID, "tx_hash", terminal.TxHash, "kind", string(terminal.Kind),
			"attempts", terminal.Attempts, "error", err)
		d.recorder.IncDispatch("failed")
	} else {
		d.recorder.IncDispatch("sent")
	}
	d.persist(&terminal)
}

func (d *Dispatcher) persist(alert *Alert) {
	if d.store == nil {
		return
	}
	if err := d.store.Save(context.Background(), alert); err != nil {
		d.logger.Warn("failed to persist alert", "id", alert.ID, "error", err)
	}
}

// pruneLocked drops expired dedup entries. Caller holds d.mu.
func (d *Dispatcher) pruneLocked(now time.Time) {
	if len(d.seen) < 1024 {
		return
	}
	for key, entry := range d.seen {
		if now.After(entry.expires) {
			delete(d.seen, key)
		}
	}
}

func distinctKinds(findings []risk.Finding) []risk.Kind {
	var kinds []risk.Kind
	seen := make(map[risk.Kind]bool, len(findings))
	for _, f := range findings {
		if !seen[f.Kind] {
			seen[f.Kind] = true
			kinds = append(kinds, f.Kind)
		}
	}
	return kinds
}

var severityRank = map[risk.Severity]int{
	risk.SeverityLow:      0,
	risk.SeverityMedium:   1,
	risk.SeverityHigh:     2,
	risk.SeverityCritical: 3,
}

func maxSeverity(findings []risk.Finding, kind risk.Kind) risk.Severity {
	max := risk.SeverityLow
	for _, f := range findings {
		if f.Kind == kind && severityRank[f.Severity] > severityRank[max] {
			max = f.Severity
		}
	}
	return max
}
