// Package anomaly adapts an external statistical anomaly model to the risk
// engine's scoring boundary.
//
// Training and persistence of the model are out of scope: the adapter only
// consumes a scoring capability and degrades to a neutral result when no
// fitted model is available. A retrained model is swapped in atomically,
// never mutated while reads are in flight.
package anomaly

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mbd888/dexguard/internal/risk"
)

// ErrUnavailable is returned by a Model that has no fitted state yet. The
// adapter treats it as the degraded-but-safe default, not an error.
var ErrUnavailable = errors.New("anomaly model unavailable")

// Model is the boundary to the fitted statistical model. Implementations are
// external (in-process reference models, RPC clients); they must support
// concurrent reads.
type Model interface {
	Score(ctx context.Context, v risk.Vector) (float64, error)
}

// Model-free range checks. These need no fitted model, so they run even when
// the statistical signal is degraded.
const (
	highSlippageThreshold = 0.05
	complexRouteThreshold = 5

	// Gas is judged against a percentile of recently scored traffic.
	gasPercentile = 0.90
	minGasSamples = 20
	gasWindowSize = 512
)

// Issue codes attached to AnomalyResult.
const (
	IssueHighSlippage    = "high_slippage"
	IssueUnusualGasPrice = "unusual_gas_price"
	IssueComplexRoute    = "complex_route"
)

// Adapter implements risk.Scorer over an optional Model, adding the
// model-free range checks. The zero model means every score is neutral.
type Adapter struct {
	model atomic.Pointer[Model]

	// Rolling sample of recently scored gas prices, for the
	// context-relative percentile check. Single-writer via mu.
	mu      sync.Mutex
	gas     [gasWindowSize]float64
	gasLen  int
	gasNext int
}

// New creates an adapter. model may be nil (not yet fitted).
func New(model Model) *Adapter {
	a := &Adapter{}
	if model != nil {
		a.model.Store(&model)
	}
	return a
}

// SwapModel atomically replaces the underlying model, e.g. after a retrain.
// In-flight scores keep the model they started with.
func (a *Adapter) SwapModel(model Model) {
	if model == nil {
		a.model.Store(nil)
		return
	}
	a.model.Store(&model)
}

// Score returns the anomaly result for a feature vector. Model absence or
// ErrUnavailable yields the neutral result (score 0) with range-check issues
// still attached; only transport-level failures surface as errors.
func (a *Adapter) Score(ctx context.Context, v risk.Vector) (risk.AnomalyResult, error) {
	issues := a.rangeIssues(v)

	mp := a.model.Load()
	if mp == nil {
		return risk.AnomalyResult{Score: 0, Issues: issues}, nil
	}

	score, err := (*mp).Score(ctx, v)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return risk.AnomalyResult{Score: 0, Issues: issues}, nil
		}
		return risk.AnomalyResult{Score: 0, Issues: issues}, err
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return risk.AnomalyResult{Score: score, Issues: issues}, nil
}

// rangeIssues evaluates the model-free threshold checks and records the gas
// price into the rolling sample.
func (a *Adapter) rangeIssues(v risk.Vector) []string {
	var issues []string

	if v[risk.FeatSlippage] > highSlippageThreshold {
		issues = append(issues, IssueHighSlippage)
	}
	if int(v[risk.FeatRouteLength]) > complexRouteThreshold {
		issues = append(issues, IssueComplexRoute)
	}

	gas := v[risk.FeatGasPrice]
	a.mu.Lock()
	var p90 float64
	enough := a.gasLen >= minGasSamples
	if enough {
		p90 = percentile(a.gas[:a.gasLen], gasPercentile)
	}
	a.gas[a.gasNext] = gas
	a.gasNext = (a.gasNext + 1) % gasWindowSize
	if a.gasLen < gasWindowSize {
		a.gasLen++
	}
	a.mu.Unlock()

	if enough && gas > p90 {
		issues = append(issues, IssueUnusualGasPrice)
	}

	return issues
}

// percentile returns the p-quantile (0 < p < 1) of values using
// nearest-rank on a sorted copy.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
