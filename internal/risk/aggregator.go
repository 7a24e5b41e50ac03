package risk

import (
	"fmt"
	"math"
)

// Risk level cutoffs. Fixed and monotonic: a composite score s maps to the
// highest level whose cutoff it reaches. Boundary values map upward, so
// s == 0.30 is low, not safe.
const (
	cutoffLow      = 0.30
	cutoffMedium   = 0.50
	cutoffHigh     = 0.70
	cutoffCritical = 0.85
)

// LevelForScore maps a clamped composite score to its risk level.
func LevelForScore(score float64) Level {
	switch {
	case score < cutoffLow:
		return LevelSafe
	case score < cutoffMedium:
		return LevelLow
	case score < cutoffHigh:
		return LevelMedium
	case score < cutoffCritical:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Weights holds the per-kind score contributions used by aggregation.
// The defaults mirror the calibration-free constants the detectors were
// originally tuned with; they are configuration, not ground truth.
type Weights struct {
	FlashLoan       float64 `yaml:"flash_loan"`
	Sandwich        float64 `yaml:"sandwich"`
	MEV             float64 `yaml:"mev"`
	RapidTrading    float64 `yaml:"rapid_trading"`
	AfterInactivity float64 `yaml:"after_inactivity"`
	RoundAmount     float64 `yaml:"round_amount"`
	ContractRisk    float64 `yaml:"contract_risk"`

	// AnomalyFactor scales the anomaly score into the composite, but only
	// once the score itself clears AnomalyGate.
	AnomalyFactor float64 `yaml:"anomaly_factor"`
	AnomalyGate   float64 `yaml:"anomaly_gate"`
}

// DefaultWeights returns the stock aggregation weights.
func DefaultWeights() Weights {
	return Weights{
		FlashLoan:       0.15,
		Sandwich:        0.20,
		MEV:             0.25,
		RapidTrading:    0.10,
		AfterInactivity: 0.05,
		RoundAmount:     0.00, // reported but not scored
		ContractRisk:    0.10,
		AnomalyFactor:   0.30,
		AnomalyGate:     0.70,
	}
}

// Validate rejects weight configurations that could not have come from a sane
// config file. Fatal at load time.
func (w Weights) Validate() error {
	named := map[string]float64{
		"flash_loan":       w.FlashLoan,
		"sandwich":         w.Sandwich,
		"mev":              w.MEV,
		"rapid_trading":    w.RapidTrading,
		"after_inactivity": w.AfterInactivity,
		"round_amount":     w.RoundAmount,
		"contract_risk":    w.ContractRisk,
		"anomaly_factor":   w.AnomalyFactor,
	}
	for name, v := range named {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if w.AnomalyGate < 0 || w.AnomalyGate > 1 {
		return fmt.Errorf("anomaly_gate must be in [0,1], got %v", w.AnomalyGate)
	}
	return nil
}

// forFinding returns the additive contribution of a single finding.
func (w Weights) forFinding(f Finding) float64 {
	switch f.Kind {
	case KindFlashLoan:
		return w.FlashLoan
	case KindSandwich:
		return w.Sandwich
	case KindMEV:
		return w.MEV
	case KindContractRisk:
		return w.ContractRisk
	case KindUnusualPattern:
		switch f.Tag {
		case TagRapidTrading:
			return w.RapidTrading
		case TagAfterInactivity:
			return w.AfterInactivity
		case TagRoundAmount:
			return w.RoundAmount
		}
	}
	return 0
}

// Finding tags used by the unusual-pattern detector and the aggregator.
const (
	TagRapidTrading    = "rapid_trading"
	TagAfterInactivity = "after_inactivity"
	TagRoundAmount     = "round_amount"
	TagAnomaly         = "anomaly"
)

// Aggregate combines pattern findings and the anomaly result into a composite
// score and level. Additive so independent signals compound; order of the
// input findings does not affect the result. Pure: no I/O, no clock, no
// randomness; identical inputs always produce identical output.
//
// When the anomaly score clears the gate, its contribution is surfaced as a
// contract_risk finding appended to the returned slice for transparency.
func (w Weights) Aggregate(findings []Finding, anomaly AnomalyResult) (float64, Level, []Finding) {
	out := make([]Finding, len(findings))
	copy(out, findings)

	score := 0.0
	for _, f := range findings {
		score += w.forFinding(f)
	}

	if anomaly.Score > w.AnomalyGate {
		sev := SeverityMedium
		if anomaly.Score > 0.85 {
			sev = SeverityHigh
		}
		out = append(out, Finding{
			Kind:        KindContractRisk,
			Tag:         TagAnomaly,
			Severity:    sev,
			Confidence:  anomaly.Score,
			Description: fmt.Sprintf("Anomalous transaction detected (score: %.2f)", anomaly.Score),
			Action:      "Review transaction parameters",
		})
		score += anomaly.Score * w.AnomalyFactor
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	score = math.Round(score*1000) / 1000

	return score, LevelForScore(score), out
}
