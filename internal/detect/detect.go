// Package detect provides the stateless pattern detectors that feed the risk
// aggregator: flash-loan, sandwich, MEV, unusual-user-pattern, and contract
// bytecode heuristics.
//
// Detectors are independent rule evaluators. They run in no required order,
// share no mutable state, and never fail on malformed optional input: a
// condition that cannot be evaluated is simply skipped.
package detect

import (
	"fmt"
	"time"

	"github.com/mbd888/dexguard/internal/risk"
)

// Params holds every detector threshold and confidence. Values are
// configuration, not ground truth; see Defaults for the stock tuning.
type Params struct {
	// Flash-loan heuristic: all three conditions required (strict comparisons).
	FlashLoanAmount      float64 `yaml:"flash_loan_amount"`
	FlashLoanSlippage    float64 `yaml:"flash_loan_slippage"`
	FlashLoanRouteLength int     `yaml:"flash_loan_route_length"`
	FlashLoanConfidence  float64 `yaml:"flash_loan_confidence"`

	// Sandwich heuristic.
	SandwichWindow           time.Duration `yaml:"sandwich_window"`
	SandwichAmountRatio      float64       `yaml:"sandwich_amount_ratio"`
	SandwichConfidence       float64       `yaml:"sandwich_confidence"`
	SandwichStrongConfidence float64       `yaml:"sandwich_strong_confidence"`

	// MEV heuristic.
	MEVGasPrice      float64 `yaml:"mev_gas_price"`
	MEVSamePairCount int     `yaml:"mev_same_pair_count"`
	MEVConfidence    float64 `yaml:"mev_confidence"`

	// Unusual-pattern heuristic (requires history).
	InactivityGap         time.Duration `yaml:"inactivity_gap"`
	InactivityConfidence  float64       `yaml:"inactivity_confidence"`
	BurstWindow           time.Duration `yaml:"burst_window"`
	BurstCount            int           `yaml:"burst_count"`
	BurstConfidence       float64       `yaml:"burst_confidence"`
	RoundAmountConfidence float64       `yaml:"round_amount_confidence"`

	// Contract bytecode heuristic.
	BytecodeConfidence float64 `yaml:"bytecode_confidence"`
}

// Defaults returns the stock detector parameters.
func Defaults() Params {
	return Params{
		FlashLoanAmount:      1_000_000,
		FlashLoanSlippage:    0.001,
		FlashLoanRouteLength: 4,
		FlashLoanConfidence:  0.75,

		SandwichWindow:           30 * time.Second,
		SandwichAmountRatio:      0.5,
		SandwichConfidence:       0.50,
		SandwichStrongConfidence: 0.70,

		MEVGasPrice:      100,
		MEVSamePairCount: 3,
		MEVConfidence:    0.70,

		InactivityGap:         48 * time.Hour,
		InactivityConfidence:  0.50,
		BurstWindow:           5 * time.Minute,
		BurstCount:            10,
		BurstConfidence:       0.65,
		RoundAmountConfidence: 0.40,

		BytecodeConfidence: 0.60,
	}
}

// Validate rejects parameters that cannot have come from a sane config file.
func (p Params) Validate() error {
	thresholds := map[string]float64{
		"flash_loan_amount":       p.FlashLoanAmount,
		"flash_loan_slippage":     p.FlashLoanSlippage,
		"flash_loan_route_length": float64(p.FlashLoanRouteLength),
		"sandwich_window":         p.SandwichWindow.Seconds(),
		"sandwich_amount_ratio":   p.SandwichAmountRatio,
		"mev_gas_price":           p.MEVGasPrice,
		"mev_same_pair_count":     float64(p.MEVSamePairCount),
		"inactivity_gap":          p.InactivityGap.Seconds(),
		"burst_window":            p.BurstWindow.Seconds(),
		"burst_count":             float64(p.BurstCount),
	}
	for name, v := range thresholds {
		if v < 0 {
			return fmt.Errorf("detector threshold %s must be non-negative, got %v", name, v)
		}
	}
	confidences := map[string]float64{
		"flash_loan_confidence":      p.FlashLoanConfidence,
		"sandwich_confidence":        p.SandwichConfidence,
		"sandwich_strong_confidence": p.SandwichStrongConfidence,
		"mev_confidence":             p.MEVConfidence,
		"inactivity_confidence":      p.InactivityConfidence,
		"burst_confidence":           p.BurstConfidence,
		"round_amount_confidence":    p.RoundAmountConfidence,
		"bytecode_confidence":        p.BytecodeConfidence,
	}
	for name, c := range confidences {
		if c < 0 || c > 1 {
			return fmt.Errorf("detector confidence %s must be in [0,1], got %v", name, c)
		}
	}
	return nil
}

// All returns the full detector set configured with p. The order is the
// evaluation order, but results do not depend on it.
func All(p Params) []risk.Detector {
	return []risk.Detector{
		&FlashLoan{p: p},
		&Sandwich{p: p},
		&MEV{p: p},
		&UnusualPattern{p: p},
		&ContractBytecode{p: p},
	}
}
