package detect

import (
	"fmt"
	"math"

	"github.com/mbd888/dexguard/internal/risk"
)

// UnusualPattern evaluates a user's own history for behavior breaks:
// a large trade after long inactivity, a burst of rapid trading, and
// round-number amounts typical of test or bot traffic. Without history it
// returns nothing: there is no baseline to deviate from.
type UnusualPattern struct {
	p Params
}

func (d *UnusualPattern) Name() string { return "unusual_pattern" }

func (d *UnusualPattern) Detect(tx *risk.Transaction, dctx *risk.DetectContext) []risk.Finding {
	if dctx == nil || len(dctx.History) == 0 {
		return nil
	}
	now := dctx.At()

	var findings []risk.Finding

	// Large trade after inactivity: amount above the user's historical mean
	// following a gap beyond the inactivity threshold.
	last := dctx.History[0].Timestamp
	var sum float64
	for _, h := range dctx.History {
		sum += h.Amount
		if h.Timestamp.After(last) {
			last = h.Timestamp
		}
	}
	mean := sum / float64(len(dctx.History))
	if !last.IsZero() && now.Sub(last) > d.p.InactivityGap && tx.Amount > mean {
		findings = append(findings, risk.Finding{
			Kind:        risk.KindUnusualPattern,
			Tag:         risk.TagAfterInactivity,
			Severity:    risk.SeverityLow,
			Confidence:  d.p.InactivityConfidence,
			Description: fmt.Sprintf("Large trade after %.0fh of inactivity", now.Sub(last).Hours()),
			Action:      "Monitor user account",
		})
	}

	// Rapid trading: more than BurstCount transactions inside the burst window.
	recent := 0
	for _, h := range dctx.History {
		if !h.Timestamp.IsZero() && now.Sub(h.Timestamp) < d.p.BurstWindow {
			recent++
		}
	}
	if recent > d.p.BurstCount {
		findings = append(findings, risk.Finding{
			Kind:        risk.KindUnusualPattern,
			Tag:         risk.TagRapidTrading,
			Severity:    risk.SeverityMedium,
			Confidence:  d.p.BurstConfidence,
			Description: "Rapid trading detected",
			Action:      "Possible bot activity",
		})
	}

	// Round-number amounts: whole multiples of 1000 read like test trades.
	if isRoundAmount(tx.Amount) {
		findings = append(findings, risk.Finding{
			Kind:        risk.KindUnusualPattern,
			Tag:         risk.TagRoundAmount,
			Severity:    risk.SeverityLow,
			Confidence:  d.p.RoundAmountConfidence,
			Description: "Round-number amount (possible test trade)",
			Action:      "Monitor user account",
		})
	}

	return findings
}

// isRoundAmount reports whether amount is a non-zero whole multiple of 1000.
func isRoundAmount(amount float64) bool {
	if amount <= 0 || amount != math.Trunc(amount) {
		return false
	}
	return math.Mod(amount, 1000) == 0
}
