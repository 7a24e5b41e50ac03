package detect

import "github.com/mbd888/dexguard/internal/risk"

// Sandwich looks for a front-run/back-run bracket around the target: one
// qualifying transaction strictly before it and one strictly after, with the
// outer pair no further apart than the configured window. A transaction
// qualifies when its amount is at least SandwichAmountRatio of the target's;
// attacker legs are sized relative to the victim trade, not above it.
type Sandwich struct {
	p Params
}

func (d *Sandwich) Name() string { return "sandwich" }

func (d *Sandwich) Detect(tx *risk.Transaction, dctx *risk.DetectContext) []risk.Finding {
	if dctx == nil || len(dctx.Recent) < 2 || tx.Timestamp.IsZero() {
		return nil
	}

	minAmount := tx.Amount * d.p.SandwichAmountRatio

	var before, after []risk.Transaction
	for _, r := range dctx.Recent {
		if r.Timestamp.IsZero() || r.Amount < minAmount {
			continue
		}
		switch {
		case r.Timestamp.Before(tx.Timestamp):
			before = append(before, r)
		case r.Timestamp.After(tx.Timestamp):
			after = append(after, r)
		}
	}
	if len(before) == 0 || len(after) == 0 {
		return nil
	}

	// Mark every leg that participates in at least one bracket whose outer
	// span fits the window.
	beforeHits := make([]bool, len(before))
	afterHits := make([]bool, len(after))
	bracketed := false
	for i, b := range before {
		for j, a := range after {
			if a.Timestamp.Sub(b.Timestamp) <= d.p.SandwichWindow {
				beforeHits[i] = true
				afterHits[j] = true
				bracketed = true
			}
		}
	}
	if !bracketed {
		return nil
	}

	confidence := d.p.SandwichConfidence
	if count(beforeHits) > 1 && count(afterHits) > 1 {
		confidence = d.p.SandwichStrongConfidence
	}

	return []risk.Finding{{
		Kind:        risk.KindSandwich,
		Severity:    risk.SeverityHigh,
		Confidence:  confidence,
		Description: "Transaction bracketed by larger trades within the sandwich window",
		Action:      "Review surrounding transactions",
	}}
}

func count(hits []bool) int {
	n := 0
	for _, h := range hits {
		if h {
			n++
		}
	}
	return n
}
