package detect

import "github.com/mbd888/dexguard/internal/risk"

// MEV flags priority-fee spikes on contended markets: gas price above the
// high-gas threshold while more than MEVSamePairCount other transactions in
// the surrounding context trade the same token pair.
type MEV struct {
	p Params
}

func (d *MEV) Name() string { return "mev" }

func (d *MEV) Detect(tx *risk.Transaction, dctx *risk.DetectContext) []risk.Finding {
	if tx.GasPrice <= d.p.MEVGasPrice {
		return nil
	}
	if dctx == nil || tx.TokenPair == "" {
		return nil
	}

	samePair := 0
	for _, r := range dctx.Recent {
		if r.TokenPair == tx.TokenPair && r.Hash != tx.Hash {
			samePair++
		}
	}
	if samePair <= d.p.MEVSamePairCount {
		return nil
	}

	return []risk.Finding{{
		Kind:        risk.KindMEV,
		Severity:    risk.SeverityHigh,
		Confidence:  d.p.MEVConfidence,
		Description: "Potential MEV/sandwich attack detected",
		Action:      "Review transaction carefully",
	}}
}
