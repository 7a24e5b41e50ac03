package detect

import "github.com/mbd888/dexguard/internal/risk"

// FlashLoan flags transactions that look like flash-loan usage: a very large
// amount with near-zero slippage routed through many hops. All three
// conditions are required; any single unusual field is common in ordinary
// traffic.
type FlashLoan struct {
	p Params
}

func (d *FlashLoan) Name() string { return "flash_loan" }

func (d *FlashLoan) Detect(tx *risk.Transaction, _ *risk.DetectContext) []risk.Finding {
	largeAmount := tx.Amount > d.p.FlashLoanAmount
	zeroSlippage := tx.Slippage < d.p.FlashLoanSlippage
	complexRoute := tx.RouteLength > d.p.FlashLoanRouteLength

	if !(largeAmount && zeroSlippage && complexRoute) {
		return nil
	}

	return []risk.Finding{{
		Kind:        risk.KindFlashLoan,
		Severity:    risk.SeverityMedium,
		Confidence:  d.p.FlashLoanConfidence,
		Description: "Potential flash loan usage detected",
		Action:      "Monitor for repayment",
	}}
}
