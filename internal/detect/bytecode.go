package detect

import (
	"strings"

	"github.com/mbd888/dexguard/internal/risk"
)

// Function selectors scanned for in contract bytecode. Selector co-occurrence
// proves nothing about control flow, so findings from this detector carry a
// modest fixed confidence.
const (
	selTransfer     = "a9059cbb" // transfer(address,uint256)
	selRawCall      = "f1a3a4ed"
	selTransferFrom = "23b872dd" // transferFrom(address,address,uint256)
	selFlashLoan    = "94985dbc"
)

// ContractBytecode inspects the bytecode of the contract a transaction
// interacts with, when the caller supplies it. No bytecode, no findings.
type ContractBytecode struct {
	p Params
}

func (d *ContractBytecode) Name() string { return "contract_bytecode" }

func (d *ContractBytecode) Detect(tx *risk.Transaction, dctx *risk.DetectContext) []risk.Finding {
	if dctx == nil || dctx.Bytecode == "" || !tx.ContractInteraction {
		return nil
	}
	code := strings.ToLower(strings.TrimPrefix(dctx.Bytecode, "0x"))

	var findings []risk.Finding

	if strings.Contains(code, selTransfer) && strings.Contains(code, selRawCall) {
		findings = append(findings, risk.Finding{
			Kind:        risk.KindContractRisk,
			Tag:         "reentrancy_pattern",
			Severity:    risk.SeverityMedium,
			Confidence:  d.p.BytecodeConfidence,
			Description: "Contract combines transfer with raw call (reentrancy-prone pattern)",
			Action:      "Verify reentrancy guards before interacting",
		})
	}

	if strings.Contains(code, selTransferFrom) && strings.Contains(code, selFlashLoan) {
		findings = append(findings, risk.Finding{
			Kind:        risk.KindContractRisk,
			Tag:         "flash_loan_hook",
			Severity:    risk.SeverityMedium,
			Confidence:  d.p.BytecodeConfidence,
			Description: "Contract exposes flash-loan entry points",
			Action:      "Review flash-loan callback handling",
		})
	}

	return findings
}
