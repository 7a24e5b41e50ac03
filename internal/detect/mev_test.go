package detect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/dexguard/internal/risk"
)

func samePairContext(pair string, n int) *risk.DetectContext {
	recent := make([]risk.Transaction, n)
	for i := range recent {
		recent[i] = risk.Transaction{Hash: fmt.Sprintf("0xr%d", i), TokenPair: pair}
	}
	return &risk.DetectContext{Recent: recent}
}

func TestMEV_Detect(t *testing.T) {
	d := &MEV{p: Defaults()}

	t.Run("high gas with contended pair is flagged", func(t *testing.T) {
		tx := risk.Transaction{Hash: "0x1", GasPrice: 150, TokenPair: "ETH/USDC"}
		findings := d.Detect(&tx, samePairContext("ETH/USDC", 4))
		require.Len(t, findings, 1)
		assert.Equal(t, risk.KindMEV, findings[0].Kind)
		assert.Equal(t, risk.SeverityHigh, findings[0].Severity)
	})

	t.Run("gas at threshold is not flagged", func(t *testing.T) {
		tx := risk.Transaction{Hash: "0x1", GasPrice: 100, TokenPair: "ETH/USDC"}
		assert.Empty(t, d.Detect(&tx, samePairContext("ETH/USDC", 4)))
	})

	t.Run("same-pair count at threshold is not flagged", func(t *testing.T) {
		tx := risk.Transaction{Hash: "0x1", GasPrice: 150, TokenPair: "ETH/USDC"}
		assert.Empty(t, d.Detect(&tx, samePairContext("ETH/USDC", 3)))
	})

	t.Run("own transaction is excluded from the count", func(t *testing.T) {
		dctx := samePairContext("ETH/USDC", 4)
		dctx.Recent[0].Hash = "0x1" // the transaction under assessment
		tx := risk.Transaction{Hash: "0x1", GasPrice: 150, TokenPair: "ETH/USDC"}
		assert.Empty(t, d.Detect(&tx, dctx))
	})

	t.Run("other pairs do not count", func(t *testing.T) {
		tx := risk.Transaction{Hash: "0x1", GasPrice: 150, TokenPair: "ETH/USDC"}
		assert.Empty(t, d.Detect(&tx, samePairContext("WBTC/USDC", 10)))
	})

	t.Run("missing token pair skips the check", func(t *testing.T) {
		tx := risk.Transaction{Hash: "0x1", GasPrice: 150}
		assert.Empty(t, d.Detect(&tx, samePairContext("", 10)))
	})
}
