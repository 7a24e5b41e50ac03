package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbd888/dexguard/internal/risk"
)

func TestFlashLoan_Detect(t *testing.T) {
	d := &FlashLoan{p: Defaults()}

	tests := []struct {
		name string
		tx   risk.Transaction
		want bool
	}{
		{
			name: "all three conditions met",
			tx:   risk.Transaction{Hash: "0x1", Amount: 2_000_000, Slippage: 0.0001, RouteLength: 6},
			want: true,
		},
		{
			name: "amount at threshold is not flagged",
			tx:   risk.Transaction{Hash: "0x1", Amount: 1_000_000, Slippage: 0.0001, RouteLength: 6},
			want: false,
		},
		{
			name: "slippage at threshold is not flagged",
			tx:   risk.Transaction{Hash: "0x1", Amount: 2_000_000, Slippage: 0.001, RouteLength: 6},
			want: false,
		},
		{
			name: "route length at threshold is not flagged",
			tx:   risk.Transaction{Hash: "0x1", Amount: 2_000_000, Slippage: 0.0001, RouteLength: 4},
			want: false,
		},
		{
			name: "large amount alone is not flagged",
			tx:   risk.Transaction{Hash: "0x1", Amount: 5_000_000, Slippage: 0.01, RouteLength: 2},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := d.Detect(&tt.tx, &risk.DetectContext{})
			if tt.want {
				if assert.Len(t, findings, 1) {
					assert.Equal(t, risk.KindFlashLoan, findings[0].Kind)
					assert.Equal(t, risk.SeverityMedium, findings[0].Severity)
					assert.Equal(t, 0.75, findings[0].Confidence)
				}
			} else {
				assert.Empty(t, findings)
			}
		})
	}
}
