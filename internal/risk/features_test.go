package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractFeatures_BasicFields(t *testing.T) {
	tx := &Transaction{
		Hash:                "0xabc",
		Amount:              1500,
		GasPrice:            42,
		Slippage:            0.01,
		RouteLength:         3,
		ContractInteraction: true,
	}

	v, notes := ExtractFeatures(tx, nil)

	assert.Equal(t, 1500.0, v[FeatAmount])
	assert.Equal(t, 42.0, v[FeatGasPrice])
	assert.Equal(t, 0.01, v[FeatSlippage])
	assert.Equal(t, 3.0, v[FeatRouteLength])
	assert.Equal(t, 1.0, v[FeatContractInteraction])
	assert.Equal(t, UnknownTimeSinceLast, v[FeatTimeSinceLast])
	assert.Empty(t, notes)
}

func TestExtractFeatures_MissingRouteLengthDefaultsToOne(t *testing.T) {
	tx := &Transaction{Hash: "0xabc", Amount: 10}

	v, notes := ExtractFeatures(tx, nil)

	assert.Equal(t, 1.0, v[FeatRouteLength])
	if assert.Len(t, notes, 1) {
		assert.Equal(t, "routeLength", notes[0].Field)
	}
}

func TestExtractFeatures_TimeSinceLastUsesTxTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := &Transaction{Hash: "0xabc", Amount: 10, RouteLength: 1, Timestamp: now}
	history := HistoryWindow{
		{Hash: "0x1", Timestamp: now.Add(-2 * time.Hour)},
		{Hash: "0x2", Timestamp: now.Add(-30 * time.Minute)}, // most recent
		{Hash: "0x3", Timestamp: now.Add(-5 * time.Hour)},
	}

	v, notes := ExtractFeatures(tx, history)

	assert.Equal(t, (30 * time.Minute).Seconds(), v[FeatTimeSinceLast])
	assert.Empty(t, notes)
}

func TestExtractFeatures_HistoryWithoutTxTimestamp(t *testing.T) {
	tx := &Transaction{Hash: "0xabc", Amount: 10, RouteLength: 1}
	history := HistoryWindow{{Hash: "0x1", Timestamp: time.Now()}}

	v, notes := ExtractFeatures(tx, history)

	assert.Equal(t, UnknownTimeSinceLast, v[FeatTimeSinceLast])
	if assert.Len(t, notes, 1) {
		assert.Equal(t, "timestamp", notes[0].Field)
	}
}

func TestExtractFeatures_Deterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := &Transaction{Hash: "0xabc", Amount: 99.5, GasPrice: 7, RouteLength: 2, Timestamp: now}
	history := HistoryWindow{{Hash: "0x1", Timestamp: now.Add(-time.Hour)}}

	v1, _ := ExtractFeatures(tx, history)
	v2, _ := ExtractFeatures(tx, history)

	assert.Equal(t, v1, v2)
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tx      Transaction
		wantErr string
	}{
		{"valid minimal", Transaction{Hash: "0xabc"}, ""},
		{"missing hash", Transaction{}, "hash is required"},
		{"negative amount", Transaction{Hash: "0xabc", Amount: -1}, "amount must be non-negative"},
		{"negative gas", Transaction{Hash: "0xabc", GasPrice: -1}, "gas price must be non-negative"},
		{"negative slippage", Transaction{Hash: "0xabc", Slippage: -0.1}, "slippage must be non-negative"},
		{"negative route", Transaction{Hash: "0xabc", RouteLength: -1}, "route length must be non-negative"},
		{"bad from address", Transaction{Hash: "0xabc", From: "0xnothex"}, "not a valid hex address"},
		{
			"valid addresses",
			Transaction{
				Hash: "0xabc",
				From: "0xaaaa000000000000000000000000000000000001",
				To:   "0xbbbb000000000000000000000000000000000002",
			},
			"",
		},
		{"non-hex from is allowed", Transaction{Hash: "0xabc", From: "alice.eth"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []Level{LevelSafe, LevelLow, LevelMedium, LevelHigh, LevelCritical} {
		got, ok := ParseLevel(lvl.String())
		assert.True(t, ok)
		assert.Equal(t, lvl, got)
	}

	_, ok := ParseLevel("severe")
	assert.False(t, ok)
}
