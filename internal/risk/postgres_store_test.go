package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/dexguard/internal/risk"
	"github.com/mbd888/dexguard/internal/testutil"
)

func TestPostgresStore_RecordAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := risk.NewPostgresStore(db)
	ctx := context.Background()

	a := &risk.RiskAssessment{
		ID:        "asmt_pg1",
		TxHash:    "0xabc",
		Score:     0.45,
		Level:     risk.LevelLow,
		LevelName: "low",
		Findings: []risk.Finding{{
			Kind:       risk.KindMEV,
			Severity:   risk.SeverityHigh,
			Confidence: 0.7,
		}},
		Notes:     []risk.Note{{Field: "routeLength", Message: "missing route length defaulted to 1"}},
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		LatencyMS: 1.25,
	}
	require.NoError(t, store.Record(ctx, a))

	require.NoError(t, store.Record(ctx, &risk.RiskAssessment{
		ID: "asmt_pg2", TxHash: "0xabc", Score: 0.1, LevelName: "safe",
		Timestamp: time.Now().UTC().Add(time.Second),
	}))

	list, err := store.ListByHash(ctx, "0xabc", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// Newest first
	assert.Equal(t, "asmt_pg2", list[0].ID)

	got := list[1]
	assert.Equal(t, 0.45, got.Score)
	assert.Equal(t, risk.LevelLow, got.Level)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, risk.KindMEV, got.Findings[0].Kind)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "routeLength", got.Notes[0].Field)
}

func TestPostgresStore_ListUnknownHash(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := risk.NewPostgresStore(db)
	list, err := store.ListByHash(context.Background(), "0xnothing", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
