package anomaly

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/dexguard/internal/risk"
)

// fixedModel returns a constant score or error.
type fixedModel struct {
	score float64
	err   error
}

func (m *fixedModel) Score(context.Context, risk.Vector) (float64, error) {
	return m.score, m.err
}

func vector(amount, gas, slippage, route float64) risk.Vector {
	var v risk.Vector
	v[risk.FeatAmount] = amount
	v[risk.FeatGasPrice] = gas
	v[risk.FeatSlippage] = slippage
	v[risk.FeatRouteLength] = route
	return v
}

func TestAdapter_NilModelIsNeutral(t *testing.T) {
	a := New(nil)

	res, err := a.Score(context.Background(), vector(100, 50, 0.01, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.Empty(t, res.Issues)
}

func TestAdapter_UnavailableModelIsNeutral(t *testing.T) {
	a := New(&fixedModel{err: ErrUnavailable})

	res, err := a.Score(context.Background(), vector(100, 50, 0.01, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
}

func TestAdapter_TransportErrorSurfaces(t *testing.T) {
	a := New(&fixedModel{err: errors.New("connection refused")})

	_, err := a.Score(context.Background(), vector(100, 50, 0.01, 2))
	assert.Error(t, err)
}

func TestAdapter_ClampsModelScore(t *testing.T) {
	a := New(&fixedModel{score: 1.7})
	res, err := a.Score(context.Background(), vector(100, 50, 0.01, 2))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Score)

	a = New(&fixedModel{score: -0.3})
	res, err = a.Score(context.Background(), vector(100, 50, 0.01, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
}

func TestAdapter_SwapModel(t *testing.T) {
	a := New(nil)

	res, err := a.Score(context.Background(), vector(100, 50, 0.01, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)

	a.SwapModel(&fixedModel{score: 0.6})
	res, err = a.Score(context.Background(), vector(100, 50, 0.01, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.6, res.Score)

	a.SwapModel(nil)
	res, err = a.Score(context.Background(), vector(100, 50, 0.01, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
}

func TestAdapter_RangeIssues(t *testing.T) {
	a := New(nil)

	res, err := a.Score(context.Background(), vector(100, 50, 0.08, 2))
	require.NoError(t, err)
	assert.Contains(t, res.Issues, IssueHighSlippage)

	res, err = a.Score(context.Background(), vector(100, 50, 0.01, 6))
	require.NoError(t, err)
	assert.Contains(t, res.Issues, IssueComplexRoute)

	// Issues attach even when the model is unavailable.
	b := New(&fixedModel{err: ErrUnavailable})
	res, err = b.Score(context.Background(), vector(100, 50, 0.08, 6))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{IssueHighSlippage, IssueComplexRoute}, res.Issues)
}

func TestAdapter_GasPercentileNeedsSamples(t *testing.T) {
	a := New(nil)

	// Fewer than minGasSamples observations: no gas issue even for spikes.
	res, err := a.Score(context.Background(), vector(100, 10_000, 0.01, 2))
	require.NoError(t, err)
	assert.NotContains(t, res.Issues, IssueUnusualGasPrice)

	// Build a baseline of ordinary gas prices.
	for i := 0; i < minGasSamples+5; i++ {
		_, err := a.Score(context.Background(), vector(100, 50, 0.01, 2))
		require.NoError(t, err)
	}

	// A spike well above the p90 of the baseline is flagged.
	res, err = a.Score(context.Background(), vector(100, 5_000, 0.01, 2))
	require.NoError(t, err)
	assert.Contains(t, res.Issues, IssueUnusualGasPrice)

	// A price at the baseline is not.
	res, err = a.Score(context.Background(), vector(100, 50, 0.01, 2))
	require.NoError(t, err)
	assert.NotContains(t, res.Issues, IssueUnusualGasPrice)
}
