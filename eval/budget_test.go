package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudget_AllWithinLimits(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name:           "budget",
		Type:           TypeBudget,
		MaxLatencyMs:   5000,
		MaxCostUSD:     0.10,
		MaxTotalTokens: 2000,
	})

	score, err := ev.Evaluate(context.Background(), &Context{
		LatencyMs: 1200,
		Usage:     &Usage{InputTokens: 500, OutputTokens: 300, CostUSD: 0.02},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
	assert.Len(t, score.Hits, 3)
}

func TestBudget_PartialViolations(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name:           "budget",
		Type:           TypeBudget,
		MaxLatencyMs:   1000,
		MaxTotalTokens: 2000,
	})

	score, err := ev.Evaluate(context.Background(), &Context{
		LatencyMs: 3000,
		Usage:     &Usage{InputTokens: 500, OutputTokens: 300},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score.Score, 1e-9)
	assert.Len(t, score.Misses, 1)
	assert.Contains(t, score.Misses[0], "latency")
}

func TestBudget_MissingUsageIsMiss(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name:       "budget",
		Type:       TypeBudget,
		MaxCostUSD: 0.10,
	})

	score, err := ev.Evaluate(context.Background(), &Context{LatencyMs: 100})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
	require.Len(t, score.Misses, 1)
	assert.Contains(t, score.Misses[0], "no cost reported")
}

func TestBudget_RequiresAtLeastOneLimit(t *testing.T) {
	_, err := NewRegistry().Create(EvaluatorConfig{Name: "budget", Type: TypeBudget}, &DispatchContext{})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestUsage_TotalTokens(t *testing.T) {
	u := Usage{InputTokens: 120, OutputTokens: 80}
	assert.Equal(t, 200, u.TotalTokens())
}
