package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldAccuracy_AllFieldsMatch(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name: "fields",
		Type: TypeFieldAccuracy,
		Fields: map[string]any{
			"status": "approved",
			"amount": 99.5,
		},
	})

	score, err := ev.Evaluate(context.Background(), &Context{
		Output: `{"status": "approved", "amount": 99.5, "extra": "ignored"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
	assert.Equal(t, 2, score.Details["matched"])
	assert.Equal(t, 2, score.Details["total"])
}

func TestFieldAccuracy_PartialCredit(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name: "fields",
		Type: TypeFieldAccuracy,
		Fields: map[string]any{
			"a": "right",
			"b": "wrong",
			"c": "missing",
			"d": "right",
		},
	})

	score, err := ev.Evaluate(context.Background(), &Context{
		Output: `{"a": "right", "b": "nope", "d": "right"}`,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score.Score, 1e-9)
	assert.Len(t, score.Hits, 2)
	assert.Len(t, score.Misses, 2)
}

func TestFieldAccuracy_NumericTolerance(t *testing.T) {
	// int expectation against JSON-decoded float64
	ev := mustCreate(t, EvaluatorConfig{
		Name:   "fields",
		Type:   TypeFieldAccuracy,
		Fields: map[string]any{"count": 3},
	})

	score, err := ev.Evaluate(context.Background(), &Context{Output: `{"count": 3}`})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestFieldAccuracy_NestedSubsetMatch(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name: "fields",
		Type: TypeFieldAccuracy,
		Fields: map[string]any{
			"customer": map[string]any{"tier": "gold"},
		},
	})

	// extra keys inside the nested object are allowed
	score, err := ev.Evaluate(context.Background(), &Context{
		Output: `{"customer": {"tier": "gold", "id": 7}}`,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestFieldAccuracy_NonJSONOutputScoresZero(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name:   "fields",
		Type:   TypeFieldAccuracy,
		Fields: map[string]any{"a": 1},
	})

	score, err := ev.Evaluate(context.Background(), &Context{Output: "I cannot answer in JSON"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
	require.Len(t, score.Misses, 1)
	assert.Contains(t, score.Misses[0], "not a JSON object")
}

func TestFieldAccuracy_UsesCaseExpectedFields(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "fields", Type: TypeFieldAccuracy})

	c := &Case{ID: "c1", ExpectedFields: map[string]any{"lang": "go"}}
	score, err := ev.Evaluate(context.Background(), &Context{Case: c, Output: `{"lang": "go"}`})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestFieldAccuracy_NoExpectedFieldsIsError(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "fields", Type: TypeFieldAccuracy})

	_, err := ev.Evaluate(context.Background(), &Context{Case: &Case{ID: "c1"}, Output: "{}"})
	require.Error(t, err)
}

func TestValuesEqual_SliceComparison(t *testing.T) {
	assert.True(t, valuesEqual([]any{"a", 1}, []any{"a", float64(1)}))
	assert.False(t, valuesEqual([]any{"a"}, []any{"a", "b"}))
	assert.False(t, valuesEqual([]any{"a"}, "a"))
}
