package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELEvaluator_BooleanExpression(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name:       "check",
		Type:       TypeCEL,
		Expression: `output.contains("refund")`,
	})

	score, err := ev.Evaluate(context.Background(), &Context{Output: "refund issued"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)

	score, err = ev.Evaluate(context.Background(), &Context{Output: "request denied"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
}

func TestCELEvaluator_JSONVariable(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name:       "check",
		Type:       TypeCEL,
		Expression: `json.status == "ok" && json.count >= 3.0`,
	})

	score, err := ev.Evaluate(context.Background(), &Context{Output: `{"status": "ok", "count": 5}`})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestCELEvaluator_ExpectedVariable(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{
		Name:       "check",
		Type:       TypeCEL,
		Expression: `output == expected`,
	})

	c := &Case{ID: "c1", Expected: "42"}
	score, err := ev.Evaluate(context.Background(), &Context{Case: c, Output: "42"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestCELEvaluator_CompileErrorsFailAtConfig(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create(EvaluatorConfig{Name: "c", Type: TypeCEL, Expression: "output =="}, &DispatchContext{})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	_, err = r.Create(EvaluatorConfig{Name: "c", Type: TypeCEL}, &DispatchContext{})
	require.Error(t, err, "missing expression")

	_, err = r.Create(EvaluatorConfig{Name: "c", Type: TypeCEL, Expression: `output + "x"`}, &DispatchContext{})
	require.Error(t, err, "non-boolean result type")
}

func TestCELEvaluator_RuntimeErrorSurfaces(t *testing.T) {
	// json is null when the output is not parsable; member access then
	// fails at evaluation time, which the runner recovers to a zero score.
	ev := mustCreate(t, EvaluatorConfig{
		Name:       "check",
		Type:       TypeCEL,
		Expression: `json.status == "ok"`,
	})

	_, err := ev.Evaluate(context.Background(), &Context{Output: "not json"})
	require.Error(t, err)
}
