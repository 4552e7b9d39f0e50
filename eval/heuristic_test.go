package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustCreate instantiates an evaluator through the registry or fails the
// test.
func mustCreate(t *testing.T, cfg EvaluatorConfig) Evaluator {
	t.Helper()
	ev, err := NewRegistry().Create(cfg, &DispatchContext{})
	require.NoError(t, err)
	return ev
}

func TestContainsEvaluator(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "has-refund", Type: TypeContains, Value: "refund"})

	score, err := ev.Evaluate(context.Background(), &Context{Output: "we will refund your order"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
	assert.Equal(t, VerdictPass, score.Verdict)
	assert.Len(t, score.Hits, 1)

	score, err = ev.Evaluate(context.Background(), &Context{Output: "no can do"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
	assert.Len(t, score.Misses, 1)
}

func TestContainsEvaluator_RequiresValue(t *testing.T) {
	_, err := NewRegistry().Create(EvaluatorConfig{Name: "bad", Type: TypeContains}, &DispatchContext{})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestNotContainsEvaluator(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "no-pii", Type: TypeNotContains, Value: "SSN"})

	score, err := ev.Evaluate(context.Background(), &Context{Output: "clean output"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)

	score, err = ev.Evaluate(context.Background(), &Context{Output: "the SSN is 123-45-6789"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
	assert.Contains(t, score.Misses[0], "forbidden")
}

func TestRegexEvaluator(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "order-id", Type: TypeRegex, Value: `ORD-\d{6}`})

	score, err := ev.Evaluate(context.Background(), &Context{Output: "your order ORD-123456 shipped"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)

	score, err = ev.Evaluate(context.Background(), &Context{Output: "your order shipped"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
}

func TestRegexEvaluator_InvalidPatternFailsAtConfig(t *testing.T) {
	_, err := NewRegistry().Create(EvaluatorConfig{Name: "bad", Type: TypeRegex, Value: "["}, &DispatchContext{})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "invalid regex")
}

func TestEqualsEvaluator_TrimsWhitespace(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "exact", Type: TypeEquals, Value: "42"})

	score, err := ev.Evaluate(context.Background(), &Context{Output: "  42\n"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)

	score, err = ev.Evaluate(context.Background(), &Context{Output: "43"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
}

func TestEqualsEvaluator_FallsBackToCaseExpected(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "exact", Type: TypeEquals})

	c := &Case{ID: "c1", Expected: "Paris"}
	score, err := ev.Evaluate(context.Background(), &Context{Case: c, Output: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestIsJSONEvaluator(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "json", Type: TypeIsJSON})

	score, err := ev.Evaluate(context.Background(), &Context{Output: `{"ok": true}`})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)

	score, err = ev.Evaluate(context.Background(), &Context{Output: "not json at all"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Score)
}

func TestIsJSONEvaluator_AcceptsFencedJSON(t *testing.T) {
	ev := mustCreate(t, EvaluatorConfig{Name: "json", Type: TypeIsJSON})

	output := "Here is the result:\n```json\n{\"status\": \"ok\"}\n```"
	score, err := ev.Evaluate(context.Background(), &Context{Output: output})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n[1,2]\n```", `[1,2]`},
		{"surrounding prose", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
		{"array in prose", `The list is [1,2,3].`, `[1,2,3]`},
		{"no json", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}
