package eval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedEvaluator returns a constant score, for composing aggregation
// tests out of known inputs.
type fixedEvaluator struct {
	score Score
	err   error
}

func (e *fixedEvaluator) Kind() string { return "fixed" }

func (e *fixedEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	return e.score, e.err
}

// registryWithFixed returns a registry where the "fixed" type produces an
// evaluator scoring cfg.Value parsed as a float via the weights map trick:
// the score is read from cfg.Params["score"].
func registryWithFixed(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	err := r.Register("fixed", func(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
		score, _ := cfg.Params["score"].(float64)
		var evalErr error
		if msg, ok := cfg.Params["error"].(string); ok {
			evalErr = errors.New(msg)
		}
		return &fixedEvaluator{score: scored(score, nil, nil), err: evalErr}, nil
	})
	require.NoError(t, err)
	return r
}

func TestComposite_WeightedAverage(t *testing.T) {
	r := registryWithFixed(t)
	ev, err := r.Create(EvaluatorConfig{
		Name: "overall",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "safety", Type: "fixed", Params: map[string]any{"score": 1.0}},
			{Name: "quality", Type: "fixed", Params: map[string]any{"score": 0.8}},
		},
		Aggregator: AggregatorWeightedAverage,
		Weights:    map[string]float64{"safety": 0.3, "quality": 0.7},
	}, &DispatchContext{})
	require.NoError(t, err)

	score, err := ev.Evaluate(context.Background(), &Context{})
	require.NoError(t, err)
	assert.InDelta(t, 0.86, score.Score, 1e-9)
	assert.Equal(t, VerdictPass, score.Verdict)
}

func TestComposite_DefaultWeightIsOne(t *testing.T) {
	r := registryWithFixed(t)
	ev, err := r.Create(EvaluatorConfig{
		Name: "overall",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "a", Type: "fixed", Params: map[string]any{"score": 1.0}},
			{Name: "b", Type: "fixed", Params: map[string]any{"score": 0.0}},
		},
	}, &DispatchContext{})
	require.NoError(t, err)

	score, err := ev.Evaluate(context.Background(), &Context{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score.Score, 1e-9)
}

func TestComposite_ChildFailureIsIsolated(t *testing.T) {
	r := registryWithFixed(t)
	ev, err := r.Create(EvaluatorConfig{
		Name: "overall",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "good", Type: "fixed", Params: map[string]any{"score": 1.0}},
			{Name: "broken", Type: "fixed", Params: map[string]any{"error": "backend unreachable"}},
		},
	}, &DispatchContext{})
	require.NoError(t, err)

	score, err := ev.Evaluate(context.Background(), &Context{})
	require.NoError(t, err)
	// broken child contributes 0, good child contributes 1
	assert.InDelta(t, 0.5, score.Score, 1e-9)

	assert.Contains(t, score.Misses, "broken: evaluator fixed failed: backend unreachable")
}

func TestComposite_DetailsCarryChildBreakdown(t *testing.T) {
	r := registryWithFixed(t)
	ev, err := r.Create(EvaluatorConfig{
		Name: "overall",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "a", Type: "fixed", Params: map[string]any{"score": 0.9}},
		},
	}, &DispatchContext{})
	require.NoError(t, err)

	score, err := ev.Evaluate(context.Background(), &Context{})
	require.NoError(t, err)

	children, ok := score.Details["children"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, children, 1)
	assert.Equal(t, "a", children[0]["name"])
	assert.Equal(t, 0.9, children[0]["score"])
}

func TestComposite_NestedComposite(t *testing.T) {
	r := registryWithFixed(t)
	ev, err := r.Create(EvaluatorConfig{
		Name: "outer",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{
				Name: "inner",
				Type: TypeComposite,
				Children: []EvaluatorConfig{
					{Name: "leaf", Type: "fixed", Params: map[string]any{"score": 1.0}},
				},
			},
		},
	}, &DispatchContext{})
	require.NoError(t, err)

	score, err := ev.Evaluate(context.Background(), &Context{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Score)
}

func TestComposite_ConfigValidation(t *testing.T) {
	r := registryWithFixed(t)
	dc := &DispatchContext{}

	_, err := r.Create(EvaluatorConfig{Name: "c", Type: TypeComposite}, dc)
	require.Error(t, err, "no children")

	_, err = r.Create(EvaluatorConfig{
		Name: "c",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "a", Type: "fixed"},
		},
		Weights: map[string]float64{"nope": 1.0},
	}, dc)
	require.Error(t, err, "weight for unknown child")

	_, err = r.Create(EvaluatorConfig{
		Name: "c",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "dup", Type: "fixed"},
			{Name: "dup", Type: "fixed"},
		},
	}, dc)
	require.Error(t, err, "duplicate child names")

	_, err = r.Create(EvaluatorConfig{
		Name: "c",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "a", Type: "fixed"},
		},
		Aggregator: "median",
	}, dc)
	require.Error(t, err, "unknown aggregator")

	_, err = r.Create(EvaluatorConfig{
		Name: "c",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "a", Type: "fixed"},
		},
		Aggregator: AggregatorCodeJudge,
	}, dc)
	require.Error(t, err, "code_judge without script")

	_, err = r.Create(EvaluatorConfig{
		Name: "c",
		Type: TypeComposite,
		Children: []EvaluatorConfig{
			{Name: "a", Type: "fixed"},
		},
		Aggregator:       AggregatorLLMJudge,
		AggregatorPrompt: "no placeholder here",
	}, dc)
	require.Error(t, err, "llm_judge prompt without placeholder")
}

func TestComposite_DepthGuard(t *testing.T) {
	r := registryWithFixed(t)

	// build a chain deeper than the guard allows
	cfg := EvaluatorConfig{Name: "leaf", Type: "fixed"}
	for i := 0; i <= maxCompositeDepth; i++ {
		cfg = EvaluatorConfig{
			Name:     "level",
			Type:     TypeComposite,
			Children: []EvaluatorConfig{cfg},
		}
	}

	_, err := r.Create(cfg, &DispatchContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting exceeds depth")
}
