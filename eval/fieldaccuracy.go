package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// numericTolerance is the slack allowed when comparing numeric field
// values, absorbing float formatting differences across JSON round-trips.
const numericTolerance = 1e-9

// fieldAccuracyEvaluator parses the candidate output as JSON and compares
// each expected field, awarding linear partial credit per matched field.
type fieldAccuracyEvaluator struct {
	fields map[string]any // nil means the case's ExpectedFields
}

func newFieldAccuracyEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	return &fieldAccuracyEvaluator{fields: cfg.Fields}, nil
}

func (e *fieldAccuracyEvaluator) Kind() string { return TypeFieldAccuracy }

func (e *fieldAccuracyEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	expected := e.fields
	if len(expected) == 0 && ec.Case != nil {
		expected = ec.Case.ExpectedFields
	}
	if len(expected) == 0 {
		return Score{}, fmt.Errorf("field_accuracy has no expected fields configured")
	}

	var actual map[string]any
	if err := json.Unmarshal([]byte(extractJSON(ec.Output)), &actual); err != nil {
		return scored(0.0, nil, []string{fmt.Sprintf("output is not a JSON object: %v", err)}), nil
	}

	var hits, misses []string
	matched := 0
	for _, key := range sortedKeys(expected) {
		want := expected[key]
		got, present := actual[key]
		switch {
		case !present:
			misses = append(misses, fmt.Sprintf("field %q missing from output", key))
		case valuesEqual(want, got):
			matched++
			hits = append(hits, fmt.Sprintf("field %q matches expected value", key))
		default:
			misses = append(misses, fmt.Sprintf("field %q: expected %v, got %v", key, want, got))
		}
	}

	score := scored(float64(matched)/float64(len(expected)), hits, misses)
	score.Details = map[string]any{
		"matched": matched,
		"total":   len(expected),
	}
	return score, nil
}

// valuesEqual compares an expected value against an actual JSON-decoded
// value. Numbers compare with tolerance regardless of Go type; maps
// compare on the expected subset of keys; everything else uses deep
// equality.
func valuesEqual(want, got any) bool {
	if wn, ok := asFloat(want); ok {
		gn, ok := asFloat(got)
		return ok && math.Abs(wn-gn) <= numericTolerance
	}

	if wm, ok := want.(map[string]any); ok {
		gm, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range wm {
			gv, present := gm[k]
			if !present || !valuesEqual(wv, gv) {
				return false
			}
		}
		return true
	}

	if ws, ok := want.([]any); ok {
		gs, ok := got.([]any)
		if !ok || len(ws) != len(gs) {
			return false
		}
		for i := range ws {
			if !valuesEqual(ws[i], gs[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(want, got)
}

// asFloat normalizes the numeric types produced by YAML and JSON decoding.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// sortedKeys keeps hit/miss ordering deterministic across map iteration.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
