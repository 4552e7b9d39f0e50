package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// trajectoryEvaluator scores an agent's recorded tool-call sequence
// against declared constraints, independent of the textual answer.
//
// The score is the satisfied fraction of all evaluated constraints. In
// any_order mode each minimum-count entry and each expected-call entry is
// one constraint; in in_order and exact modes the sequence match is a
// single binary constraint. Per-call latency assertions on matched calls
// each add one further constraint; an assertion whose matched call
// recorded no duration is skipped with a warning and contributes nothing.
type trajectoryEvaluator struct {
	name     string
	mode     string
	minimums map[string]int
	expected []ExpectedCall
	logger   *slog.Logger
}

func newTrajectoryEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	switch cfg.Mode {
	case ModeAnyOrder:
		if len(cfg.Minimums) == 0 && len(cfg.Expected) == 0 {
			return nil, configErrorf(cfg.Name, "any_order mode requires 'minimums' or 'expected'")
		}
	case ModeInOrder, ModeExact:
		if len(cfg.Expected) == 0 {
			return nil, configErrorf(cfg.Name, "%s mode requires a non-empty 'expected' sequence", cfg.Mode)
		}
		if len(cfg.Minimums) > 0 {
			return nil, configErrorf(cfg.Name, "'minimums' is only valid in any_order mode")
		}
	case "":
		return nil, configErrorf(cfg.Name, "tool_trajectory requires 'mode' (any_order, in_order, exact)")
	default:
		return nil, configErrorf(cfg.Name, "unknown trajectory mode %q (valid: any_order, in_order, exact)", cfg.Mode)
	}

	for i, exp := range cfg.Expected {
		if exp.Tool == "" {
			return nil, configErrorf(cfg.Name, "expected entry %d is missing 'tool'", i)
		}
	}

	return &trajectoryEvaluator{
		name:     cfg.Name,
		mode:     cfg.Mode,
		minimums: cfg.Minimums,
		expected: cfg.Expected,
		logger:   dc.logger(),
	}, nil
}

func (e *trajectoryEvaluator) Kind() string { return TypeTrajectory }

// matchedCall pairs an expected entry with the actual call its mode
// matched, for latency assertions.
type matchedCall struct {
	exp  ExpectedCall
	call ToolCall
}

func (e *trajectoryEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	calls, ok := ec.Trace()
	if !ok {
		// any_order minimums can still be graded from precomputed counts.
		if e.mode == ModeAnyOrder && ec.Summary != nil && len(ec.Summary.ToolCounts) > 0 {
			return e.evaluateCounts(ec.Summary.ToolCounts), nil
		}
		return failScore("No trace available for evaluation"), nil
	}

	var hits, misses []string
	var matched []matchedCall
	total, satisfied := 0, 0

	switch e.mode {
	case ModeAnyOrder:
		counts := countByName(calls)
		for _, tool := range sortedMinimumTools(e.minimums) {
			min := e.minimums[tool]
			actual := counts[tool]
			total++
			msg := fmt.Sprintf("%s called %d times (minimum: %d)", tool, actual, min)
			if actual >= min {
				satisfied++
				hits = append(hits, msg)
			} else {
				misses = append(misses, msg)
			}
		}

		// Expected entries add per-call constraints; args, when given,
		// require deep equality on the provided subset of input fields.
		used := make([]bool, len(calls))
		for _, exp := range e.expected {
			total++
			idx := findMatchingCall(calls, used, exp)
			if idx >= 0 {
				used[idx] = true
				satisfied++
				hits = append(hits, fmt.Sprintf("%s called with expected arguments", exp.Tool))
				matched = append(matched, matchedCall{exp: exp, call: calls[idx]})
			} else {
				misses = append(misses, fmt.Sprintf("no call to %s with expected arguments", exp.Tool))
			}
		}

	case ModeInOrder:
		pairs, divergence := matchSubsequence(calls, e.expected)
		matched = append(matched, pairs...)
		total++
		if divergence == "" {
			satisfied++
			hits = append(hits, fmt.Sprintf("expected sequence of %d calls matched in order", len(e.expected)))
		} else {
			misses = append(misses, divergence)
		}

	case ModeExact:
		pairs, exactMisses := matchExact(calls, e.expected)
		matched = append(matched, pairs...)
		total++
		if len(exactMisses) == 0 {
			satisfied++
			hits = append(hits, fmt.Sprintf("call sequence of %d calls matches exactly", len(e.expected)))
		} else {
			misses = append(misses, exactMisses...)
		}
	}

	// Latency assertions compose with every mode, evaluated against the
	// calls the mode itself matched.
	for _, m := range matched {
		if m.exp.MaxDurationMs <= 0 {
			continue
		}
		if m.call.DurationMs <= 0 {
			e.logger.Warn("latency assertion skipped: matched call recorded no duration",
				"evaluator", e.name, "tool", m.exp.Tool, "max_duration_ms", m.exp.MaxDurationMs)
			continue
		}
		total++
		if m.call.DurationMs <= m.exp.MaxDurationMs {
			satisfied++
			hits = append(hits, fmt.Sprintf("%s completed in %dms (max: %dms)", m.exp.Tool, m.call.DurationMs, m.exp.MaxDurationMs))
		} else {
			misses = append(misses, fmt.Sprintf("%s took %dms (max: %dms)", m.exp.Tool, m.call.DurationMs, m.exp.MaxDurationMs))
		}
	}

	return scored(float64(satisfied)/float64(total), hits, misses), nil
}

// evaluateCounts grades any_order minimums from a precomputed count map.
// Expected-call constraints need per-call data and are missed outright.
func (e *trajectoryEvaluator) evaluateCounts(counts map[string]int) Score {
	var hits, misses []string
	total, satisfied := 0, 0

	for _, tool := range sortedMinimumTools(e.minimums) {
		min := e.minimums[tool]
		actual := counts[tool]
		total++
		msg := fmt.Sprintf("%s called %d times (minimum: %d)", tool, actual, min)
		if actual >= min {
			satisfied++
			hits = append(hits, msg)
		} else {
			misses = append(misses, msg)
		}
	}
	for _, exp := range e.expected {
		total++
		misses = append(misses, fmt.Sprintf("no per-call data in trace summary to match %s", exp.Tool))
	}

	return scored(float64(satisfied)/float64(total), hits, misses)
}

// matchSubsequence checks that expected appears as a possibly
// non-contiguous subsequence of calls, in order. Unnamed interleaved calls
// carry no penalty. Returns the matched pairs and, on failure, a message
// identifying the first point of divergence.
func matchSubsequence(calls []ToolCall, expected []ExpectedCall) ([]matchedCall, string) {
	var pairs []matchedCall
	pos := 0
	for i, exp := range expected {
		found := -1
		for j := pos; j < len(calls); j++ {
			if callMatches(calls[j], exp) {
				found = j
				break
			}
		}
		if found == -1 {
			return pairs, fmt.Sprintf("expected call %d (%s) not found in order after actual position %d",
				i+1, exp.Tool, pos)
		}
		pairs = append(pairs, matchedCall{exp: exp, call: calls[found]})
		pos = found + 1
	}
	return pairs, ""
}

// matchExact requires the actual sequence to equal the expected sequence
// with no extra calls and no gaps. Extra and missing calls are named
// explicitly.
func matchExact(calls []ToolCall, expected []ExpectedCall) ([]matchedCall, []string) {
	var pairs []matchedCall
	var misses []string

	n := len(expected)
	if len(calls) < n {
		n = len(calls)
	}
	for i := 0; i < n; i++ {
		if callMatches(calls[i], expected[i]) {
			pairs = append(pairs, matchedCall{exp: expected[i], call: calls[i]})
		} else {
			misses = append(misses, fmt.Sprintf("position %d: expected %s, got %s", i+1, expected[i].Tool, calls[i].Name))
		}
	}
	for i := n; i < len(expected); i++ {
		misses = append(misses, fmt.Sprintf("missing expected call %d: %s", i+1, expected[i].Tool))
	}
	for i := n; i < len(calls); i++ {
		misses = append(misses, fmt.Sprintf("unexpected extra call %d: %s", i+1, calls[i].Name))
	}
	return pairs, misses
}

// findMatchingCall returns the index of the first unused call matching the
// expected entry, or -1. Greedy first-match assignment is an accepted
// trade-off over optimal assignment.
func findMatchingCall(calls []ToolCall, used []bool, exp ExpectedCall) int {
	for i, call := range calls {
		if !used[i] && callMatches(call, exp) {
			return i
		}
	}
	return -1
}

// callMatches checks tool name and, when the expected entry specifies
// args, deep equality on the provided subset of input fields.
func callMatches(call ToolCall, exp ExpectedCall) bool {
	if call.Name != exp.Tool {
		return false
	}
	for key, want := range exp.Args {
		got, present := call.Input[key]
		if !present || !valuesEqual(want, got) {
			return false
		}
	}
	return true
}

func countByName(calls []ToolCall) map[string]int {
	counts := make(map[string]int, len(calls))
	for _, call := range calls {
		counts[call.Name]++
	}
	return counts
}

func sortedMinimumTools(minimums map[string]int) []string {
	tools := make([]string, 0, len(minimums))
	for tool := range minimums {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}
