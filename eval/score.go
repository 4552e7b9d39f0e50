package eval

import (
	"fmt"
	"math"
)

// Verdict is the categorical outcome derived from a numeric score.
type Verdict string

const (
	// VerdictPass indicates the score met or exceeded the pass threshold.
	VerdictPass Verdict = "pass"

	// VerdictBorderline indicates the score fell between the borderline
	// and pass thresholds.
	VerdictBorderline Verdict = "borderline"

	// VerdictFail indicates the score fell below the borderline threshold.
	VerdictFail Verdict = "fail"
)

// Score thresholds used to derive verdicts everywhere a verdict is not
// supplied explicitly (composite aggregation, case-level averaging,
// script results that omit a verdict).
const (
	PassThreshold       = 0.8
	BorderlineThreshold = 0.6
)

// VerdictForScore maps a score in [0,1] to its verdict using the standard
// thresholds: >= 0.8 pass, >= 0.6 borderline, else fail.
func VerdictForScore(score float64) Verdict {
	switch {
	case score >= PassThreshold:
		return VerdictPass
	case score >= BorderlineThreshold:
		return VerdictBorderline
	default:
		return VerdictFail
	}
}

// Score is the result produced by a single evaluator for a single case.
// Scores are immutable once returned; composites and the runner aggregate
// them but never mutate a child's Score in place.
type Score struct {
	// Score is the normalized result in [0.0, 1.0].
	Score float64 `json:"score" yaml:"score"`

	// Verdict is the categorical outcome derived from Score.
	Verdict Verdict `json:"verdict" yaml:"verdict"`

	// Hits lists assertions or criteria that were satisfied.
	Hits []string `json:"hits,omitempty" yaml:"hits,omitempty"`

	// Misses lists assertions or criteria that failed, including
	// evaluator failures converted to zero scores.
	Misses []string `json:"misses,omitempty" yaml:"misses,omitempty"`

	// Reasoning is free-form explanation, typically from a judge.
	Reasoning string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`

	// Details carries arbitrary evaluator-specific diagnostics. Script
	// judges may return any JSON object here; it is preserved verbatim
	// for downstream reporting.
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`

	// RawRequest and RawResponse optionally capture the exact payload
	// exchanged with a judge for debugging.
	RawRequest  string `json:"raw_request,omitempty" yaml:"raw_request,omitempty"`
	RawResponse string `json:"raw_response,omitempty" yaml:"raw_response,omitempty"`
}

// ClampScore forces a score into [0.0, 1.0]. NaN clamps to 0.
func ClampScore(score float64) float64 {
	if math.IsNaN(score) {
		return 0.0
	}
	return math.Max(0.0, math.Min(1.0, score))
}

// ValidateScore returns an error if the score is NaN or outside [0.0, 1.0].
func ValidateScore(score float64) error {
	if math.IsNaN(score) {
		return fmt.Errorf("score is NaN")
	}
	if score < 0.0 || score > 1.0 {
		return fmt.Errorf("score %.4f is out of valid range [0.0, 1.0]", score)
	}
	return nil
}

// failScore builds the zero-score result used whenever an evaluator fails:
// the failure degrades only that evaluator's contribution, never the run.
func failScore(miss string) Score {
	return Score{
		Score:   0.0,
		Verdict: VerdictFail,
		Misses:  []string{miss},
	}
}

// scored builds a Score with the verdict derived from the clamped value.
func scored(score float64, hits, misses []string) Score {
	score = ClampScore(score)
	return Score{
		Score:   score,
		Verdict: VerdictForScore(score),
		Hits:    hits,
		Misses:  misses,
	}
}
