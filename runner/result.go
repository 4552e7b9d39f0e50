package runner

import (
	"time"

	"github.com/evalgate/evalgate/eval"
)

// CaseResult is the output record for one case: the aggregate score and
// verdict plus, when a case configures more than one evaluator, the
// per-evaluator breakdown. The case-level score is the arithmetic mean of
// all configured evaluators' scores.
type CaseResult struct {
	// RunID identifies the run that produced this result.
	RunID string `json:"run_id"`

	// CaseID identifies the case.
	CaseID string `json:"case_id"`

	// Score is the aggregate case score in [0,1].
	Score float64 `json:"score"`

	// Verdict is derived from Score with the standard thresholds.
	Verdict eval.Verdict `json:"verdict"`

	// Hits and Misses aggregate the evaluators' hit/miss messages,
	// prefixed by evaluator name when the case has several.
	Hits   []string `json:"hits,omitempty"`
	Misses []string `json:"misses,omitempty"`

	// Evaluations is the per-evaluator breakdown, present when the case
	// configures more than one evaluator.
	Evaluations []EvaluatorResult `json:"evaluations,omitempty"`

	// Attempts is how many target invocations the case consumed,
	// including the successful one.
	Attempts int `json:"attempts"`

	// LatencyMs is the duration of the successful target invocation.
	LatencyMs int64 `json:"latency_ms,omitempty"`

	// Error records a terminal target-invocation failure. When set, the
	// case scored 0 and no evaluators ran.
	Error string `json:"error,omitempty"`

	// Timestamp is when the case finished.
	Timestamp time.Time `json:"timestamp"`
}

// EvaluatorResult attributes one score to one named evaluator.
type EvaluatorResult struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Score     float64        `json:"score"`
	Verdict   eval.Verdict   `json:"verdict"`
	Hits      []string       `json:"hits,omitempty"`
	Misses    []string       `json:"misses,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}
