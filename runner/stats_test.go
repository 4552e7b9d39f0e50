package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evalgate/evalgate/eval"
)

func resultWithScore(id string, score float64) CaseResult {
	return CaseResult{
		CaseID:  id,
		Score:   score,
		Verdict: eval.VerdictForScore(score),
	}
}

func TestSummarize(t *testing.T) {
	results := []CaseResult{
		resultWithScore("a", 1.0),
		resultWithScore("b", 0.9),
		resultWithScore("c", 0.7),
		resultWithScore("d", 0.0),
	}

	s := Summarize("run-1", "suite-1", results, 1500*time.Millisecond)

	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, "suite-1", s.Suite)
	assert.Equal(t, 4, s.Cases)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Borderline)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 0.65, s.Mean, 1e-9)
	assert.InDelta(t, 0.8, s.Median, 1e-9)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 1.0, s.Max)
	assert.Equal(t, int64(1500), s.DurationMs)

	// histogram: 0.0 -> bucket 0, 0.7 -> bucket 7, 0.9 -> bucket 9, 1.0 -> bucket 9
	assert.Equal(t, 1, s.Histogram[0])
	assert.Equal(t, 1, s.Histogram[7])
	assert.Equal(t, 2, s.Histogram[9])
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize("run-1", "suite-1", nil, 0)
	assert.Equal(t, 0, s.Cases)
	assert.Equal(t, 0.0, s.Mean)
	assert.Equal(t, 0.0, s.StdDev)
}

func TestSummarize_ErroredCases(t *testing.T) {
	results := []CaseResult{
		resultWithScore("a", 1.0),
		{CaseID: "b", Score: 0, Verdict: eval.VerdictFail, Error: "target invocation failed"},
	}

	s := Summarize("run-1", "s", results, time.Second)
	assert.Equal(t, 1, s.Errored)
	assert.Equal(t, 1, s.Failed)
}

func TestSummarize_MedianEvenCount(t *testing.T) {
	results := []CaseResult{
		resultWithScore("a", 0.2),
		resultWithScore("b", 0.4),
	}
	s := Summarize("r", "s", results, 0)
	assert.InDelta(t, 0.3, s.Median, 1e-9)
}

func TestStdDev(t *testing.T) {
	values := []float64{0.0, 1.0}
	assert.InDelta(t, 0.5, stdDev(values, 0.5), 1e-9)
	assert.Equal(t, 0.0, stdDev([]float64{0.7}, 0.7))
}
