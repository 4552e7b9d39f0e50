package runner

import (
	"math"
	"sort"
	"time"

	"github.com/evalgate/evalgate/eval"
)

// Summary is the run-level statistical rollup, computed once after every
// case has finished.
type Summary struct {
	RunID string `json:"run_id"`
	Suite string `json:"suite"`

	// Cases is the total number of cases in the run.
	Cases int `json:"cases"`

	// Verdict counts over all cases.
	Passed     int `json:"passed"`
	Borderline int `json:"borderline"`
	Failed     int `json:"failed"`

	// Errored counts cases whose target invocation failed terminally.
	// These cases scored 0 and are included in Failed.
	Errored int `json:"errored,omitempty"`

	// Score statistics over all cases.
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`

	// Histogram buckets scores into ten equal-width bins over [0,1]; a
	// score of exactly 1.0 lands in the last bin.
	Histogram [10]int `json:"histogram"`

	// DurationMs is the wall-clock duration of the whole run.
	DurationMs int64 `json:"duration_ms"`
}

// Summarize computes run statistics from the complete result set.
func Summarize(runID, suite string, results []CaseResult, elapsed time.Duration) Summary {
	s := Summary{
		RunID:      runID,
		Suite:      suite,
		Cases:      len(results),
		DurationMs: elapsed.Milliseconds(),
	}
	if len(results) == 0 {
		return s
	}

	scores := make([]float64, 0, len(results))
	for _, r := range results {
		scores = append(scores, r.Score)

		switch r.Verdict {
		case eval.VerdictPass:
			s.Passed++
		case eval.VerdictBorderline:
			s.Borderline++
		default:
			s.Failed++
		}
		if r.Error != "" {
			s.Errored++
		}

		bucket := int(r.Score * 10)
		if bucket > 9 {
			bucket = 9
		}
		if bucket < 0 {
			bucket = 0
		}
		s.Histogram[bucket]++
	}

	sort.Float64s(scores)
	s.Min = scores[0]
	s.Max = scores[len(scores)-1]
	s.Mean = mean(scores)
	s.Median = median(scores)
	s.StdDev = stdDev(scores, s.Mean)
	return s
}

func mean(sorted []float64) float64 {
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

// median expects its input sorted ascending.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// stdDev is the population standard deviation.
func stdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
