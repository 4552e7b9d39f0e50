package store

import "sort"

// DefaultEpsilon is the score delta below which two scores are treated
// as unchanged.
const DefaultEpsilon = 0.01

// Delta describes one case whose score moved between baseline and run.
type Delta struct {
	CaseID   string  `json:"case_id"`
	Baseline float64 `json:"baseline"`
	Current  float64 `json:"current"`
	Change   float64 `json:"change"`
}

// Comparison is the case-by-case diff of a run against a baseline.
type Comparison struct {
	Suite string `json:"suite"`

	// Regressions are cases whose score dropped by more than epsilon,
	// sorted worst first.
	Regressions []Delta `json:"regressions,omitempty"`

	// Improvements are cases whose score rose by more than epsilon,
	// sorted best first.
	Improvements []Delta `json:"improvements,omitempty"`

	// New lists case IDs present in the run but not the baseline.
	New []string `json:"new,omitempty"`

	// Missing lists case IDs present in the baseline but not the run.
	Missing []string `json:"missing,omitempty"`

	// Unchanged counts cases within epsilon of their baseline score.
	Unchanged int `json:"unchanged"`
}

// Compare diffs current per-case scores against a baseline. An epsilon
// of zero or below uses DefaultEpsilon.
func Compare(baseline *Baseline, current map[string]float64, epsilon float64) Comparison {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	cmp := Comparison{Suite: baseline.Suite}
	for caseID, score := range current {
		base, ok := baseline.Scores[caseID]
		if !ok {
			cmp.New = append(cmp.New, caseID)
			continue
		}
		change := score - base
		switch {
		case change < -epsilon:
			cmp.Regressions = append(cmp.Regressions, Delta{CaseID: caseID, Baseline: base, Current: score, Change: change})
		case change > epsilon:
			cmp.Improvements = append(cmp.Improvements, Delta{CaseID: caseID, Baseline: base, Current: score, Change: change})
		default:
			cmp.Unchanged++
		}
	}
	for caseID := range baseline.Scores {
		if _, ok := current[caseID]; !ok {
			cmp.Missing = append(cmp.Missing, caseID)
		}
	}

	sort.Slice(cmp.Regressions, func(i, j int) bool {
		return cmp.Regressions[i].Change < cmp.Regressions[j].Change
	})
	sort.Slice(cmp.Improvements, func(i, j int) bool {
		return cmp.Improvements[i].Change > cmp.Improvements[j].Change
	})
	sort.Strings(cmp.New)
	sort.Strings(cmp.Missing)
	return cmp
}

// HasRegressions reports whether any case regressed.
func (c *Comparison) HasRegressions() bool {
	return len(c.Regressions) > 0
}
