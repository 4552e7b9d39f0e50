package eval

import (
	"context"
	"fmt"
)

// budgetEvaluator asserts the graded attempt's latency, cost, and token
// usage against configured maxima. Each configured budget is one
// constraint; the score is the satisfied fraction.
type budgetEvaluator struct {
	maxLatencyMs   int64
	maxCostUSD     float64
	maxTotalTokens int
}

func newBudgetEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if cfg.MaxLatencyMs <= 0 && cfg.MaxCostUSD <= 0 && cfg.MaxTotalTokens <= 0 {
		return nil, configErrorf(cfg.Name, "budget requires at least one of max_latency_ms, max_cost_usd, max_total_tokens")
	}
	return &budgetEvaluator{
		maxLatencyMs:   cfg.MaxLatencyMs,
		maxCostUSD:     cfg.MaxCostUSD,
		maxTotalTokens: cfg.MaxTotalTokens,
	}, nil
}

func (e *budgetEvaluator) Kind() string { return TypeBudget }

func (e *budgetEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	var hits, misses []string
	total, satisfied := 0, 0

	if e.maxLatencyMs > 0 {
		total++
		if ec.LatencyMs <= e.maxLatencyMs {
			satisfied++
			hits = append(hits, fmt.Sprintf("latency %dms within budget (max: %dms)", ec.LatencyMs, e.maxLatencyMs))
		} else {
			misses = append(misses, fmt.Sprintf("latency %dms exceeds budget (max: %dms)", ec.LatencyMs, e.maxLatencyMs))
		}
	}

	if e.maxCostUSD > 0 {
		total++
		switch {
		case ec.Usage == nil:
			misses = append(misses, "no cost reported by target; cannot verify cost budget")
		case ec.Usage.CostUSD <= e.maxCostUSD:
			satisfied++
			hits = append(hits, fmt.Sprintf("cost $%.6f within budget (max: $%.6f)", ec.Usage.CostUSD, e.maxCostUSD))
		default:
			misses = append(misses, fmt.Sprintf("cost $%.6f exceeds budget (max: $%.6f)", ec.Usage.CostUSD, e.maxCostUSD))
		}
	}

	if e.maxTotalTokens > 0 {
		total++
		switch {
		case ec.Usage == nil:
			misses = append(misses, "no token usage reported by target; cannot verify token budget")
		case ec.Usage.TotalTokens() <= e.maxTotalTokens:
			satisfied++
			hits = append(hits, fmt.Sprintf("%d tokens within budget (max: %d)", ec.Usage.TotalTokens(), e.maxTotalTokens))
		default:
			misses = append(misses, fmt.Sprintf("%d tokens exceed budget (max: %d)", ec.Usage.TotalTokens(), e.maxTotalTokens))
		}
	}

	return scored(float64(satisfied)/float64(total), hits, misses), nil
}
