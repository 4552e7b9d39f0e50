package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// resultsPlaceholder is the token in an llm_judge aggregator prompt that
// is replaced with the JSON serialization of all child results.
const resultsPlaceholder = "{{results}}"

// compositeEvaluator runs named child evaluators in parallel and reduces
// their scores through one aggregator strategy. Children resolve through
// the registry, so a child may itself be a composite; nesting depth is
// bounded by maxCompositeDepth at configuration time.
type compositeEvaluator struct {
	name       string
	children   []compositeChild
	aggregator string
	weights    map[string]float64

	// code_judge aggregator
	script []string

	// llm_judge aggregator
	prompt string
	judge  Target

	timeout time.Duration
	logger  *slog.Logger
}

// compositeChild tags an instantiated child with its configured name so
// aggregators can reference results individually.
type compositeChild struct {
	name string
	ev   Evaluator
}

func newCompositeEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if dc.depth >= maxCompositeDepth {
		return nil, configErrorf(cfg.Name, "composite nesting exceeds depth %d; check for a cyclic configuration", maxCompositeDepth)
	}
	if len(cfg.Children) == 0 {
		return nil, configErrorf(cfg.Name, "composite requires at least one child evaluator")
	}
	if err := ValidateEvaluatorNames(cfg.Children); err != nil {
		return nil, err
	}

	aggregator := cfg.Aggregator
	if aggregator == "" {
		aggregator = AggregatorWeightedAverage
	}

	e := &compositeEvaluator{
		name:       cfg.Name,
		aggregator: aggregator,
		weights:    cfg.Weights,
		script:     cfg.AggregatorScript,
		prompt:     cfg.AggregatorPrompt,
		timeout:    dc.timeoutFor(&cfg),
		logger:     dc.logger(),
	}

	switch aggregator {
	case AggregatorWeightedAverage:
		for name := range cfg.Weights {
			if !hasChild(cfg.Children, name) {
				return nil, configErrorf(cfg.Name, "weight refers to unknown child %q", name)
			}
		}
	case AggregatorCodeJudge:
		if len(cfg.AggregatorScript) == 0 {
			return nil, configErrorf(cfg.Name, "code_judge aggregator requires 'aggregator_script'")
		}
	case AggregatorLLMJudge:
		if !strings.Contains(cfg.AggregatorPrompt, resultsPlaceholder) {
			return nil, configErrorf(cfg.Name, "llm_judge aggregator prompt must contain the %s placeholder", resultsPlaceholder)
		}
		judge, err := dc.judgeFor(&cfg)
		if err != nil {
			return nil, err
		}
		e.judge = judge
	default:
		return nil, configErrorf(cfg.Name, "unknown aggregator %q (valid: %s, %s, %s)",
			aggregator, AggregatorWeightedAverage, AggregatorCodeJudge, AggregatorLLMJudge)
	}

	childDC := dc.child()
	for _, childCfg := range cfg.Children {
		child, err := dc.Registry.Create(childCfg, childDC)
		if err != nil {
			return nil, err
		}
		e.children = append(e.children, compositeChild{name: childCfg.Name, ev: child})
	}

	return e, nil
}

func hasChild(children []EvaluatorConfig, name string) bool {
	for i := range children {
		if children[i].Name == name {
			return true
		}
	}
	return false
}

func (e *compositeEvaluator) Kind() string { return TypeComposite }

// childOutcome is one child's tagged result.
type childOutcome struct {
	name  string
	kind  string
	score Score
}

func (e *compositeEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	// All children dispatch together; a failing child is converted to a
	// zero-score result and never aborts siblings.
	results := make(chan childOutcome, len(e.children))
	var wg sync.WaitGroup
	wg.Add(len(e.children))

	for _, child := range e.children {
		go func(child compositeChild) {
			defer wg.Done()
			score, err := child.ev.Evaluate(ctx, ec)
			if err != nil {
				score = Recover(child.ev, err)
			}
			results <- childOutcome{name: child.name, kind: child.ev.Kind(), score: score}
		}(child)
	}
	wg.Wait()
	close(results)

	byName := make(map[string]Score, len(e.children))
	kinds := make(map[string]string, len(e.children))
	for outcome := range results {
		byName[outcome.name] = outcome.score
		kinds[outcome.name] = outcome.kind
	}

	var final Score
	switch e.aggregator {
	case AggregatorWeightedAverage:
		final = e.weightedAverage(byName)
	case AggregatorCodeJudge:
		final = e.codeJudgeAggregate(ctx, ec, byName)
	case AggregatorLLMJudge:
		final = e.llmJudgeAggregate(ctx, ec, byName)
	}

	if final.Details == nil {
		final.Details = make(map[string]any)
	}
	final.Details["children"] = childBreakdown(e.children, byName, kinds)
	return final, nil
}

// weightedAverage reduces child scores to sum(score*weight)/sum(weight).
// A child without a configured weight defaults to 1.0.
func (e *compositeEvaluator) weightedAverage(byName map[string]Score) Score {
	var weightedSum, weightSum float64
	var hits, misses []string

	for _, child := range e.children {
		score := byName[child.name]
		weight := 1.0
		if w, ok := e.weights[child.name]; ok {
			weight = w
		}
		weightedSum += score.Score * weight
		weightSum += weight

		hits = append(hits, fmt.Sprintf("%s scored %.2f (weight %.2f)", child.name, score.Score, weight))
		for _, miss := range score.Misses {
			misses = append(misses, child.name+": "+miss)
		}
	}

	if weightSum == 0 {
		return failScore("all child weights are zero")
	}
	return scored(weightedSum/weightSum, hits, misses)
}

// codeJudgeAggregate hands the child results (keyed by name) to an
// external script over the standard subprocess protocol and parses the
// script's stdout as the final score. A failing aggregator reports score
// 0 with the failure in misses, same as any child failure.
func (e *compositeEvaluator) codeJudgeAggregate(ctx context.Context, ec *Context, byName map[string]Score) Score {
	stdin, err := json.Marshal(byName)
	if err != nil {
		return failScore(fmt.Sprintf("aggregator: marshal child results: %v", err))
	}
	return runScript(ctx, e.script, stdin, e.timeout, ec.ScriptEnv, e.logger)
}

// llmJudgeAggregate substitutes the prompt template's placeholder with
// the JSON serialization of all child results and sends it to the judge
// target; the response is parsed with the ordinary judging schema.
func (e *compositeEvaluator) llmJudgeAggregate(ctx context.Context, ec *Context, byName map[string]Score) Score {
	serialized, err := json.Marshal(byName)
	if err != nil {
		return failScore(fmt.Sprintf("aggregator: marshal child results: %v", err))
	}

	prompt := strings.Replace(e.prompt, resultsPlaceholder, string(serialized), 1)
	score, err := invokeJudge(ctx, e.judge, prompt, caseID(ec), e.timeout)
	if err != nil {
		return failScore("aggregator: " + err.Error())
	}
	return score
}

// childBreakdown renders the per-child results for the Details payload,
// in configured child order.
func childBreakdown(children []compositeChild, byName map[string]Score, kinds map[string]string) []map[string]any {
	breakdown := make([]map[string]any, 0, len(children))
	for _, child := range children {
		score := byName[child.name]
		breakdown = append(breakdown, map[string]any{
			"name":    child.name,
			"type":    kinds[child.name],
			"score":   score.Score,
			"verdict": score.Verdict,
			"hits":    score.Hits,
			"misses":  score.Misses,
		})
	}
	return breakdown
}
