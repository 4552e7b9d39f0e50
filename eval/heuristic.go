package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Deterministic assertion evaluators: contains, not_contains, regex,
// equals, is_json. Each produces a binary score with one hit or one miss
// describing the assertion.

type containsEvaluator struct {
	value  string
	negate bool
}

func newContainsEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if cfg.Value == "" {
		return nil, configErrorf(cfg.Name, "contains requires a non-empty 'value'")
	}
	return &containsEvaluator{value: cfg.Value}, nil
}

func newNotContainsEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if cfg.Value == "" {
		return nil, configErrorf(cfg.Name, "not_contains requires a non-empty 'value'")
	}
	return &containsEvaluator{value: cfg.Value, negate: true}, nil
}

func (e *containsEvaluator) Kind() string {
	if e.negate {
		return TypeNotContains
	}
	return TypeContains
}

func (e *containsEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	found := strings.Contains(ec.Output, e.value)
	if found != e.negate {
		verb := "contains"
		if e.negate {
			verb = "does not contain"
		}
		return scored(1.0, []string{fmt.Sprintf("output %s %q", verb, e.value)}, nil), nil
	}
	verb := "does not contain"
	if e.negate {
		verb = "contains forbidden"
	}
	return scored(0.0, nil, []string{fmt.Sprintf("output %s %q", verb, e.value)}), nil
}

type regexEvaluator struct {
	pattern *regexp.Regexp
}

func newRegexEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if cfg.Value == "" {
		return nil, configErrorf(cfg.Name, "regex requires a non-empty 'value' pattern")
	}
	re, err := regexp.Compile(cfg.Value)
	if err != nil {
		return nil, configErrorf(cfg.Name, "invalid regex pattern %q: %v", cfg.Value, err)
	}
	return &regexEvaluator{pattern: re}, nil
}

func (e *regexEvaluator) Kind() string { return TypeRegex }

func (e *regexEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	if e.pattern.MatchString(ec.Output) {
		return scored(1.0, []string{fmt.Sprintf("output matches pattern %q", e.pattern.String())}, nil), nil
	}
	return scored(0.0, nil, []string{fmt.Sprintf("output does not match pattern %q", e.pattern.String())}), nil
}

type equalsEvaluator struct {
	expected string // empty means the case's Expected field
}

func newEqualsEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	return &equalsEvaluator{expected: cfg.Value}, nil
}

func (e *equalsEvaluator) Kind() string { return TypeEquals }

func (e *equalsEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	expected := e.expected
	if expected == "" && ec.Case != nil {
		expected = ec.Case.Expected
	}

	if strings.TrimSpace(ec.Output) == strings.TrimSpace(expected) {
		return scored(1.0, []string{"output equals expected value"}, nil), nil
	}
	return scored(0.0, nil, []string{fmt.Sprintf("output does not equal expected value %q", expected)}), nil
}

type isJSONEvaluator struct{}

func newIsJSONEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	return &isJSONEvaluator{}, nil
}

func (e *isJSONEvaluator) Kind() string { return TypeIsJSON }

func (e *isJSONEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	var v any
	if err := json.Unmarshal([]byte(extractJSON(ec.Output)), &v); err != nil {
		return scored(0.0, nil, []string{fmt.Sprintf("output is not valid JSON: %v", err)}), nil
	}
	return scored(1.0, []string{"output is valid JSON"}, nil), nil
}

// extractJSON strips markdown code fences and surrounding prose so that a
// fenced or chatty response still yields its embedded JSON document.
// Returns the input unchanged when no object or array brackets are found.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
