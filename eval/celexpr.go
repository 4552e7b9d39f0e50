package eval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
)

// celEvaluator compiles a CEL boolean expression once at configuration
// time and scores 1.0 when it evaluates to true. The expression sees:
//
//	output   string  the candidate text
//	expected string  the case's expected output
//	json     dyn     the candidate parsed as JSON (null when unparsable)
//
// Example: `json.status == "ok" && "refund" in json.actions`.
type celEvaluator struct {
	name    string
	source  string
	program cel.Program
}

func newCELEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if cfg.Expression == "" {
		return nil, configErrorf(cfg.Name, "cel requires a non-empty 'expression'")
	}

	env, err := cel.NewEnv(
		cel.Variable("output", cel.StringType),
		cel.Variable("expected", cel.StringType),
		cel.Variable("json", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, configErrorf(cfg.Name, "invalid CEL expression: %v", issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, configErrorf(cfg.Name, "CEL expression must evaluate to bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, configErrorf(cfg.Name, "compile CEL expression: %v", err)
	}

	return &celEvaluator{name: cfg.Name, source: cfg.Expression, program: program}, nil
}

func (e *celEvaluator) Kind() string { return TypeCEL }

func (e *celEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	var parsed any
	if err := json.Unmarshal([]byte(extractJSON(ec.Output)), &parsed); err != nil {
		parsed = nil
	}

	expected := ""
	if ec.Case != nil {
		expected = ec.Case.Expected
	}

	out, _, err := e.program.Eval(map[string]any{
		"output":   ec.Output,
		"expected": expected,
		"json":     parsed,
	})
	if err != nil {
		return Score{}, fmt.Errorf("CEL evaluation failed: %w", err)
	}

	pass, ok := out.Value().(bool)
	if !ok {
		return Score{}, fmt.Errorf("CEL expression returned %T, want bool", out.Value())
	}

	if pass {
		return scored(1.0, []string{fmt.Sprintf("expression %q is true", e.source)}, nil), nil
	}
	return scored(0.0, nil, []string{fmt.Sprintf("expression %q is false", e.source)}), nil
}
