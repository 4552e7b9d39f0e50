package eval

import "fmt"

// Evaluator type tags for the built-in strategies.
const (
	TypeContains      = "contains"
	TypeNotContains   = "not_contains"
	TypeRegex         = "regex"
	TypeEquals        = "equals"
	TypeIsJSON        = "is_json"
	TypeFieldAccuracy = "field_accuracy"
	TypeBudget        = "budget"
	TypeTrajectory    = "tool_trajectory"
	TypeCode          = "code"
	TypeLLMJudge      = "llm_judge"
	TypeAgentJudge    = "agent_judge"
	TypeCEL           = "cel"
	TypeComposite     = "composite"
)

// Aggregator strategy names for composite evaluators.
const (
	AggregatorWeightedAverage = "weighted_average"
	AggregatorCodeJudge       = "code_judge"
	AggregatorLLMJudge        = "llm_judge"
)

// Trajectory matching modes.
const (
	ModeAnyOrder = "any_order"
	ModeInOrder  = "in_order"
	ModeExact    = "exact"
)

// EvaluatorConfig is the declarative description of one scoring strategy.
// Type discriminates which fields are meaningful; unknown types fail
// validation before any case executes.
type EvaluatorConfig struct {
	// Name identifies this evaluator within its case. Unique per case.
	Name string `json:"name" yaml:"name"`

	// Type selects the strategy: a built-in tag or a discovered script
	// type.
	Type string `json:"type" yaml:"type"`

	// Value is the needle/pattern/reference for the deterministic
	// assertions (contains, not_contains, regex, equals).
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Fields overrides the case's ExpectedFields for field_accuracy.
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Budget limits for the budget evaluator. Zero means unconstrained.
	MaxLatencyMs   int64   `json:"max_latency_ms,omitempty" yaml:"max_latency_ms,omitempty"`
	MaxCostUSD     float64 `json:"max_cost_usd,omitempty" yaml:"max_cost_usd,omitempty"`
	MaxTotalTokens int     `json:"max_total_tokens,omitempty" yaml:"max_total_tokens,omitempty"`

	// Mode selects the trajectory matching mode (any_order, in_order,
	// exact).
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Minimums maps tool name to minimum call count (any_order mode).
	Minimums map[string]int `json:"minimums,omitempty" yaml:"minimums,omitempty"`

	// Expected is the expected call sequence (in_order and exact modes;
	// optional argument constraints in any_order mode).
	Expected []ExpectedCall `json:"expected,omitempty" yaml:"expected,omitempty"`

	// Script is the argv vector for the code evaluator: explicit program
	// plus arguments, never a shell-interpreted string.
	Script []string `json:"script,omitempty" yaml:"script,omitempty"`

	// TimeoutMs bounds script execution and judge calls for this
	// evaluator. Zero uses the dispatch context's budget.
	TimeoutMs int64 `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`

	// Prompt is the rubric/prompt for llm_judge and agent_judge.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Judge optionally names the judge target; empty uses the default.
	Judge string `json:"judge,omitempty" yaml:"judge,omitempty"`

	// Expression is the CEL boolean expression for the cel evaluator.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// Composite fields.
	Children         []EvaluatorConfig  `json:"children,omitempty" yaml:"children,omitempty"`
	Aggregator       string             `json:"aggregator,omitempty" yaml:"aggregator,omitempty"`
	Weights          map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	AggregatorScript []string           `json:"aggregator_script,omitempty" yaml:"aggregator_script,omitempty"`
	AggregatorPrompt string             `json:"aggregator_prompt,omitempty" yaml:"aggregator_prompt,omitempty"`

	// Params is an arbitrary blob passed through verbatim to script
	// judges in the stdin payload.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// ExpectedCall is one entry in an expected tool-call sequence.
type ExpectedCall struct {
	// Tool is the expected tool name.
	Tool string `json:"tool" yaml:"tool"`

	// Args, when set, requires deep equality on the provided subset of
	// the matched call's input fields.
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`

	// MaxDurationMs is a per-call latency budget. Zero means no budget.
	// The assertion is skipped when the matched call recorded no
	// duration.
	MaxDurationMs int64 `json:"max_duration_ms,omitempty" yaml:"max_duration_ms,omitempty"`
}

// validateBasic checks the fields every evaluator config must carry.
func (c *EvaluatorConfig) validateBasic() error {
	if c.Name == "" {
		return &ConfigError{Message: "evaluator config is missing required field 'name'"}
	}
	if c.Type == "" {
		return configErrorf(c.Name, "missing required field 'type'")
	}
	return nil
}

// ValidateEvaluatorNames checks that evaluator names are unique within one
// case's evaluator list.
func ValidateEvaluatorNames(configs []EvaluatorConfig) error {
	seen := make(map[string]bool, len(configs))
	for i := range configs {
		if err := configs[i].validateBasic(); err != nil {
			return err
		}
		if seen[configs[i].Name] {
			return configErrorf(configs[i].Name, "duplicate evaluator name in case")
		}
		seen[configs[i].Name] = true
	}
	return nil
}

// String renders the config as "name (type)" for error messages.
func (c *EvaluatorConfig) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Type)
}
