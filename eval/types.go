package eval

import "context"

// Case is one declared test scenario: an input for the target plus the
// evaluators that grade the response. Cases are immutable during a run.
type Case struct {
	// ID uniquely identifies the case within a suite.
	ID string `json:"id" yaml:"id"`

	// Input is the question or task sent to the target.
	Input string `json:"input" yaml:"input"`

	// SystemPrompt optionally overrides the target's system prompt.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// Target optionally names the target to invoke; empty means the
	// runner's default target.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Expected is the expected outcome or reference output, consumed by
	// assertion evaluators and passed to judges and scripts.
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`

	// ExpectedFields lists expected values for structured output,
	// consumed by the field_accuracy evaluator.
	ExpectedFields map[string]any `json:"expected_fields,omitempty" yaml:"expected_fields,omitempty"`

	// Evaluators configures the scoring strategies for this case.
	// Names must be unique within the list.
	Evaluators []EvaluatorConfig `json:"evaluators" yaml:"evaluators"`

	// Tags are labels for filtering.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Metadata stores additional case information (difficulty, author...).
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Message is one entry in a target's structured output transcript.
type Message struct {
	// Role is the speaker: "user", "assistant", "tool".
	Role string `json:"role" yaml:"role"`

	// Content is the textual content, if any.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// ToolCalls are the tool invocations recorded on this message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
}

// ToolCall is one recorded tool invocation in an agent's trace.
// It is produced by the target collaborator and consumed read-only.
type ToolCall struct {
	// Name is the tool name.
	Name string `json:"name" yaml:"name"`

	// Input is the argument object the tool was called with.
	Input map[string]any `json:"input,omitempty" yaml:"input,omitempty"`

	// Output is the tool's result, if recorded.
	Output any `json:"output,omitempty" yaml:"output,omitempty"`

	// ID optionally correlates the call with provider-side records.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// DurationMs is the recorded call duration in milliseconds.
	// Zero means no duration was recorded.
	DurationMs int64 `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

// TraceSummary is a precomputed view of an agent's tool activity, used by
// the trajectory evaluator when the full ordered call list is unavailable.
type TraceSummary struct {
	// Calls is the flattened ordered call list, when available.
	Calls []ToolCall `json:"calls,omitempty" yaml:"calls,omitempty"`

	// ToolCounts maps tool name to call count.
	ToolCounts map[string]int `json:"tool_counts,omitempty" yaml:"tool_counts,omitempty"`
}

// Usage carries token and cost accounting reported by a target.
type Usage struct {
	InputTokens  int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int     `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty" yaml:"cost_usd,omitempty"`
}

// TotalTokens returns the sum of input and output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// InvokeRequest is one attempt at invoking a target for a case.
type InvokeRequest struct {
	// Question is the case input.
	Question string `json:"question"`

	// SystemPrompt optionally overrides the target's system prompt.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// CaseID identifies the case this attempt belongs to.
	CaseID string `json:"case_id"`

	// Attempt is the 1-based attempt counter for retry bookkeeping.
	Attempt int `json:"attempt"`
}

// InvokeResponse is a target's answer to one invocation attempt.
type InvokeResponse struct {
	// Text is the candidate output text. If empty, the runner derives it
	// from the assistant messages in OutputMessages.
	Text string `json:"text,omitempty"`

	// OutputMessages is the structured transcript, including tool calls.
	OutputMessages []Message `json:"output_messages,omitempty"`

	// Usage optionally reports token/cost accounting for the attempt.
	Usage *Usage `json:"usage,omitempty"`
}

// Target is the external system under test (an LLM or agent), and also
// the shape of judge providers used by LLM-based evaluators. Targets must
// be safe for concurrent use by multiple workers.
type Target interface {
	// Name returns the target's configured name.
	Name() string

	// Invoke produces a candidate response for one attempt. It must
	// honor ctx cancellation; a deadline hit should surface as an error
	// wrapping context.DeadlineExceeded so the runner can classify the
	// attempt as retryable.
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)
}

// Context is everything an evaluator may need for one evaluation attempt.
// It is constructed per attempt and read-only to evaluators.
type Context struct {
	// Case is the scenario being evaluated.
	Case *Case

	// Output is the candidate text produced by the target.
	Output string

	// OutputMessages is the structured transcript, when the target
	// provided one.
	OutputMessages []Message

	// ToolCalls is the ordered tool-call trace extracted from
	// OutputMessages.
	ToolCalls []ToolCall

	// Summary is the precomputed trace fallback, when available.
	Summary *TraceSummary

	// Usage is the target-reported accounting for the graded attempt.
	Usage *Usage

	// LatencyMs is the wall-clock duration of the graded attempt.
	LatencyMs int64

	// ScriptEnv is extra environment (KEY=VALUE) exported to script
	// judges, e.g. the judge proxy address and token.
	ScriptEnv []string
}

// Trace returns the ordered tool-call list to grade: the full trace when
// present, otherwise the summary's flattened calls. The boolean reports
// whether any trace was available at all.
func (c *Context) Trace() ([]ToolCall, bool) {
	if len(c.ToolCalls) > 0 {
		return c.ToolCalls, true
	}
	if c.Summary != nil && len(c.Summary.Calls) > 0 {
		return c.Summary.Calls, true
	}
	return nil, false
}
