package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// judgeSystemPrompt instructs a judge target to answer with the standard
// score schema.
const judgeSystemPrompt = `You are an expert evaluation judge for AI responses. Assess the candidate response against the rubric.

Respond with valid JSON only, in this format:
{"score": <float between 0.0 and 1.0>, "hits": ["<satisfied criteria>"], "misses": ["<failed criteria>"], "reasoning": "<explanation>"}

Score 1.0 means the rubric is fully satisfied, 0.0 means complete failure.`

// judgeResponse is the JSON schema every LLM-based judgment is parsed
// with, for case judges and composite llm_judge aggregators alike.
type judgeResponse struct {
	Score     *float64 `json:"score"`
	Hits      []string `json:"hits"`
	Misses    []string `json:"misses"`
	Reasoning string   `json:"reasoning"`
}

// llmJudgeEvaluator sends the candidate output and a rubric to a judge
// target and parses the standard score schema out of the reply.
type llmJudgeEvaluator struct {
	name    string
	prompt  string
	judge   Target
	timeout time.Duration
}

func newLLMJudgeEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if cfg.Prompt == "" {
		return nil, configErrorf(cfg.Name, "llm_judge requires a non-empty 'prompt' rubric")
	}
	judge, err := dc.judgeFor(&cfg)
	if err != nil {
		return nil, err
	}
	return &llmJudgeEvaluator{
		name:    cfg.Name,
		prompt:  cfg.Prompt,
		judge:   judge,
		timeout: dc.timeoutFor(&cfg),
	}, nil
}

func (e *llmJudgeEvaluator) Kind() string { return TypeLLMJudge }

func (e *llmJudgeEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	var sb strings.Builder
	if ec.Case != nil && ec.Case.Input != "" {
		fmt.Fprintf(&sb, "Question:\n%s\n\n", ec.Case.Input)
	}
	fmt.Fprintf(&sb, "Candidate response:\n%s\n\n", ec.Output)
	if ec.Case != nil && ec.Case.Expected != "" {
		fmt.Fprintf(&sb, "Expected outcome:\n%s\n\n", ec.Case.Expected)
	}
	fmt.Fprintf(&sb, "Rubric:\n%s\n", e.prompt)

	return invokeJudge(ctx, e.judge, sb.String(), caseID(ec), e.timeout)
}

// agentJudgeEvaluator is the llm_judge variant for agent targets: the
// judge sees the full message transcript and tool trace, not just the
// final text, so it can assess behaviour.
type agentJudgeEvaluator struct {
	name    string
	prompt  string
	judge   Target
	timeout time.Duration
}

func newAgentJudgeEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if cfg.Prompt == "" {
		return nil, configErrorf(cfg.Name, "agent_judge requires a non-empty 'prompt' rubric")
	}
	judge, err := dc.judgeFor(&cfg)
	if err != nil {
		return nil, err
	}
	return &agentJudgeEvaluator{
		name:    cfg.Name,
		prompt:  cfg.Prompt,
		judge:   judge,
		timeout: dc.timeoutFor(&cfg),
	}, nil
}

func (e *agentJudgeEvaluator) Kind() string { return TypeAgentJudge }

func (e *agentJudgeEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	var sb strings.Builder
	if ec.Case != nil && ec.Case.Input != "" {
		fmt.Fprintf(&sb, "Task:\n%s\n\n", ec.Case.Input)
	}

	if len(ec.OutputMessages) > 0 {
		sb.WriteString("Transcript:\n")
		for i, msg := range ec.OutputMessages {
			fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, msg.Role, msg.Content)
			for _, call := range msg.ToolCalls {
				args, _ := json.Marshal(call.Input)
				fmt.Fprintf(&sb, "   tool %s(%s)", call.Name, args)
				if call.DurationMs > 0 {
					fmt.Fprintf(&sb, " [%dms]", call.DurationMs)
				}
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	} else {
		fmt.Fprintf(&sb, "Final output:\n%s\n\n", ec.Output)
	}

	if ec.Case != nil && ec.Case.Expected != "" {
		fmt.Fprintf(&sb, "Expected outcome:\n%s\n\n", ec.Case.Expected)
	}
	fmt.Fprintf(&sb, "Rubric:\n%s\n", e.prompt)

	return invokeJudge(ctx, e.judge, sb.String(), caseID(ec), e.timeout)
}

// invokeJudge sends one judging prompt to a judge target and parses the
// standard schema from its reply. Judge failures surface as errors and are
// recovered at the evaluator boundary by the caller.
func invokeJudge(ctx context.Context, judge Target, prompt, caseID string, timeout time.Duration) (Score, error) {
	judgeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := judge.Invoke(judgeCtx, InvokeRequest{
		Question:     prompt,
		SystemPrompt: judgeSystemPrompt,
		CaseID:       caseID,
		Attempt:      1,
	})
	if err != nil {
		return Score{}, fmt.Errorf("judge invocation failed: %w", err)
	}

	text := resp.Text
	if text == "" {
		text = flattenAssistantText(resp.OutputMessages)
	}

	score, err := parseJudgeScore(text)
	if err != nil {
		return Score{}, err
	}
	score.RawRequest = prompt
	score.RawResponse = text
	return score, nil
}

// parseJudgeScore extracts the standard score schema from judge output,
// tolerating markdown fences and surrounding prose.
func parseJudgeScore(text string) (Score, error) {
	raw := extractJSON(text)

	var resp judgeResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Score{}, fmt.Errorf("judge response is not valid JSON: %w (response: %s)", err, tailString([]byte(text)))
	}
	if resp.Score == nil {
		return Score{}, fmt.Errorf("judge response is missing 'score' field (response: %s)", tailString([]byte(text)))
	}

	score := scored(*resp.Score, resp.Hits, resp.Misses)
	score.Reasoning = resp.Reasoning
	return score, nil
}

// flattenAssistantText joins the content of assistant messages, used when
// a target reports no flat text.
func flattenAssistantText(messages []Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == "assistant" && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func caseID(ec *Context) string {
	if ec.Case != nil {
		return ec.Case.ID
	}
	return ""
}
