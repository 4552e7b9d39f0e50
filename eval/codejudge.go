package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// stderrTailBytes bounds how much captured stderr is embedded in a miss
// message for a failing script.
const stderrTailBytes = 2048

// codeEvaluator runs a user-supplied scoring program. The contract is one
// JSON object in (the evaluation context on stdin, which may exceed 1 MB)
// and one JSON object out ({score, hits?, misses?, reasoning?, details?}
// on stdout). The program is an argv vector, never a shell-interpreted
// string, so paths and JSON can never be reinterpreted as shell syntax.
type codeEvaluator struct {
	name    string
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
}

func newCodeEvaluator(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if len(cfg.Script) == 0 {
		return nil, configErrorf(cfg.Name, "code requires a non-empty 'script' argv vector")
	}
	return &codeEvaluator{
		name:    cfg.Name,
		argv:    cfg.Script,
		timeout: dc.timeoutFor(&cfg),
		logger:  dc.logger(),
	}, nil
}

// newScriptFactory builds the factory registered for a discovered script:
// every config of that type produces a code evaluator bound to the file.
func newScriptFactory(path string) Factory {
	return func(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
		return &codeEvaluator{
			name:    cfg.Name,
			argv:    []string{path},
			timeout: dc.timeoutFor(&cfg),
			logger:  dc.logger(),
		}, nil
	}
}

func (e *codeEvaluator) Kind() string { return TypeCode }

// scriptPayload is the stdin wire format for scoring scripts.
type scriptPayload struct {
	CaseID         string         `json:"case_id,omitempty"`
	Question       string         `json:"question,omitempty"`
	Output         string         `json:"output"`
	Expected       string         `json:"expected,omitempty"`
	OutputMessages []Message      `json:"output_messages,omitempty"`
	ToolCalls      []ToolCall     `json:"tool_calls,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
}

// scriptResult is the stdout wire format for scoring scripts.
type scriptResult struct {
	Score     *float64        `json:"score"`
	Hits      []string        `json:"hits"`
	Misses    []string        `json:"misses"`
	Reasoning string          `json:"reasoning"`
	Details   json.RawMessage `json:"details"`
}

func (e *codeEvaluator) Evaluate(ctx context.Context, ec *Context) (Score, error) {
	payload := scriptPayload{
		Output:         ec.Output,
		OutputMessages: ec.OutputMessages,
		ToolCalls:      ec.ToolCalls,
	}
	if ec.Case != nil {
		payload.CaseID = ec.Case.ID
		payload.Question = ec.Case.Input
		payload.Expected = ec.Case.Expected
		payload.Config = paramsFor(ec.Case.Evaluators, e.name)
	}

	stdin, err := json.Marshal(payload)
	if err != nil {
		return Score{}, fmt.Errorf("marshal script payload: %w", err)
	}

	return runScript(ctx, e.argv, stdin, e.timeout, ec.ScriptEnv, e.logger), nil
}

// paramsFor finds the pass-through params blob for the named evaluator.
func paramsFor(configs []EvaluatorConfig, name string) map[string]any {
	for i := range configs {
		if configs[i].Name == name {
			return configs[i].Params
		}
	}
	return nil
}

// runScript executes one scoring subprocess to completion or timeout and
// converts the outcome to a Score. Script failures (non-zero exit,
// unparsable stdout, timeout) become zero scores with diagnostics in
// misses; they never surface as errors. stdout and stderr are fully
// buffered since the contract is one JSON object in, one out.
func runScript(ctx context.Context, argv []string, stdin []byte, timeout time.Duration, extraEnv []string, logger *slog.Logger) Score {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	err := cmd.Run()

	// A deadline hit force-kills the process; report it distinctly from
	// an ordinary non-zero exit.
	if runCtx.Err() == context.DeadlineExceeded {
		miss := fmt.Sprintf("script %s timed out after %s and was killed", argv[0], timeout)
		if tail := tailString(stderr.Bytes()); tail != "" {
			miss += "; stderr: " + tail
		}
		return failScore(miss)
	}

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		miss := fmt.Sprintf("script %s exited with code %d", argv[0], exitCode)
		if tail := tailString(stderr.Bytes()); tail != "" {
			miss += ": " + tail
		} else {
			miss += ": " + err.Error()
		}
		return failScore(miss)
	}

	return parseScriptResult(stdout.Bytes(), stderr.Bytes(), logger)
}

// parseScriptResult interprets a successful script's stdout. Malformed
// output yields score 0 with the raw stdout/stderr captured; malformed
// optional fields are dropped rather than failing the evaluation.
func parseScriptResult(stdout, stderr []byte, logger *slog.Logger) Score {
	var res scriptResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &res); err != nil || res.Score == nil {
		miss := fmt.Sprintf("script stdout is not a valid result object: %s", tailString(stdout))
		if err != nil {
			miss = fmt.Sprintf("script stdout is not valid JSON (%v): %s", err, tailString(stdout))
		}
		if tail := tailString(stderr); tail != "" {
			miss += "; stderr: " + tail
		}
		return failScore(miss)
	}

	score := scored(*res.Score, res.Hits, res.Misses)
	score.Reasoning = res.Reasoning

	if len(res.Details) > 0 {
		var details map[string]any
		if err := json.Unmarshal(res.Details, &details); err != nil {
			// details must be a JSON object; anything else is dropped.
			logger.Debug("dropping malformed script details", "error", err)
		} else {
			score.Details = details
		}
	}
	return score
}

// tailString returns the trailing portion of captured process output,
// trimmed for embedding in a miss message.
func tailString(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return string(b)
}
