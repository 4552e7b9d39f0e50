package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evalgate/evalgate/eval"
)

// Options configures a Runner. Zero values get sensible defaults.
type Options struct {
	// Workers is the bounded worker count. Default 1 (fully sequential).
	Workers int

	// MaxRetries is how many times a timed-out target invocation is
	// retried. Non-timeout invocation errors are never retried.
	MaxRetries int

	// Timeout bounds each target-invocation attempt. Default 60s.
	Timeout time.Duration

	// Registry resolves evaluator configs. Nil creates a fresh registry
	// with the built-ins.
	Registry *eval.Registry

	// Targets maps target name to implementation.
	Targets map[string]eval.Target

	// DefaultTarget names the target used by cases that don't pin one.
	// Defaults to the sole entry when Targets has exactly one.
	DefaultTarget string

	// Judge is the default judge target for LLM-based evaluators.
	Judge eval.Target

	// Sink receives case results incrementally. Nil uses a MemorySink.
	Sink ResultSink

	// ScriptEnv is extra environment (KEY=VALUE) exported to script
	// judges, typically the judge proxy address and token.
	ScriptEnv []string

	// Logger receives run diagnostics. Nil uses slog.Default.
	Logger *slog.Logger

	// OTel optionally enables tracing and metrics for the run.
	OTel OTelOptions
}

// Runner executes suites with bounded parallelism.
type Runner struct {
	opts     Options
	registry *eval.Registry
	logger   *slog.Logger
	inst     *instrumentation
}

// New creates a Runner. Target configuration errors (no targets, unknown
// default) surface here, before any suite runs.
func New(opts Options) (*Runner, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Registry == nil {
		opts.Registry = eval.NewRegistry()
	}
	if opts.Sink == nil {
		opts.Sink = NewMemorySink()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Targets) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}
	if opts.DefaultTarget == "" && len(opts.Targets) == 1 {
		for name := range opts.Targets {
			opts.DefaultTarget = name
		}
	}
	if opts.DefaultTarget != "" {
		if _, ok := opts.Targets[opts.DefaultTarget]; !ok {
			return nil, fmt.Errorf("default target %q is not among configured targets", opts.DefaultTarget)
		}
	}

	inst, err := newInstrumentation(opts.OTel)
	if err != nil {
		return nil, err
	}

	return &Runner{
		opts:     opts,
		registry: opts.Registry,
		logger:   opts.Logger,
		inst:     inst,
	}, nil
}

// Report is the outcome of one run: every case result plus the summary
// statistics computed after all cases finished.
type Report struct {
	RunID   string       `json:"run_id"`
	Suite   string       `json:"suite"`
	Results []CaseResult `json:"results"`
	Summary Summary      `json:"summary"`
}

// preparedCase pairs a case with its pre-instantiated evaluators.
type preparedCase struct {
	c      *eval.Case
	target eval.Target
	evals  []namedEvaluator
}

type namedEvaluator struct {
	name string
	typ  string
	ev   eval.Evaluator
}

// Run executes every case in the suite. Configuration errors (unknown
// evaluator types, malformed configs, unresolvable targets) surface
// before the first target invocation. The run itself always
// completes and emits a result for every case; individual failures are
// visible as score 0 with explanatory text.
func (r *Runner) Run(ctx context.Context, suite *eval.Suite) (*Report, error) {
	if err := suite.Validate(r.registry); err != nil {
		return nil, err
	}

	prepared, err := r.prepare(suite)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID, "suite", suite.Name)
	logger.Info("run starting", "cases", len(prepared), "workers", r.opts.Workers)
	started := time.Now()

	// Workers drain a shared queue so a fast worker immediately picks up
	// the next case instead of waiting on a batch.
	queue := make(chan int)
	results := make([]CaseResult, len(prepared))

	var wg sync.WaitGroup
	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			workerLogger := logger.With("worker", workerNum)
			for idx := range queue {
				result := r.runCase(ctx, runID, prepared[idx], workerLogger)
				results[idx] = result
				if err := r.opts.Sink.Write(result); err != nil {
					workerLogger.Error("failed to write case result", "case_id", result.CaseID, "error", err)
				}
				r.inst.recordCase(ctx, result)
			}
		}(w)
	}

	for idx := range prepared {
		queue <- idx
	}
	close(queue)
	wg.Wait()

	summary := Summarize(runID, suite.Name, results, time.Since(started))
	logger.Info("run complete",
		"cases", summary.Cases,
		"mean", summary.Mean,
		"passed", summary.Passed,
		"failed", summary.Failed,
		"duration_ms", summary.DurationMs)

	return &Report{
		RunID:   runID,
		Suite:   suite.Name,
		Results: results,
		Summary: summary,
	}, nil
}

// prepare resolves targets and instantiates every evaluator up front so
// configuration errors abort before any work begins.
func (r *Runner) prepare(suite *eval.Suite) ([]preparedCase, error) {
	dc := &eval.DispatchContext{
		Registry:    r.registry,
		Judge:       r.opts.Judge,
		Timeout:     r.opts.Timeout,
		Logger:      r.opts.Logger,
		TargetNames: r.targetNames(),
		ResolveTarget: func(name string) (eval.Target, bool) {
			t, ok := r.opts.Targets[name]
			return t, ok
		},
	}

	prepared := make([]preparedCase, 0, len(suite.Cases))
	for i := range suite.Cases {
		c := &suite.Cases[i]

		targetName := c.Target
		if targetName == "" {
			targetName = r.opts.DefaultTarget
		}
		target, ok := r.opts.Targets[targetName]
		if !ok {
			return nil, fmt.Errorf("case %q: unknown target %q", c.ID, targetName)
		}

		pc := preparedCase{c: c, target: target}
		for _, cfg := range c.Evaluators {
			ev, err := r.registry.Create(cfg, dc)
			if err != nil {
				return nil, fmt.Errorf("case %q: %w", c.ID, err)
			}
			pc.evals = append(pc.evals, namedEvaluator{name: cfg.Name, typ: cfg.Type, ev: ev})
		}
		prepared = append(prepared, pc)
	}
	return prepared, nil
}

func (r *Runner) targetNames() []string {
	names := make([]string, 0, len(r.opts.Targets))
	for name := range r.opts.Targets {
		names = append(names, name)
	}
	return names
}

// runCase executes one case's full pipeline: target invocation with
// retry-on-timeout, then all evaluators, then aggregation.
func (r *Runner) runCase(ctx context.Context, runID string, pc preparedCase, logger *slog.Logger) CaseResult {
	c := pc.c
	logger = logger.With("case_id", c.ID)

	resp, latency, attempts, err := r.invokeWithRetry(ctx, pc, logger)
	if err != nil {
		logger.Warn("case failed: target invocation error", "attempts", attempts, "error", err)
		return CaseResult{
			RunID:     runID,
			CaseID:    c.ID,
			Score:     0,
			Verdict:   eval.VerdictFail,
			Misses:    []string{"target invocation failed: " + err.Error()},
			Attempts:  attempts,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		}
	}

	ec := buildContext(c, resp, latency, r.opts.ScriptEnv)

	// Every evaluator runs; a failure degrades only its own score.
	evaluations := make([]EvaluatorResult, 0, len(pc.evals))
	var total float64
	for _, ne := range pc.evals {
		score, evalErr := ne.ev.Evaluate(ctx, ec)
		if evalErr != nil {
			logger.Warn("evaluator failed", "evaluator", ne.name, "error", evalErr)
			score = eval.Recover(ne.ev, evalErr)
		}
		total += score.Score
		evaluations = append(evaluations, EvaluatorResult{
			Name:      ne.name,
			Type:      ne.typ,
			Score:     score.Score,
			Verdict:   score.Verdict,
			Hits:      score.Hits,
			Misses:    score.Misses,
			Reasoning: score.Reasoning,
			Details:   score.Details,
		})
	}

	mean := total / float64(len(evaluations))
	result := CaseResult{
		RunID:     runID,
		CaseID:    c.ID,
		Score:     mean,
		Verdict:   eval.VerdictForScore(mean),
		Attempts:  attempts,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}

	if len(evaluations) == 1 {
		result.Hits = evaluations[0].Hits
		result.Misses = evaluations[0].Misses
	} else {
		result.Evaluations = evaluations
		for _, ev := range evaluations {
			for _, hit := range ev.Hits {
				result.Hits = append(result.Hits, ev.Name+": "+hit)
			}
			for _, miss := range ev.Misses {
				result.Misses = append(result.Misses, ev.Name+": "+miss)
			}
		}
	}

	logger.Info("case complete", "score", result.Score, "verdict", result.Verdict, "attempts", attempts)
	return result
}

// invokeWithRetry runs target attempts until success, a non-timeout
// error, or retry exhaustion. Each attempt carries its own timeout; only
// timeouts are retryable.
func (r *Runner) invokeWithRetry(ctx context.Context, pc preparedCase, logger *slog.Logger) (*eval.InvokeResponse, time.Duration, int, error) {
	maxAttempts := r.opts.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		start := time.Now()
		resp, err := pc.target.Invoke(attemptCtx, eval.InvokeRequest{
			Question:     pc.c.Input,
			SystemPrompt: pc.c.SystemPrompt,
			CaseID:       pc.c.ID,
			Attempt:      attempt,
		})
		latency := time.Since(start)
		cancel()

		if err == nil {
			return resp, latency, attempt, nil
		}
		lastErr = err

		if !isTimeout(err) {
			return nil, 0, attempt, err
		}
		if attempt < maxAttempts {
			logger.Warn("target invocation timed out; retrying", "attempt", attempt, "max_attempts", maxAttempts)
		}
	}
	return nil, 0, maxAttempts, fmt.Errorf("timed out after %d attempts: %w", maxAttempts, lastErr)
}

// isTimeout classifies an invocation error as retryable: a deadline hit
// anywhere in the chain, or a net.Error-style Timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

// buildContext assembles the read-only evaluation context for one graded
// attempt.
func buildContext(c *eval.Case, resp *eval.InvokeResponse, latency time.Duration, scriptEnv []string) *eval.Context {
	ec := &eval.Context{
		Case:      c,
		LatencyMs: latency.Milliseconds(),
		ScriptEnv: scriptEnv,
	}
	if resp == nil {
		return ec
	}

	ec.OutputMessages = resp.OutputMessages
	ec.Usage = resp.Usage
	ec.Output = resp.Text
	if ec.Output == "" {
		ec.Output = flattenText(resp.OutputMessages)
	}
	for _, msg := range resp.OutputMessages {
		ec.ToolCalls = append(ec.ToolCalls, msg.ToolCalls...)
	}
	return ec
}

func flattenText(messages []eval.Message) string {
	var out string
	for _, msg := range messages {
		if msg.Role == "assistant" && msg.Content != "" {
			if out != "" {
				out += "\n"
			}
			out += msg.Content
		}
	}
	return out
}
