package evalgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/evalgate/evalgate/eval"
	"github.com/evalgate/evalgate/proxy"
	"github.com/evalgate/evalgate/runner"
	"github.com/evalgate/evalgate/store"
)

// config collects the options applied to one RunSuite call.
type config struct {
	targets       map[string]eval.Target
	defaultTarget string
	judge         eval.Target
	workers       int
	maxRetries    int
	timeout       time.Duration
	tags          []string
	resultsFile   string
	logger        *slog.Logger
	otel          runner.OTelOptions
	proxyEnabled  bool
	proxyMaxCalls int64
}

// Option configures RunSuite.
type Option func(*config)

// WithTarget registers a named target. The first registered target is the
// default for cases that don't pin one.
func WithTarget(name string, target eval.Target) Option {
	return func(c *config) {
		if c.targets == nil {
			c.targets = make(map[string]eval.Target)
		}
		if len(c.targets) == 0 {
			c.defaultTarget = name
		}
		c.targets[name] = target
	}
}

// WithDefaultTarget overrides which target unpinned cases use.
func WithDefaultTarget(name string) Option {
	return func(c *config) { c.defaultTarget = name }
}

// WithJudge sets the default judge target for llm_judge, agent_judge and
// llm_judge composite aggregators.
func WithJudge(judge eval.Target) Option {
	return func(c *config) { c.judge = judge }
}

// WithWorkers sets the bounded worker count. Default 1.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithMaxRetries sets how many timed-out invocations are retried.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithTimeout bounds each target-invocation attempt. Default 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithTags filters the suite to cases carrying all of the given tags.
func WithTags(tags ...string) Option {
	return func(c *config) { c.tags = tags }
}

// WithResultsFile appends each case result to a JSONL file as it
// completes.
func WithResultsFile(path string) Option {
	return func(c *config) { c.resultsFile = path }
}

// WithLogger sets the run logger. Default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithOTel enables OpenTelemetry tracing and metrics for the run.
func WithOTel(opts runner.OTelOptions) Option {
	return func(c *config) { c.otel = opts }
}

// WithJudgeProxy starts a loopback judge proxy for the run and exports
// its address and token to judge scripts. maxCalls caps proxied target
// invocations; zero means unlimited.
func WithJudgeProxy(maxCalls int64) Option {
	return func(c *config) {
		c.proxyEnabled = true
		c.proxyMaxCalls = maxCalls
	}
}

// RunSuite loads the suite at path, discovers judge scripts in
// .evalgate/judges directories from the suite's directory upward, runs
// every (tag-filtered) case, and returns the report. Configuration
// problems in the suite or options fail before any case executes.
func RunSuite(ctx context.Context, path string, opts ...Option) (*runner.Report, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	suite, err := eval.LoadSuite(path)
	if err != nil {
		return nil, err
	}
	if len(cfg.tags) > 0 {
		suite = suite.FilterByTags(cfg.tags)
		if len(suite.Cases) == 0 {
			return nil, fmt.Errorf("no cases match tags %v", cfg.tags)
		}
	}

	registry := eval.NewRegistry()
	if err := eval.DiscoverScripts(registry, filepath.Dir(path), cfg.logger); err != nil {
		return nil, err
	}

	var scriptEnv []string
	if cfg.proxyEnabled {
		judgeProxy, err := proxy.New(proxy.Options{
			Targets:       cfg.targets,
			DefaultTarget: cfg.defaultTarget,
			MaxCalls:      cfg.proxyMaxCalls,
			Timeout:       cfg.timeout,
			Logger:        cfg.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("start judge proxy: %w", err)
		}
		go func() { _ = judgeProxy.Serve() }()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = judgeProxy.Shutdown(shutdownCtx)
		}()
		scriptEnv = judgeProxy.Env()
	}

	var sink runner.ResultSink
	if cfg.resultsFile != "" {
		jsonlSink, err := runner.NewJSONLSink(cfg.resultsFile)
		if err != nil {
			return nil, err
		}
		defer jsonlSink.Close()
		sink = jsonlSink
	}

	r, err := runner.New(runner.Options{
		Workers:       cfg.workers,
		MaxRetries:    cfg.maxRetries,
		Timeout:       cfg.timeout,
		Registry:      registry,
		Targets:       cfg.targets,
		DefaultTarget: cfg.defaultTarget,
		Judge:         cfg.judge,
		Sink:          sink,
		ScriptEnv:     scriptEnv,
		Logger:        cfg.logger,
		OTel:          cfg.otel,
	})
	if err != nil {
		return nil, err
	}

	return r.Run(ctx, suite)
}

// Gate compares a run against the stored baseline for its suite and
// returns the comparison plus an error when any case regressed by more
// than epsilon. A missing baseline is not a failure; the comparison is
// returned with every case listed as new.
func Gate(ctx context.Context, st store.BaselineStore, report *runner.Report, epsilon float64) (*store.Comparison, error) {
	current := make(map[string]float64, len(report.Results))
	for _, res := range report.Results {
		current[res.CaseID] = res.Score
	}

	baseline, err := st.Load(ctx, report.Suite)
	if errors.Is(err, store.ErrNotFound) {
		baseline = &store.Baseline{Suite: report.Suite, Scores: map[string]float64{}}
	} else if err != nil {
		return nil, err
	}

	cmp := store.Compare(baseline, current, epsilon)
	if cmp.HasRegressions() {
		return &cmp, fmt.Errorf("%d case(s) regressed against baseline %s", len(cmp.Regressions), baseline.RunID)
	}
	return &cmp, nil
}
