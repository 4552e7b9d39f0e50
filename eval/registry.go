package eval

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxCompositeDepth bounds composite nesting so a pathological or cyclic
// configuration fails creation instead of exhausting the stack.
const maxCompositeDepth = 32

// Factory builds an evaluator from its config and the shared dispatch
// context. Factories must perform all configuration validation so that
// bad configs fail before any case executes.
type Factory func(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error)

// DispatchContext carries the shared, reusable resources factories need:
// judge resolution, available target names, a timeout budget, and a
// back-reference to the registry so composite evaluators can instantiate
// children of arbitrary type.
type DispatchContext struct {
	// Registry resolves child evaluator types (composites recurse
	// through it).
	Registry *Registry

	// Judge is the default judge target for LLM-based evaluators.
	Judge Target

	// ResolveTarget resolves a named target, for configs that pin a
	// specific judge. May be nil when only the default judge exists.
	ResolveTarget func(name string) (Target, bool)

	// TargetNames lists the available target names, for error messages.
	TargetNames []string

	// Timeout is the default budget for script execution and judge
	// calls when a config does not set its own.
	Timeout time.Duration

	// Logger receives evaluator diagnostics (skipped latency
	// assertions, dropped malformed details). Nil uses slog.Default.
	Logger *slog.Logger

	// depth tracks composite nesting for the cycle guard.
	depth int
}

// child returns a copy of the dispatch context one composite level deeper.
func (dc *DispatchContext) child() *DispatchContext {
	c := *dc
	c.depth++
	return &c
}

func (dc *DispatchContext) logger() *slog.Logger {
	if dc.Logger != nil {
		return dc.Logger
	}
	return slog.Default()
}

// timeoutFor returns the effective timeout for one evaluator config.
func (dc *DispatchContext) timeoutFor(cfg *EvaluatorConfig) time.Duration {
	if cfg.TimeoutMs > 0 {
		return time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	if dc.Timeout > 0 {
		return dc.Timeout
	}
	return 60 * time.Second
}

// judgeFor resolves the judge target for a config: the pinned name when
// set, otherwise the default judge. Unresolvable judges are configuration
// errors.
func (dc *DispatchContext) judgeFor(cfg *EvaluatorConfig) (Target, error) {
	if cfg.Judge != "" {
		if dc.ResolveTarget != nil {
			if t, ok := dc.ResolveTarget(cfg.Judge); ok {
				return t, nil
			}
		}
		return nil, configErrorf(cfg.Name, "unknown judge target %q (available: %s)",
			cfg.Judge, strings.Join(dc.TargetNames, ", "))
	}
	if dc.Judge == nil {
		return nil, configErrorf(cfg.Name, "type %q requires a judge target but none is configured", cfg.Type)
	}
	return dc.Judge, nil
}

// Registry maps evaluator type names to factories. Built-ins are
// registered by NewRegistry; discovered script types are added by
// DiscoverScripts. The registry is read-only after startup and safe for
// concurrent use by any number of workers.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	builtin   map[string]bool
}

// NewRegistry creates a registry with all built-in evaluator types
// registered.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		builtin:   make(map[string]bool),
	}
	r.registerBuiltins()
	return r
}

// Register adds a factory for a type name. Registering an existing type is
// a configuration error.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return configErrorf("", "evaluator type %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Get returns the factory for a type name, if registered.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// Has reports whether a type name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// IsBuiltin reports whether a type name is one of the built-in strategies.
// Built-in names are never overridden by discovered scripts.
func (r *Registry) IsBuiltin(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builtin[name]
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create instantiates an evaluator for the config. An unregistered type is
// a fail-fast configuration error naming the unknown type and the list of
// registered types.
func (r *Registry) Create(cfg EvaluatorConfig, dc *DispatchContext) (Evaluator, error) {
	if err := cfg.validateBasic(); err != nil {
		return nil, err
	}

	factory, ok := r.Get(cfg.Type)
	if !ok {
		return nil, configErrorf(cfg.Name, "unknown evaluator type %q (registered types: %s)",
			cfg.Type, strings.Join(r.Types(), ", "))
	}

	if dc == nil {
		dc = &DispatchContext{}
	}
	if dc.Registry == nil {
		dc.Registry = r
	}
	return factory(cfg, dc)
}

// registerBuiltins wires the built-in strategy factories. Called once from
// NewRegistry; names registered here can never be shadowed by discovery.
func (r *Registry) registerBuiltins() {
	builtins := map[string]Factory{
		TypeContains:      newContainsEvaluator,
		TypeNotContains:   newNotContainsEvaluator,
		TypeRegex:         newRegexEvaluator,
		TypeEquals:        newEqualsEvaluator,
		TypeIsJSON:        newIsJSONEvaluator,
		TypeFieldAccuracy: newFieldAccuracyEvaluator,
		TypeBudget:        newBudgetEvaluator,
		TypeTrajectory:    newTrajectoryEvaluator,
		TypeCode:          newCodeEvaluator,
		TypeLLMJudge:      newLLMJudgeEvaluator,
		TypeAgentJudge:    newAgentJudgeEvaluator,
		TypeCEL:           newCELEvaluator,
		TypeComposite:     newCompositeEvaluator,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, factory := range builtins {
		r.factories[name] = factory
		r.builtin[name] = true
	}
}
