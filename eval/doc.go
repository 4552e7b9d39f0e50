// Package eval provides the evaluation core of evalgate: declarative test
// cases, a pluggable evaluator registry, and the built-in scoring
// strategies used to grade target responses.
//
// An evaluator is any implementation of the Evaluator interface. Built-in
// evaluators (deterministic assertions, field accuracy, budgets, tool
// trajectories, LLM and agent judges, external script judges, CEL
// expressions, and recursive composites) are registered on every Registry
// created with NewRegistry. User-supplied scoring scripts discovered under
// a .evalgate/judges directory are registered as additional named types
// via DiscoverScripts.
//
// The runner package drives cases through a Registry; this package never
// schedules target invocations itself.
package eval
