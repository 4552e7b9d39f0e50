package eval

import "context"

// Evaluator is a pluggable scoring strategy: given an evaluation context,
// produce one Score. Implementations are instantiated once per run by a
// registry factory and must be stateless or internally read-only so they
// are safe for concurrent reuse across workers.
//
// An error returned by Evaluate is recovered at the evaluator boundary:
// the caller (runner or composite parent) converts it to a zero score with
// the error message in Misses. Errors never propagate past the evaluator
// that produced them.
type Evaluator interface {
	// Kind returns the registered type tag, e.g. "tool_trajectory".
	Kind() string

	// Evaluate scores the candidate response described by ec.
	Evaluate(ctx context.Context, ec *Context) (Score, error)
}

// Recover converts an evaluator failure into the zero-score result the
// propagation policy mandates. It is the single place evaluator errors are
// absorbed; callers use the returned Score and drop the error.
func Recover(ev Evaluator, err error) Score {
	return failScore("evaluator " + ev.Kind() + " failed: " + err.Error())
}
