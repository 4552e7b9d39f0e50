// Package runner drives evaluation suites: it resolves a target per case,
// invokes it with retry-on-timeout, dispatches the case's evaluators
// through an eval.Registry, and appends each case result to an output
// sink as soon as the case's pipeline completes.
//
// Cases are dispatched from a shared queue to a fixed pool of workers, so
// a worker that finishes an easy case immediately starts the next one.
// The only resource mutated by more than one worker is the output sink,
// which serializes appends behind its own lock. Run-level summary
// statistics are computed strictly after all cases finish.
package runner
