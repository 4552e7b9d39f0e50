// Package evalgate is an evaluation harness for LLM applications and AI
// agents. It runs declarative suites of test cases against one or more
// targets, grades each response with pluggable evaluators, and reports
// per-case scores plus run-level statistics.
//
// # Core Concepts
//
//   - Suite: a YAML or JSON file of cases, each naming its evaluators
//   - Target: the system under test, invoked once per case (with
//     retry on timeout)
//   - Evaluator: a scoring strategy producing a score in [0,1] with a
//     pass/borderline/fail verdict; built-ins range from deterministic
//     assertions to LLM judges, tool-trajectory matching, and composites
//   - Judge script: a user-supplied executable discovered from a
//     .evalgate/judges directory, spoken to over a JSON stdin/stdout
//     protocol
//
// # Getting Started
//
// The root package ties the pieces together:
//
//	report, err := evalgate.RunSuite(ctx, "suites/billing.yaml",
//	    evalgate.WithTarget("assistant", myTarget),
//	    evalgate.WithJudge(judgeTarget),
//	    evalgate.WithWorkers(4),
//	    evalgate.WithResultsFile("results.jsonl"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("mean score %.2f (%d/%d passed)\n",
//	    report.Summary.Mean, report.Summary.Passed, report.Summary.Cases)
//
// The eval, runner, proxy, and store packages expose the underlying
// layers for callers that need finer control.
package evalgate
