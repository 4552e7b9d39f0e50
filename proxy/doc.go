// Package proxy runs a loopback-only HTTP bridge that lets external judge
// scripts invoke configured model targets without holding any provider
// credentials. The runner starts a Server, exports its address and bearer
// token to scripts through the environment, and shuts it down when the
// run completes.
//
// Scripts authenticate every request with the per-run bearer token. An
// optional call quota bounds how many target invocations a run's scripts
// may consume in total.
package proxy
