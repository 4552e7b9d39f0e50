// Package store persists run baselines so successive evaluation runs can
// be compared case by case. A baseline is the per-case score snapshot of
// a run; comparing a fresh run against the stored baseline surfaces
// regressions and improvements before they reach a release.
//
// The default backend is Redis, keyed per suite, so baselines are shared
// across machines and CI jobs.
package store
