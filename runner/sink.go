package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ResultSink receives case results incrementally as cases complete.
// Implementations must serialize concurrent writes internally; the runner
// calls Write from every worker.
type ResultSink interface {
	// Write appends one case result.
	Write(result CaseResult) error

	// Close flushes buffered data and releases resources.
	Close() error
}

// JSONLSink writes one JSON object per line to a file, guarded by a
// single run-scoped lock so that every line is independently parsable
// even under concurrent writers.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONLSink opens (appending, creating if needed) a JSONL results file.
func NewJSONLSink(path string) (*JSONLSink, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results file %s: %w", path, err)
	}
	return &JSONLSink{file: file}, nil
}

// Write appends one result as a single JSON line and syncs, so a result
// is durable as soon as its case completes.
func (s *JSONLSink) Write(result CaseResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal case result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write case result: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("flush results file: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("flush results file before close: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close results file: %w", err)
	}
	return nil
}

// MemorySink collects results in memory, mainly for tests and for callers
// that post-process results themselves.
type MemorySink struct {
	mu      sync.Mutex
	results []CaseResult
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends the result under the sink's lock.
func (s *MemorySink) Write(result CaseResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Close is a no-op.
func (s *MemorySink) Close() error { return nil }

// Results returns a copy of the collected results.
func (s *MemorySink) Results() []CaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CaseResult{}, s.results...)
}
