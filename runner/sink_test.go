package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgate/evalgate/eval"
)

func TestJSONLSink_EveryLineParsesIndependently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	sink, err := NewJSONLSink(path)
	require.NoError(t, err)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := sink.Write(CaseResult{
					RunID:     "run-1",
					CaseID:    fmt.Sprintf("w%d-c%d", w, i),
					Score:     0.5,
					Verdict:   eval.VerdictFail,
					Timestamp: time.Now().UTC(),
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var res CaseResult
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &res), "line must be a complete JSON object: %s", scanner.Text())
		assert.False(t, seen[res.CaseID], "duplicate line for %s", res.CaseID)
		seen[res.CaseID] = true
	}
	require.NoError(t, scanner.Err())
	assert.Len(t, seen, writers*perWriter)
}

func TestJSONLSink_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")

	for i := 0; i < 2; i++ {
		sink, err := NewJSONLSink(path)
		require.NoError(t, err)
		require.NoError(t, sink.Write(CaseResult{RunID: "run-1", CaseID: fmt.Sprintf("c%d", i)}))
		require.NoError(t, sink.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "c0")
	assert.Contains(t, string(data), "c1")
}

func TestMemorySink_CopiesResults(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Write(CaseResult{CaseID: "c1"}))

	got := sink.Results()
	require.Len(t, got, 1)

	got[0].CaseID = "mutated"
	assert.Equal(t, "c1", sink.Results()[0].CaseID)
}
