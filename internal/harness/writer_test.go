package harness

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncWriter_AppendsLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := NewAsyncWriter(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write(`{"a":1}`))
	require.NoError(t, w.Write(`{"a":2}`))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, lines)
}

func TestAsyncWriter_TruncatesExistingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("stale\ndata\n"), 0o644))

	w, err := NewAsyncWriter(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write("fresh"))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", string(b))
}

func TestAsyncWriter_ConcurrentWritesAreSerialized(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := NewAsyncWriter(path)
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Write("line")
		}()
	}
	wg.Wait()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	require.Len(t, lines, 20)
	for _, l := range lines {
		assert.Equal(t, "line", l, "no interleaving/corruption expected")
	}
}
