package codex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptRecordsPrefixedLines(t *testing.T) {
	tr := NewTranscript(t.TempDir())
	require.False(t, tr.Degraded())
	require.NotEmpty(t, tr.Path())

	tr.Record("stdin", `{"method":"initialize"}`)
	tr.Record("stdout", `{"id":0,"result":{}}`)
	tr.Record("stderr", "warning: something")
	require.NoError(t, tr.Close())

	data, err := os.ReadFile(tr.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `stdin: {"method":"initialize"}`, lines[0])
	assert.Equal(t, `stdout: {"id":0,"result":{}}`, lines[1])
	assert.Equal(t, "stderr: warning: something", lines[2])
}

func TestTranscriptNamesAreUnique(t *testing.T) {
	dir := t.TempDir()
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		tr := NewTranscript(dir)
		require.False(t, tr.Degraded())
		assert.False(t, seen[tr.Path()], "duplicate transcript name %s", tr.Path())
		seen[tr.Path()] = true
		base := filepath.Base(tr.Path())
		assert.True(t, strings.HasPrefix(base, "codex-"))
		assert.True(t, strings.HasSuffix(base, ".log"))
		require.NoError(t, tr.Close())
	}
}

func TestTranscriptConcurrentWritesStayWhole(t *testing.T) {
	tr := NewTranscript(t.TempDir())
	require.False(t, tr.Degraded())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tr.Record("stdout", fmt.Sprintf("writer-%d-line-%d", w, i))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, tr.Close())

	data, err := os.ReadFile(tr.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 200)
	for _, line := range lines {
		assert.Regexp(t, `^stdout: writer-\d-line-\d+$`, line)
	}
}

func TestTranscriptDegradesWhenDirUncreatable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	tr := NewTranscript(filepath.Join(blocker, "logs"))
	assert.True(t, tr.Degraded())
	assert.Empty(t, tr.Path())

	// Degraded transcripts swallow writes instead of failing.
	assert.NotPanics(t, func() {
		tr.Record("stdout", "ignored")
		_ = tr.Close()
	})
}
