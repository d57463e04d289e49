package codex

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript is the per-turn wire capture: every protocol line that crosses
// the process boundary is appended to a single plain-text file for postmortem
// debugging. The main read loop and the stderr drain write concurrently, so
// appends are serialized under a mutex to keep lines whole.
//
// The transcript is advisory. Once a write fails the transcript degrades and
// stops writing, but the turn keeps going.
type Transcript struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	degraded bool
}

// NewTranscript creates the per-turn log file under dir, named with a
// timestamp plus a short random suffix so concurrent turns never collide.
// A transcript that cannot be created starts out degraded instead of failing
// the turn.
func NewTranscript(dir string) *Transcript {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Transcript{degraded: true}
	}
	name := fmt.Sprintf("codex-%s-%s.log",
		time.Now().Format("20060102-150405.000000000"),
		uuid.NewString()[:8])
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &Transcript{degraded: true}
	}
	return &Transcript{file: file, path: path}
}

// Record appends one line under a stream prefix ("stdin", "stdout" or
// "stderr").
func (t *Transcript) Record(stream, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.degraded || t.file == nil {
		return
	}
	if _, err := fmt.Fprintf(t.file, "%s: %s\n", stream, line); err != nil {
		t.degraded = true
	}
}

// Path returns the log file location, empty when the transcript is degraded
// from creation.
func (t *Transcript) Path() string {
	return t.path
}

// Degraded reports whether any write has failed or the file never opened.
func (t *Transcript) Degraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.degraded
}

// Close flushes and closes the underlying file.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
