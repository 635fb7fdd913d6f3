package diag

import (
	"strings"
	"sync"
)

// DefaultBacklogSize bounds the diagnostic log backlog when the
// configuration does not override it.
const DefaultBacklogSize = 150

// Backlog is a bounded ring of recent log lines. It implements
// io.Writer so it can sit behind zerolog as a tee target; writes that
// exceed the capacity evict the oldest lines, same policy as the
// retained-event buffer.
type Backlog struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

// NewBacklog creates a backlog keeping up to capacity lines.
func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = DefaultBacklogSize
	}
	return &Backlog{cap: capacity}
}

// Write records p as one or more log lines. Always succeeds.
func (b *Backlog) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		b.lines = append(b.lines, line)
	}
	if len(b.lines) > b.cap {
		b.lines = append(b.lines[:0], b.lines[len(b.lines)-b.cap:]...)
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first.
func (b *Backlog) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Len returns the number of retained lines.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
