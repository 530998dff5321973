package store

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Journal is an append-only, best-effort record of mutations, grounded on
// engine/journal.go's append-to-file entry writer, trimmed down to a
// plain external-interface log: nothing ever reads it back or replays it
// (transaction recovery is out of scope per spec §1 Non-goals).
type Journal struct {
	mu   sync.Mutex
	file *os.File
}

// OpenJournal creates (or appends to) the journal file at path. An empty
// path disables the journal; Write becomes a no-op.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return &Journal{}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open journal file %s: %w", path, err)
	}
	return &Journal{file: f}, nil
}

// Write appends one line recording an operation. Failures are logged by
// the caller, never escalated - losing a journal line never blocks a
// mutation.
func (j *Journal) Write(op, collection, detail string) error {
	if j.file == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	line := fmt.Sprintf("%s | %s | %s | %s\n", time.Now().UTC().Format(time.RFC3339Nano), op, collection, detail)
	_, err := j.file.WriteString(line)
	return err
}

// Close releases the journal file handle, if one is open.
func (j *Journal) Close() error {
	if j.file == nil {
		return nil
	}
	return j.file.Close()
}
