package diskcache

import (
	"path/filepath"
	"sync"
)

const (
	cleanFileExt = ".clean"
	dirtyFileExt = ".tmp"
)

// entry is the per-key record: the on-disk file names, the published length,
// the readable flag, and the currently live Writer, if any.
type entry struct {
	dir string
	key string

	mu       sync.Mutex
	length   int64
	readable bool
	writer   *Writer // live editor, nil when no edit is in progress
}

func newEntry(dir, key string) *entry {
	return &entry{dir: dir, key: key}
}

func (e *entry) cleanPath() string {
	return filepath.Join(e.dir, e.key+cleanFileExt)
}

func (e *entry) dirtyPath() string {
	return filepath.Join(e.dir, e.key+dirtyFileExt)
}

func (e *entry) lengthBytes() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.length
}

func (e *entry) isReadable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readable
}

// state returns the readable flag and length in one critical section, so
// journal rebuilds see a consistent pair.
func (e *entry) state() (readable bool, length int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readable, e.length
}

func (e *entry) currentWriter() *Writer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writer
}

func (e *entry) setCurrentWriter(w *Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writer = w
}

// claimWriter installs w as the sole live editor. It fails when another
// Writer already holds the slot.
func (e *entry) claimWriter(w *Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer != nil {
		return ErrEditInProgress
	}
	e.writer = w
	return nil
}

// markPublished records a successful commit: the clean file now holds length
// bytes, the entry is readable, and the editor slot is cleared.
func (e *entry) markPublished(length int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.length = length
	e.writer = nil
	e.readable = true
}
