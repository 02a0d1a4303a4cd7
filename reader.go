package diskcache

import (
	"io"
	"os"
)

// Reader is a read-only snapshot of a committed cache entry. It opens the
// clean file at construction and captures the entry's length at that moment,
// so a commit that replaces the clean file while the Reader is open does not
// affect in-progress reads: the rename unlinks the old inode, but the open
// descriptor stays valid.
//
// Unlike writes, read errors propagate to the caller. Close the Reader after
// use to release the file descriptor.
type Reader struct {
	f      *os.File
	length int64
	path   string
}

var _ io.ReadCloser = (*Reader)(nil)

func newReader(e *entry) (*Reader, error) {
	f, err := os.Open(e.cleanPath())
	if err != nil {
		return nil, err
	}
	return &Reader{f: f, length: e.lengthBytes(), path: e.cleanPath()}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	return r.f.Read(p)
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Len returns the entry's length in bytes, captured when the Reader opened.
func (r *Reader) Len() int64 {
	return r.length
}

// Path returns the clean file path backing this Reader.
func (r *Reader) Path() string {
	return r.path
}
