//go:build linux

package diskcache

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncJournal flushes journal data to stable storage before the rename swap.
// Metadata is not needed for replay, so fdatasync is enough.
func syncJournal(f *os.File) {
	_ = unix.Fdatasync(int(f.Fd()))
}
