//go:build !linux

package diskcache

import "os"

func syncJournal(f *os.File) {
	_ = f.Sync()
}
