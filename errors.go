package diskcache

import "errors"

var (
	// ErrInvalidKey is returned when a key does not match [a-z0-9_-]{1,120}.
	ErrInvalidKey = errors.New("diskcache: keys must match [a-z0-9_-]{1,120}")

	// ErrEditInProgress is returned when an entry is edited or removed while
	// another edit for the same key is still live.
	ErrEditInProgress = errors.New("diskcache: entry is already being edited")

	// ErrWriterClosed is returned when a Writer is used after Commit or Abort.
	ErrWriterClosed = errors.New("diskcache: writer is already committed or aborted")

	// ErrConcurrentEdit is returned when a Writer no longer owns its entry's
	// editor slot. Two editors were started for the same key; this is a
	// programmer error and is never recovered from silently.
	ErrConcurrentEdit = errors.New("diskcache: two writers contend for the same entry")

	// ErrMainThread is returned when New or Close runs on the thread the
	// embedder designated as its main (UI) thread.
	ErrMainThread = errors.New("diskcache: operation must not run on the main thread")

	// ErrNilExecutor is returned by New when no journal executor is supplied.
	ErrNilExecutor = errors.New("diskcache: journal executor is required")
)
