// Package diskcache provides a bounded, journaled, LRU disk cache mapping
// short string keys to byte blobs stored one file per entry.
//
// The cache is the persistence substrate for bytes that are expensive to
// produce (fetched response bodies, rendered thumbnails), with crash-safe
// recovery and automatic eviction once the byte or entry-count budget is
// exceeded.
//
// # Quick Start
//
// Open a cache and write an entry:
//
//	exec := diskcache.NewSerialExecutor()
//	c, err := diskcache.New("/var/cache/thumbs", exec)
//	if err != nil {
//	    return err
//	}
//	w, ok, err := c.Edit("thumb-42")
//	if err != nil || !ok {
//	    return err
//	}
//	defer w.AbortUnlessCommitted()
//	w.Write(data)
//	w.Commit()
//
// Read it back:
//
//	r, ok, err := c.Get("thumb-42")
//	if err == nil && ok {
//	    defer r.Close()
//	    body, err := io.ReadAll(r)
//	    ...
//	}
//
// # Durability
//
// Every edit appends a DIRTY line to an on-disk journal and every commit a
// CLEAN line, through a caller-supplied serial executor. Reopening the cache
// replays the journal: committed entries come back readable, ordered by the
// first CLEAN line of each key (LRU order when the journal was last
// compacted, as Close does), unfinished edits are discarded along with their files, and a corrupted
// journal abandons the directory contents entirely rather than recover
// partially. The journal is compacted in the background behind a
// temp-plus-backup swap that survives a crash at any step.
//
// # Concurrency
//
// All public operations are safe for concurrent use. Each key has at most
// one live Writer; a competing Edit fails with ErrEditInProgress. Readers
// hold stable snapshots: a commit that replaces an entry's file does not
// affect readers opened before it.
package diskcache
