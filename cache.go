package diskcache

import (
	"container/list"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
)

const (
	// DefaultMaxBytes is the default byte budget (30 MiB).
	DefaultMaxBytes int64 = 30 << 20

	// DefaultMaxCount is the default entry-count budget.
	DefaultMaxCount = 1000

	defaultDirPerm os.FileMode = 0o700
)

var legalKey = regexp.MustCompile(`^[a-z0-9_-]{1,120}$`)

// Cache is a bounded, journaled LRU disk cache mapping string keys to byte
// blobs, one file per entry. Keys must match [a-z0-9_-]{1,120}; they are
// used verbatim as file name stems.
//
// The cache owns its directory exclusively and may delete or overwrite any
// file in it. It is an error for multiple processes to share one directory.
//
// Byte and entry-count budgets are soft: when either is exceeded the cache
// trims least-recently-used entries in the background, and may temporarily
// stay over budget while files are being deleted or entries are under edit.
//
// Get returns a snapshot: the Reader observes the value as of the call, and
// later commits or removals do not disturb it. Edit returns the entry's
// single Writer; a second concurrent Edit of the same key fails with
// ErrEditInProgress. Writes are silently tolerant of I/O errors (Commit
// reports them by returning false) while Reader errors propagate.
//
// A Cache with an empty directory or a zero budget is a stub: Edit and Get
// report absent, Has reports false, Remove and Flush do nothing, and no
// journal is created.
type Cache struct {
	dir          string
	dirPerm      os.FileMode
	maxCount     int
	isMainThread func() bool

	mu       sync.Mutex // guards lruList and lruIndex; never held while taking retryMu
	lruList  *list.List // *entry values, least recently used at the front
	lruIndex map[string]*list.Element

	retryMu     sync.Mutex // guards removeRetry
	removeRetry []*entry

	size     atomic.Int64
	maxBytes atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64

	journal  *journal
	trimExec *SerialExecutor
}

// New opens a cache over dir, replaying the journal left by a previous run.
// Unfinished edits from that run are discarded; a corrupted or unreadable
// journal abandons all entries, sweeps the directory of cache files, and
// starts empty behind a fresh journal.
//
// journalExec serializes journal appends and must be a FIFO, single-worker
// executor that outlives the cache. An empty dir yields a stub cache.
//
// New must not be called from the embedder's main thread when a
// WithMainThreadCheck predicate is configured.
func New(dir string, journalExec Executor, opts ...Option) (*Cache, error) {
	if journalExec == nil {
		return nil, ErrNilExecutor
	}
	c := &Cache{
		dir:      dir,
		dirPerm:  defaultDirPerm,
		maxCount: DefaultMaxCount,
		lruList:  list.New(),
		lruIndex: make(map[string]*list.Element),
	}
	c.maxBytes.Store(DefaultMaxBytes)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if c.isMainThread != nil && c.isMainThread() {
		return nil, ErrMainThread
	}
	c.trimExec = NewSerialExecutor()
	c.journal = newJournal(c.dir, c, journalExec)
	if c.stub() {
		return c, nil
	}

	entries, ok := c.journal.retrieveEntries()
	if !ok {
		// Directory swept; recreate it and lay down a fresh journal.
		os.MkdirAll(c.dir, c.dirPerm)
		c.journal.rebuildSync()
		return c, nil
	}
	for _, e := range entries {
		c.lruIndex[e.key] = c.lruList.PushBack(e)
		c.size.Add(e.lengthBytes())
	}
	return c, nil
}

// Has reports whether a readable entry for key exists and its clean file is
// currently on disk. The file check is advisory: it races against eviction.
// Has does not refresh the entry's LRU position.
func (c *Cache) Has(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	e := c.lookup(key, false)
	if e == nil || !e.isReadable() {
		return false, nil
	}
	_, err := os.Stat(e.cleanPath())
	return err == nil, nil
}

// Get opens a snapshot Reader over the entry's clean file. ok is false when
// the entry is absent, not readable, or its file cannot be opened; that is
// routine, not an error. A hit refreshes the entry's LRU position.
func (c *Cache) Get(key string) (r *Reader, ok bool, err error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	e := c.lookup(key, true)
	if e == nil || !e.isReadable() {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	r, openErr := newReader(e)
	if openErr != nil {
		return nil, false, nil
	}
	return r, true, nil
}

// Edit opens the Writer for key, creating the entry if needed and logging a
// DIRTY journal record before the Writer is returned. ok is false when the
// cache is a stub or the dirty file cannot be created even after recreating
// the cache directory. A second live editor for the same key fails with
// ErrEditInProgress.
func (c *Cache) Edit(key string) (w *Writer, ok bool, err error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	if c.stub() {
		return nil, false, nil
	}

	c.mu.Lock()
	el, found := c.lruIndex[key]
	var e *entry
	if found {
		e = el.Value.(*entry)
		c.lruList.MoveToBack(el)
	} else {
		e = newEntry(c.dir, key)
		c.lruIndex[key] = c.lruList.PushBack(e)
	}
	c.mu.Unlock()

	if found && e.currentWriter() != nil {
		return nil, false, ErrEditInProgress
	}
	c.journal.logDirty(key)
	return c.openWriter(e)
}

// openWriter claims the entry's editor slot, then creates the dirty file.
// The cache directory may have been wiped externally, so a failed create is
// retried once behind a MkdirAll.
func (c *Cache) openWriter(e *entry) (*Writer, bool, error) {
	w := &Writer{cache: c, entry: e}
	if err := e.claimWriter(w); err != nil {
		return nil, false, err
	}
	f, err := os.OpenFile(e.dirtyPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		os.MkdirAll(c.dir, c.dirPerm)
		f, err = os.OpenFile(e.dirtyPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	}
	if err != nil {
		e.setCurrentWriter(nil)
		c.dropIfNotReadable(e)
		return nil, false, nil
	}
	w.f = f
	return w, true, nil
}

// Remove deletes the entry and its clean file. Removing a key under active
// edit fails with ErrEditInProgress; the edit must commit or abort first.
// When the file-system delete fails, the entry is parked on a retry list and
// its bytes stay accounted until a later eviction pass frees them.
func (c *Cache) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	c.mu.Lock()
	el, found := c.lruIndex[key]
	if !found {
		c.mu.Unlock()
		return nil
	}
	e := el.Value.(*entry)
	if e.currentWriter() != nil {
		c.mu.Unlock()
		return ErrEditInProgress
	}
	c.lruList.Remove(el)
	delete(c.lruIndex, key)
	c.mu.Unlock()

	if err := os.Remove(e.cleanPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.retryMu.Lock()
		c.removeRetry = append(c.removeRetry, e)
		c.retryMu.Unlock()
		return nil
	}
	c.size.Add(-e.lengthBytes())
	return nil
}

// Flush trims the cache to its budgets on the calling goroutine and compacts
// the journal if its line count has crossed the rebuild threshold.
func (c *Cache) Flush() {
	if c.stub() {
		return
	}
	c.trimToSizeAndCount()
	c.journal.rebuildIfNeeded()
}

// Close trims the cache, compacts the journal one final time, and closes the
// journal writer. Close must not be called from the embedder's main thread
// when a WithMainThreadCheck predicate is configured.
func (c *Cache) Close() error {
	if c.isMainThread != nil && c.isMainThread() {
		return ErrMainThread
	}
	if !c.stub() {
		c.trimToSizeAndCount()
		c.journal.closeSync()
	}
	c.trimExec.Close()
	return nil
}

// Directory returns the configured cache directory, or "" when the cache was
// opened without one. A stub cache made by a zero budget still reports its
// directory.
func (c *Cache) Directory() string {
	return c.dir
}

// Size returns the sum of the lengths of all readable entries, in bytes.
func (c *Cache) Size() int64 {
	return c.size.Load()
}

// Count returns the number of indexed entries.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// MaxBytes returns the current byte budget.
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes.Load()
}

// MaxCount returns the entry-count budget.
func (c *Cache) MaxCount() int {
	return c.maxCount
}

// SetMaxBytes updates the byte budget and schedules an eviction pass. A grow
// makes the pass a no-op; a shrink trims in the background without blocking
// new edits.
func (c *Cache) SetMaxBytes(n int64) {
	c.maxBytes.Store(n)
	c.scheduleTrim()
}

// HitRateString formats the hit/miss counters for logging, e.g.
// Cache[max_bytes=31457280,hits=3,misses=1,hitRate=75%].
func (c *Cache) HitRateString() string {
	hits := c.hits.Load()
	misses := c.misses.Load()
	accesses := hits + misses
	var hitPercent int64
	if accesses != 0 {
		hitPercent = 100 * hits / accesses
	}
	return fmt.Sprintf("Cache[max_bytes=%d,hits=%d,misses=%d,hitRate=%d%%]",
		c.maxBytes.Load(), hits, misses, hitPercent)
}

// lookup returns the entry for key, refreshing its LRU position when bump is
// set and the entry is readable.
func (c *Cache) lookup(key string, bump bool) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, found := c.lruIndex[key]
	if !found {
		return nil
	}
	e := el.Value.(*entry)
	if bump && e.isReadable() {
		c.lruList.MoveToBack(el)
	}
	return e
}

func (c *Cache) stub() bool {
	return c.dir == "" || c.maxBytes.Load() == 0 || c.maxCount == 0
}

// commitEdit publishes a closed Writer's dirty file: atomic rename over the
// clean file, length and size accounting from the on-disk result, CLEAN
// journal record. A failed rename discards the edit and drops the key.
func (c *Cache) commitEdit(e *entry) {
	dirty := e.dirtyPath()
	if _, err := os.Stat(dirty); err != nil {
		// The edit never produced a dirty file.
		e.setCurrentWriter(nil)
		c.updateEntry(e)
		return
	}
	clean := e.cleanPath()
	if err := os.Rename(dirty, clean); err != nil {
		c.abortEdit(e)
		c.Remove(e.key)
		return
	}
	var newLength int64
	if info, err := os.Stat(clean); err == nil {
		newLength = info.Size()
	}
	oldLength := e.lengthBytes()
	e.markPublished(newLength)
	c.size.Add(newLength - oldLength)
	c.updateEntry(e)
}

// abortEdit discards a closed Writer's dirty file and clears the editor
// slot. An entry left with nothing readable is dropped from the index.
func (c *Cache) abortEdit(e *entry) {
	removeIfExists(e.dirtyPath())
	e.setCurrentWriter(nil)
	c.updateEntry(e)
}

// updateEntry publishes an entry's post-edit state: readable entries move to
// the MRU end and get a CLEAN journal record, unreadable ones leave the
// index. Crossing a budget schedules a background trim.
func (c *Cache) updateEntry(e *entry) {
	if e.isReadable() {
		c.mu.Lock()
		if el, found := c.lruIndex[e.key]; found && el.Value.(*entry) == e {
			c.lruList.MoveToBack(el)
		}
		c.mu.Unlock()
		c.journal.logClean(e.key, e.lengthBytes())
	} else {
		c.dropIfNotReadable(e)
	}
	if c.overBudget() {
		c.scheduleTrim()
	}
}

// dropIfNotReadable removes e from the index when it holds neither a
// committed value nor a live writer.
func (c *Cache) dropIfNotReadable(e *entry) {
	if e.isReadable() || e.currentWriter() != nil {
		return
	}
	c.mu.Lock()
	if el, found := c.lruIndex[e.key]; found && el.Value.(*entry) == e {
		c.lruList.Remove(el)
		delete(c.lruIndex, e.key)
	}
	c.mu.Unlock()
}

func (c *Cache) overBudget() bool {
	if c.size.Load() > c.maxBytes.Load() {
		return true
	}
	return c.Count() > c.maxCount
}

// scheduleTrim queues an eviction pass on the cache-owned executor. The
// budgets are re-checked inside the task; redundant passes collapse to
// no-ops.
func (c *Cache) scheduleTrim() {
	c.trimExec.Execute(func() {
		if c.overBudget() {
			c.trimToSizeAndCount()
		}
	})
}

// trimToSizeAndCount evicts from the LRU end until both budgets are met.
// Entries under active edit are skipped, so the cache may stay over budget
// when nothing else remains; that slack is reclaimed after the edits settle.
func (c *Cache) trimToSizeAndCount() {
	c.retryPendingRemoves()
	skip := 0
	for c.overBudget() {
		c.mu.Lock()
		el := c.lruList.Front()
		for i := 0; i < skip && el != nil; i++ {
			el = el.Next()
		}
		if el == nil {
			c.mu.Unlock()
			return
		}
		key := el.Value.(*entry).key
		c.mu.Unlock()
		if err := c.Remove(key); errors.Is(err, ErrEditInProgress) {
			skip++
		}
	}
}

// retryPendingRemoves re-attempts deletes that failed during Remove, freeing
// the accounted bytes on success. A clean file already gone counts as done.
func (c *Cache) retryPendingRemoves() {
	c.retryMu.Lock()
	defer c.retryMu.Unlock()
	kept := c.removeRetry[:0]
	for _, e := range c.removeRetry {
		if err := os.Remove(e.cleanPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			kept = append(kept, e)
			continue
		}
		c.size.Add(-e.lengthBytes())
	}
	c.removeRetry = kept
}

// entrySnapshot returns the indexed entries in LRU order, least recently
// used first. The journal rebuild writes its compacted lines from this.
func (c *Cache) entrySnapshot() []*entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]*entry, 0, c.lruList.Len())
	for el := c.lruList.Front(); el != nil; el = el.Next() {
		entries = append(entries, el.Value.(*entry))
	}
	return entries
}

func validateKey(key string) error {
	if !legalKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
