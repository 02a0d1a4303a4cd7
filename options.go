package diskcache

import "os"

// Option configures a Cache.
type Option func(*Cache)

// WithMaxBytes sets the byte budget for the cache. A zero budget puts the
// cache in stub mode. Defaults to DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes.Store(n)
	}
}

// WithMaxCount sets the entry-count budget for the cache. A zero budget puts
// the cache in stub mode. Defaults to DefaultMaxCount.
func WithMaxCount(n int) Option {
	return func(c *Cache) {
		c.maxCount = n
	}
}

// WithDirPerm sets the permissions used when (re)creating the cache
// directory. Defaults to 0o700.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMainThreadCheck installs a predicate identifying the embedder's main
// (UI) thread. New and Close fail with ErrMainThread when invoked there;
// every other operation is unaffected. Without this option the check is a
// no-op.
func WithMainThreadCheck(isMain func() bool) Option {
	return func(c *Cache) {
		c.isMainThread = isMain
	}
}
