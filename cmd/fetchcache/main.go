// Command fetchcache demonstrates the disk cache as the persistence layer of
// an HTTP fetcher: URLs passed as arguments are downloaded once, stored
// compressed on disk, and served from cache on every later run.
//
// Usage:
//
//	fetchcache -dir /tmp/fetchcache https://example.com/a.jpg https://example.com/b.jpg
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/diskcache"
)

type config struct {
	dir      string
	maxBytes int64
	maxCount int
	memCap   int
	workers  int
	timeout  time.Duration
	verbose  bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.dir, "dir", defaultCacheDir(), "cache directory")
	flag.Int64Var(&cfg.maxBytes, "max-bytes", diskcache.DefaultMaxBytes, "disk cache byte budget")
	flag.IntVar(&cfg.maxCount, "max-count", diskcache.DefaultMaxCount, "disk cache entry budget")
	flag.IntVar(&cfg.memCap, "mem-cap", 10, "in-memory cache entry budget")
	flag.IntVar(&cfg.workers, "workers", 4, "concurrent fetches")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "per-run fetch timeout")
	flag.BoolVar(&cfg.verbose, "v", false, "log per-URL results")
	flag.Parse()

	urls := flag.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: fetchcache [flags] url...")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cfg, urls); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config, urls []string) error {
	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for _, url := range urls {
		g.Go(func() error {
			body, cached, err := store.Get(ctx, url)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", url, err)
			}
			if cfg.verbose {
				source := "network"
				if cached {
					source = "cache"
				}
				log.Printf("%s: %d bytes (%s)", url, len(body), source)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Print(store.Stats())
	return nil
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return base + "/fetchcache"
}
