package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/diskcache"
)

// store layers an in-memory LRU over the disk cache, mirroring the usual
// two-tier setup: hot bodies stay decoded in memory, everything else lives
// gzip-compressed on disk and survives restarts.
//
// Concurrent Gets for the same URL are deduplicated with singleflight, so a
// cold start over a repeated URL list still fetches each body once.
type store struct {
	mem    *memLRU
	disk   *diskcache.Cache
	exec   *diskcache.SerialExecutor
	client *http.Client
	group  singleflight.Group
}

func newStore(cfg config) (*store, error) {
	exec := diskcache.NewSerialExecutor()
	disk, err := diskcache.New(cfg.dir, exec,
		diskcache.WithMaxBytes(cfg.maxBytes),
		diskcache.WithMaxCount(cfg.maxCount),
	)
	if err != nil {
		exec.Close()
		return nil, err
	}
	return &store{
		mem:    newMemLRU(cfg.memCap),
		disk:   disk,
		exec:   exec,
		client: http.DefaultClient,
	}, nil
}

// Get returns the body for url, from memory, disk, or the network, in that
// order. cached reports whether the network was avoided.
func (s *store) Get(ctx context.Context, url string) (body []byte, cached bool, err error) {
	key := cacheKey(url)
	if body, ok := s.mem.get(key); ok {
		return body, true, nil
	}
	if body, ok := s.readDisk(key); ok {
		s.mem.add(key, body)
		return body, true, nil
	}

	type result struct {
		body   []byte
		cached bool
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		// A concurrent caller may have just filled the caches.
		if body, ok := s.mem.get(key); ok {
			return result{body, true}, nil
		}
		if body, ok := s.readDisk(key); ok {
			return result{body, true}, nil
		}
		body, err := s.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		s.writeDisk(key, body)
		s.mem.add(key, body)
		return result{body, false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(result)
	return res.body, res.cached, nil
}

func (s *store) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// readDisk returns the decompressed body stored under key, if any.
func (s *store) readDisk(key string) ([]byte, bool) {
	r, ok, err := s.disk.Get(key)
	if err != nil || !ok {
		return nil, false
	}
	defer r.Close()
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, false
	}
	return body, true
}

// writeDisk stores body gzip-compressed under key. Caching is opportunistic;
// failures leave the cache unchanged and the caller unaffected.
func (s *store) writeDisk(key string, body []byte) {
	w, ok, err := s.disk.Edit(key)
	if err != nil || !ok {
		return
	}
	defer w.AbortUnlessCommitted()
	zw := gzip.NewWriter(w)
	if _, err := zw.Write(body); err != nil {
		return
	}
	if err := zw.Close(); err != nil {
		return
	}
	w.Commit()
}

func (s *store) Stats() string {
	return s.disk.HitRateString()
}

func (s *store) Close() error {
	err := s.disk.Close()
	s.exec.Close()
	return err
}

// cacheKey maps an arbitrary URL onto the cache's key charset.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
