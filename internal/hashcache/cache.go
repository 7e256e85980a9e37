package hashcache

import (
	"fmt"
	"os"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the number of memoized digests when no explicit
// capacity is configured.
const DefaultCapacity = 65536

// memberSeparator joins an archive path and a member path into one cache key.
const memberSeparator = "!/"

// Cache memoizes file-content digests keyed by path. Entries are evicted
// least-recently-used once capacity is reached, or dropped eagerly through
// Invalidate / InvalidateAll.
type Cache struct {
	entries *lru.Cache[string, Digest]

	// locks holds one mutex per in-flight path so that hashing the same
	// file twice concurrently collapses into a single computation, while
	// unrelated paths proceed in parallel.
	locks sync.Map // string -> *sync.Mutex
}

// New creates a cache bounded to capacity entries. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, Digest](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating hash cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Get returns the content digest for path, computing and caching it on the
// first call. An I/O failure is returned to the caller and leaves no entry
// behind, so unrelated paths are unaffected.
func (c *Cache) Get(path string) (Digest, error) {
	return c.get(path, func() (Digest, error) { return HashFile(path) })
}

// GetArchiveMember returns the digest of a member file inside a zip archive,
// cached under a combined archive!/member key.
func (c *Cache) GetArchiveMember(archive, member string) (Digest, error) {
	key := archive + memberSeparator + member
	return c.get(key, func() (Digest, error) { return hashArchiveMember(archive, member) })
}

func (c *Cache) get(key string, compute func() (Digest, error)) (Digest, error) {
	if d, ok := c.entries.Get(key); ok {
		return d, nil
	}

	muAny, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	// Re-check after acquiring the lock: a concurrent caller may have
	// finished the computation while we were waiting.
	if d, ok := c.entries.Get(key); ok {
		return d, nil
	}
	d, err := compute()
	if err != nil {
		return Digest{}, err
	}
	c.entries.Add(key, d)
	return d, nil
}

// WillGet reports whether a Get for path would succeed cheaply: either the
// digest is already cached, or the file exists and can be hashed on demand.
// It never forces a hash computation.
func (c *Cache) WillGet(path string) bool {
	if c.entries.Contains(path) {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Set pre-seeds the digest for a path, e.g. from a distributed-build
// snapshot, bypassing local hashing.
func (c *Cache) Set(path string, d Digest) {
	c.entries.Add(path, d)
}

// Invalidate drops the entry for path, along with any archive-member
// entries hashed out of it. The next Get recomputes from current content.
func (c *Cache) Invalidate(path string) {
	c.entries.Remove(path)
	prefix := path + memberSeparator
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.entries.Purge()
}

// Len returns the number of cached digests.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// VerifyResult summarizes a consistency check over the cached entries.
type VerifyResult struct {
	// Examined counts entries whose digests were recomputed.
	Examined int
	// Mismatches collects one error per entry whose recomputed digest
	// disagreed with the cached value.
	Mismatches []error
}

// Verify recomputes the digest for every cached entry and compares it to
// the cached value. Entries whose backing file disappeared are reported as
// mismatches; pre-seeded entries are checked like any other.
func (c *Cache) Verify() (VerifyResult, error) {
	var res VerifyResult
	for _, key := range c.entries.Keys() {
		cached, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		res.Examined++

		var fresh Digest
		var err error
		if archive, member, isMember := strings.Cut(key, memberSeparator); isMember {
			fresh, err = hashArchiveMember(archive, member)
		} else {
			fresh, err = HashFile(key)
		}
		if err != nil {
			res.Mismatches = append(res.Mismatches, fmt.Errorf("verify %s: %w", key, err))
			continue
		}
		if fresh != cached {
			res.Mismatches = append(res.Mismatches,
				fmt.Errorf("verify %s: cached digest %s does not match current content %s", key, cached, fresh))
		}
	}
	return res, nil
}
