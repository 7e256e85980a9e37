package hashcache

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeArchive(t *testing.T, dir, name string, members map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for member, content := range members {
		mw, err := w.Create(member)
		require.NoError(t, err)
		_, err = mw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestGet(t *testing.T) {
	dir := t.TempDir()
	cache, err := New(0)
	require.NoError(t, err)

	t.Run("computes and memoizes", func(t *testing.T) {
		path := writeFile(t, dir, "a.txt", "hello")
		d1, err := cache.Get(path)
		require.NoError(t, err)
		assert.Equal(t, HashBytes([]byte("hello")), d1)

		// Rewrite the file behind the cache's back: the stale digest is
		// returned until the entry is invalidated.
		require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
		d2, err := cache.Get(path)
		require.NoError(t, err)
		assert.Equal(t, d1, d2)

		cache.Invalidate(path)
		d3, err := cache.Get(path)
		require.NoError(t, err)
		assert.Equal(t, HashBytes([]byte("changed")), d3)
	})

	t.Run("missing file returns error and caches nothing", func(t *testing.T) {
		missing := filepath.Join(dir, "nope.txt")
		_, err := cache.Get(missing)
		assert.Error(t, err)
		assert.False(t, cache.entries.Contains(missing))
	})

	t.Run("error on one path leaves other entries intact", func(t *testing.T) {
		good := writeFile(t, dir, "good.txt", "data")
		_, err := cache.Get(good)
		require.NoError(t, err)

		_, err = cache.Get(filepath.Join(dir, "absent.txt"))
		require.Error(t, err)
		assert.True(t, cache.entries.Contains(good))
	})
}

func TestGetArchiveMember(t *testing.T) {
	dir := t.TempDir()
	cache, err := New(0)
	require.NoError(t, err)

	archive := writeArchive(t, dir, "lib.zip", map[string]string{
		"pkg/mod.txt": "module body",
	})

	d, err := cache.GetArchiveMember(archive, "pkg/mod.txt")
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("module body")), d)

	_, err = cache.GetArchiveMember(archive, "pkg/other.txt")
	assert.ErrorContains(t, err, "no member")

	t.Run("invalidating the archive drops member entries", func(t *testing.T) {
		cache.Invalidate(archive)
		assert.Zero(t, cache.Len())
	})
}

func TestWillGet(t *testing.T) {
	dir := t.TempDir()
	cache, err := New(0)
	require.NoError(t, err)

	path := writeFile(t, dir, "w.txt", "x")
	assert.True(t, cache.WillGet(path))
	assert.Zero(t, cache.Len(), "WillGet must not force a computation")

	assert.False(t, cache.WillGet(filepath.Join(dir, "missing")))
	assert.False(t, cache.WillGet(dir), "directories are not hashable")
}

func TestSet(t *testing.T) {
	cache, err := New(0)
	require.NoError(t, err)

	// Pre-seeded digests are served without touching the filesystem.
	seeded := HashBytes([]byte("remote content"))
	cache.Set("/snapshot/remote.txt", seeded)
	d, err := cache.Get("/snapshot/remote.txt")
	require.NoError(t, err)
	assert.Equal(t, seeded, d)
}

func TestInvalidateAll(t *testing.T) {
	dir := t.TempDir()
	cache, err := New(0)
	require.NoError(t, err)

	a := writeFile(t, dir, "a", "1")
	b := writeFile(t, dir, "b", "2")
	_, err = cache.Get(a)
	require.NoError(t, err)
	_, err = cache.Get(b)
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	cache.InvalidateAll()
	assert.Zero(t, cache.Len())
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	cache, err := New(0)
	require.NoError(t, err)

	clean := writeFile(t, dir, "clean.txt", "stable")
	dirty := writeFile(t, dir, "dirty.txt", "before")
	_, err = cache.Get(clean)
	require.NoError(t, err)
	_, err = cache.Get(dirty)
	require.NoError(t, err)

	// Mutate one file after it was cached.
	require.NoError(t, os.WriteFile(dirty, []byte("after"), 0o644))

	res, err := cache.Verify()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Examined)
	require.Len(t, res.Mismatches, 1)
	assert.ErrorContains(t, res.Mismatches[0], "dirty.txt")
}

func TestConcurrentGet(t *testing.T) {
	dir := t.TempDir()
	cache, err := New(0)
	require.NoError(t, err)

	paths := make([]string, 8)
	for i := range paths {
		paths[i] = writeFile(t, dir, string(rune('a'+i))+".txt", string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := paths[i%len(paths)]
			d, err := cache.Get(path)
			assert.NoError(t, err)
			assert.NotEqual(t, Digest{}, d)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, len(paths), cache.Len())
}

func TestParseDigest(t *testing.T) {
	d := HashBytes([]byte("roundtrip"))
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = ParseDigest("zz")
	assert.Error(t, err)
	_, err = ParseDigest("abcd")
	assert.ErrorContains(t, err, "expected")
}
