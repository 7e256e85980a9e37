package artifactcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/hashcache"
	"github.com/vk/buildgridgo/internal/rulekey"
)

func testKey(s string) rulekey.Fingerprint {
	return rulekey.Fingerprint(hashcache.HashBytes([]byte(s)))
}

// writeOutputs lays out fake build outputs under a fresh root.
func writeOutputs(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func assertMaterialized(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(dir, rel))
		require.NoError(t, err, "expected %s to be materialized", rel)
		assert.Equal(t, want, string(got), "content mismatch for %s", rel)
	}
}

func TestDirCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, err := NewDirCache(t.TempDir(), ReadWrite)
	require.NoError(t, err)

	outputs := map[string]string{
		"bin/app":        "\x7fELF fake binary",
		"lib/app.so":     "shared object bytes",
		"gen/version.go": "package gen\n",
	}
	root := writeOutputs(t, outputs)
	key := testKey("rule-a")

	require.NoError(t, cache.Store(ctx, key, root, []string{"bin/app", "lib/app.so", "gen/version.go"}))

	dest := t.TempDir()
	res, err := cache.Fetch(ctx, key, dest)
	require.NoError(t, err)
	assert.Equal(t, Hit, res.Outcome)
	assert.Equal(t, []string{"bin/app", "lib/app.so", "gen/version.go"}, res.Files)
	assertMaterialized(t, dest, outputs)
}

func TestDirCacheMiss(t *testing.T) {
	ctx := context.Background()
	cache, err := NewDirCache(t.TempDir(), ReadWrite)
	require.NoError(t, err)

	res, err := cache.Fetch(ctx, testKey("never-stored"), t.TempDir())
	require.NoError(t, err, "a clean miss is not an error")
	assert.Equal(t, Miss, res.Outcome)
	assert.Empty(t, res.Files)
}

func TestDirCacheReadOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Populate through a read-write handle, then reopen read-only.
	rw, err := NewDirCache(dir, ReadWrite)
	require.NoError(t, err)
	root := writeOutputs(t, map[string]string{"out.txt": "cached"})
	key := testKey("ro-entry")
	require.NoError(t, rw.Store(ctx, key, root, []string{"out.txt"}))

	ro, err := NewDirCache(dir, ReadOnly)
	require.NoError(t, err)

	err = ro.Store(ctx, testKey("new-entry"), root, []string{"out.txt"})
	assert.ErrorIs(t, err, ErrReadOnly)

	// Fetching still works, and the rejected store corrupted nothing.
	res, err := ro.Fetch(ctx, key, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Hit, res.Outcome)
}

func TestDirCacheStoreIsAtomicPerKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache, err := NewDirCache(dir, ReadWrite)
	require.NoError(t, err)

	root := writeOutputs(t, map[string]string{"a.txt": "same content"})
	key := testKey("contended")

	// Two writers racing on the same key must both succeed and leave a
	// single complete entry behind.
	require.NoError(t, cache.Store(ctx, key, root, []string{"a.txt"}))
	require.NoError(t, cache.Store(ctx, key, root, []string{"a.txt"}))

	res, err := cache.Fetch(ctx, key, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Hit, res.Outcome)

	// No staging litter left in the shard directory.
	shard := filepath.Join(dir, key.String()[:2])
	entries, err := os.ReadDir(shard)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDirCacheCorruptManifest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache, err := NewDirCache(dir, ReadWrite)
	require.NoError(t, err)

	key := testKey("corrupt")
	entry := filepath.Join(dir, key.String()[:2], key.String())
	require.NoError(t, os.MkdirAll(entry, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(entry, manifestName), []byte("{not json"), 0o644))

	res, _ := cache.Fetch(ctx, key, t.TempDir())
	assert.Equal(t, Error, res.Outcome, "corruption must surface as ERROR, not as a silent miss")
}
