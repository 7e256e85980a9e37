package artifactcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/rulekey"
)

// stubTier is a scriptable in-memory tier for composite tests.
type stubTier struct {
	name    string
	mode    Mode
	entries map[rulekey.Fingerprint][]string
	fetchEr error
	stores  int
}

func newStubTier(name string, mode Mode) *stubTier {
	return &stubTier{name: name, mode: mode, entries: map[rulekey.Fingerprint][]string{}}
}

func (s *stubTier) Name() string { return s.name }
func (s *stubTier) Mode() Mode   { return s.mode }

func (s *stubTier) Fetch(ctx context.Context, key rulekey.Fingerprint, destDir string) (FetchResult, error) {
	if s.fetchEr != nil {
		return FetchResult{Outcome: Error}, s.fetchEr
	}
	files, ok := s.entries[key]
	if !ok {
		return FetchResult{Outcome: Miss}, nil
	}
	return FetchResult{Outcome: Hit, Files: files}, nil
}

func (s *stubTier) Store(ctx context.Context, key rulekey.Fingerprint, root string, files []string) error {
	if s.mode == ReadOnly {
		return ErrReadOnly
	}
	s.stores++
	s.entries[key] = files
	return nil
}

func TestMultiCacheFirstHitWins(t *testing.T) {
	ctx := context.Background()
	local := newStubTier("local", ReadWrite)
	remote := newStubTier("remote", ReadWrite)
	key := testKey("k")
	local.entries[key] = []string{"out"}

	multi := NewMultiCache(local, remote)
	res, err := multi.Fetch(ctx, key, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Hit, res.Outcome)
	assert.Zero(t, remote.stores, "a local hit must not touch the remote tier")
}

func TestMultiCacheWriteThrough(t *testing.T) {
	ctx := context.Background()
	local := newStubTier("local", ReadWrite)
	remote := newStubTier("remote", ReadWrite)
	key := testKey("k")
	remote.entries[key] = []string{"out"}

	multi := NewMultiCache(local, remote)
	res, err := multi.Fetch(ctx, key, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Hit, res.Outcome)
	assert.Equal(t, 1, local.stores, "a remote hit populates the local tier")
	assert.Contains(t, local.entries, key)
}

func TestMultiCacheWriteThroughSkipsReadOnly(t *testing.T) {
	ctx := context.Background()
	local := newStubTier("local", ReadOnly)
	remote := newStubTier("remote", ReadWrite)
	key := testKey("k")
	remote.entries[key] = []string{"out"}

	multi := NewMultiCache(local, remote)
	res, err := multi.Fetch(ctx, key, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Hit, res.Outcome)
	assert.Zero(t, local.stores)
}

func TestMultiCacheErrorDoesNotMaskLaterHit(t *testing.T) {
	ctx := context.Background()
	broken := newStubTier("broken", ReadWrite)
	broken.fetchEr = errors.New("disk on fire")
	remote := newStubTier("remote", ReadWrite)
	key := testKey("k")
	remote.entries[key] = []string{"out"}

	multi := NewMultiCache(broken, remote)
	res, err := multi.Fetch(ctx, key, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Hit, res.Outcome)
}

func TestMultiCacheOutcomes(t *testing.T) {
	ctx := context.Background()
	key := testKey("k")

	t.Run("all miss is a miss", func(t *testing.T) {
		multi := NewMultiCache(newStubTier("a", ReadWrite), newStubTier("b", ReadWrite))
		res, err := multi.Fetch(ctx, key, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, Miss, res.Outcome)
	})

	t.Run("miss plus error is an error", func(t *testing.T) {
		broken := newStubTier("broken", ReadWrite)
		broken.fetchEr = errors.New("unreachable")
		multi := NewMultiCache(newStubTier("ok", ReadWrite), broken)
		res, err := multi.Fetch(ctx, key, t.TempDir())
		assert.Equal(t, Error, res.Outcome)
		assert.ErrorContains(t, err, "unreachable")
	})
}

func TestMultiCacheStore(t *testing.T) {
	ctx := context.Background()
	key := testKey("k")

	t.Run("stores to every read-write tier", func(t *testing.T) {
		a := newStubTier("a", ReadWrite)
		ro := newStubTier("ro", ReadOnly)
		b := newStubTier("b", ReadWrite)
		multi := NewMultiCache(a, ro, b)
		require.NoError(t, multi.Store(ctx, key, t.TempDir(), nil))
		assert.Equal(t, 1, a.stores)
		assert.Equal(t, 1, b.stores)
		assert.Zero(t, ro.stores)
	})

	t.Run("all read-only composite reports read-only", func(t *testing.T) {
		multi := NewMultiCache(newStubTier("a", ReadOnly))
		assert.Equal(t, ReadOnly, multi.Mode())
		assert.NoError(t, multi.Store(ctx, key, t.TempDir(), nil),
			"store on an all-read-only composite is a no-op, not corruption")
	})
}
