package artifactcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/rulekey"
)

// MultiCache composes an ordered list of tiers behind the Cache interface.
// Fetches consult tiers in order (cheap tiers first by convention) and stop
// at the first hit; a hit in a later tier is opportunistically written
// through into every earlier read-write tier so the next fetch is local.
type MultiCache struct {
	tiers []Cache
}

// NewMultiCache composes the given tiers, consulted in argument order.
func NewMultiCache(tiers ...Cache) *MultiCache {
	return &MultiCache{tiers: tiers}
}

// Name implements Cache.
func (c *MultiCache) Name() string { return "multi" }

// Mode reports ReadWrite if any inner tier accepts stores.
func (c *MultiCache) Mode() Mode {
	for _, t := range c.tiers {
		if t.Mode() == ReadWrite {
			return ReadWrite
		}
	}
	return ReadOnly
}

// Fetch implements Cache. Tier errors do not mask a hit in a later tier;
// if every tier misses but at least one errored, the composite reports
// Error so telemetry keeps "unreachable" distinct from "not cached".
func (c *MultiCache) Fetch(ctx context.Context, key rulekey.Fingerprint, destDir string) (FetchResult, error) {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	for i, tier := range c.tiers {
		res, err := tier.Fetch(ctx, key, destDir)
		switch res.Outcome {
		case Hit:
			c.writeThrough(ctx, c.tiers[:i], key, destDir, res.Files)
			return res, nil
		case Error:
			logger.Warn("Cache tier failed during fetch.", "tier", tier.Name(), "key", key.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
		}
	}
	if len(errs) > 0 {
		return FetchResult{Outcome: Error}, errors.Join(errs...)
	}
	return FetchResult{Outcome: Miss}, nil
}

// writeThrough populates earlier read-write tiers from a later tier's hit.
// Failures are logged and swallowed: the fetch already succeeded, and the
// entry can be re-populated on any later build.
func (c *MultiCache) writeThrough(ctx context.Context, earlier []Cache, key rulekey.Fingerprint, root string, files []string) {
	logger := ctxlog.FromContext(ctx)
	for _, tier := range earlier {
		if tier.Mode() != ReadWrite {
			continue
		}
		if err := tier.Store(ctx, key, root, files); err != nil {
			logger.Warn("Write-through to cache tier failed.", "tier", tier.Name(), "key", key.String(), "error", err)
		}
	}
}

// Store implements Cache: the record goes to every read-write tier. The
// store succeeds if at least one tier accepted it.
func (c *MultiCache) Store(ctx context.Context, key rulekey.Fingerprint, root string, files []string) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	stored := false
	for _, tier := range c.tiers {
		if tier.Mode() != ReadWrite {
			continue
		}
		if err := tier.Store(ctx, key, root, files); err != nil {
			logger.Warn("Cache tier failed during store.", "tier", tier.Name(), "key", key.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
			continue
		}
		stored = true
	}
	if stored || len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
