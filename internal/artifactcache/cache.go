package artifactcache

import (
	"context"
	"errors"

	"github.com/vk/buildgridgo/internal/metrics"
	"github.com/vk/buildgridgo/internal/rulekey"
)

// Outcome classifies the result of a fetch.
type Outcome int

const (
	// Miss means the fingerprint is definitely not in this tier.
	Miss Outcome = iota
	// Hit means the destination now holds the stored content.
	Hit
	// Error means the tier could not answer; the fingerprint may or may
	// not be cached.
	Error
)

// String implements fmt.Stringer; the values double as metric labels.
func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case Error:
		return "error"
	}
	return "unknown"
}

// Mode controls whether a tier accepts stores.
type Mode int

const (
	// ReadWrite tiers accept both fetches and stores.
	ReadWrite Mode = iota
	// ReadOnly tiers reject stores without corrupting state.
	ReadOnly
)

// ErrReadOnly is returned by Store on a read-only tier.
var ErrReadOnly = errors.New("artifact cache is read-only")

// FetchResult describes a completed fetch. Files lists the dest-relative
// paths materialized on a Hit, in stored order; it is empty otherwise.
type FetchResult struct {
	Outcome Outcome
	Files   []string
}

// Cache is one artifact cache tier.
type Cache interface {
	// Name identifies the tier in logs and metrics.
	Name() string

	// Mode reports whether the tier accepts stores.
	Mode() Mode

	// Fetch looks up a fingerprint and, on a hit, materializes the stored
	// files under destDir. An I/O failure yields Outcome Error together
	// with the error; a clean miss yields Miss and a nil error.
	Fetch(ctx context.Context, key rulekey.Fingerprint, destDir string) (FetchResult, error)

	// Store records the given root-relative files under the fingerprint.
	// Partially written entries are never visible to concurrent fetches.
	Store(ctx context.Context, key rulekey.Fingerprint, root string, files []string) error
}

// observeFetch records a fetch outcome for a tier.
func observeFetch(tier string, o Outcome) {
	metrics.CacheFetches.WithLabelValues(tier, o.String()).Inc()
}

// observeStore records a store outcome for a tier.
func observeStore(tier string, outcome string) {
	metrics.CacheStores.WithLabelValues(tier, outcome).Inc()
}
