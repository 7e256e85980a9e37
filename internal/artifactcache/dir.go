package artifactcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/rulekey"
)

// manifestName is the per-entry metadata file inside an entry directory.
const manifestName = "manifest.json"

// manifest records what was stored under a fingerprint.
type manifest struct {
	Key string `json:"key"`
	// Files holds root-relative slash paths in stored order; blob i holds
	// the content of Files[i].
	Files []string `json:"files"`
}

// DirCache is the local-filesystem tier. Entries live under
// root/<first two hex chars>/<hex>/ as a manifest plus numbered blobs.
// Entries are written into a temporary directory and renamed into place,
// so concurrent readers either see a complete entry or none.
type DirCache struct {
	root string
	mode Mode
}

// NewDirCache opens (creating if necessary) a local cache directory.
func NewDirCache(root string, mode Mode) (*DirCache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", root, err)
	}
	return &DirCache{root: root, mode: mode}, nil
}

// Name implements Cache.
func (c *DirCache) Name() string { return "dir" }

// Mode implements Cache.
func (c *DirCache) Mode() Mode { return c.mode }

// entryDir shards entries by the first two hex characters so no single
// directory accumulates every fingerprint.
func (c *DirCache) entryDir(key rulekey.Fingerprint) string {
	hex := key.String()
	return filepath.Join(c.root, hex[:2], hex)
}

// Fetch implements Cache.
func (c *DirCache) Fetch(ctx context.Context, key rulekey.Fingerprint, destDir string) (FetchResult, error) {
	entry := c.entryDir(key)
	raw, err := os.ReadFile(filepath.Join(entry, manifestName))
	if os.IsNotExist(err) {
		observeFetch(c.Name(), Miss)
		return FetchResult{Outcome: Miss}, nil
	}
	if err != nil {
		observeFetch(c.Name(), Error)
		return FetchResult{Outcome: Error}, fmt.Errorf("reading cache manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		observeFetch(c.Name(), Error)
		return FetchResult{Outcome: Error}, fmt.Errorf("corrupt cache manifest for %s: %w", key, err)
	}

	files := make([]string, 0, len(m.Files))
	for i, name := range m.Files {
		rel, err := sanitizeRel(name)
		if err != nil {
			observeFetch(c.Name(), Error)
			return FetchResult{Outcome: Error}, err
		}
		blob := filepath.Join(entry, fmt.Sprintf("%d.blob", i))
		if err := copyFileAtomic(filepath.Join(destDir, rel), blob); err != nil {
			observeFetch(c.Name(), Error)
			return FetchResult{Outcome: Error}, fmt.Errorf("materializing %s: %w", rel, err)
		}
		files = append(files, rel)
	}
	observeFetch(c.Name(), Hit)
	return FetchResult{Outcome: Hit, Files: files}, nil
}

// Store implements Cache.
func (c *DirCache) Store(ctx context.Context, key rulekey.Fingerprint, root string, files []string) error {
	if c.mode == ReadOnly {
		observeStore(c.Name(), "rejected")
		return ErrReadOnly
	}
	entry := c.entryDir(key)
	shard := filepath.Dir(entry)
	if err := os.MkdirAll(shard, 0o755); err != nil {
		observeStore(c.Name(), "error")
		return fmt.Errorf("creating cache shard: %w", err)
	}

	// Stage the whole entry next to its final location so the rename is
	// atomic on the same filesystem.
	tmp := filepath.Join(shard, "tmp-"+uuid.NewString())
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		observeStore(c.Name(), "error")
		return fmt.Errorf("staging cache entry: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	m := manifest{Key: key.String()}
	for i, rel := range files {
		if err := copyFileAtomic(filepath.Join(tmp, fmt.Sprintf("%d.blob", i)), filepath.Join(root, rel)); err != nil {
			observeStore(c.Name(), "error")
			return fmt.Errorf("staging %s: %w", rel, err)
		}
		m.Files = append(m.Files, filepath.ToSlash(rel))
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		observeStore(c.Name(), "error")
		return fmt.Errorf("encoding cache manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, manifestName), raw, 0o644); err != nil {
		observeStore(c.Name(), "error")
		return fmt.Errorf("writing cache manifest: %w", err)
	}

	// A concurrent writer may have landed the same entry first; identical
	// content under the same fingerprint makes that a no-op, not a
	// conflict.
	if _, err := os.Stat(entry); err == nil {
		ctxlog.FromContext(ctx).Debug("Cache entry already present, discarding staged copy.", "key", key.String())
		observeStore(c.Name(), "ok")
		return nil
	}
	if err := os.Rename(tmp, entry); err != nil {
		observeStore(c.Name(), "error")
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	observeStore(c.Name(), "ok")
	return nil
}
