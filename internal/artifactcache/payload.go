package artifactcache

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Remote tiers move an artifact record as a single zip blob: one entry per
// output file, named by its root-relative slash path. Zip preserves entry
// order, so "ordered list of output blobs" survives the round trip.

// packPayload zips the given root-relative files into one blob.
func packPayload(root string, files []string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, rel := range files {
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return nil, fmt.Errorf("packing %s: %w", rel, err)
		}
		f, err := os.Open(filepath.Join(root, rel))
		if err != nil {
			return nil, fmt.Errorf("packing %s: %w", rel, err)
		}
		_, err = io.Copy(entry, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("packing %s: %w", rel, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing payload: %w", err)
	}
	return buf.Bytes(), nil
}

// unpackPayload materializes a payload blob under destDir and returns the
// dest-relative paths in stored order. Each file lands via a temporary
// name and rename, so a crash mid-unpack never leaves a half-written file
// at its final path.
func unpackPayload(data []byte, destDir string) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	files := make([]string, 0, len(r.File))
	for _, f := range r.File {
		rel, err := sanitizeRel(f.Name)
		if err != nil {
			return nil, err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("unpacking %s: %w", rel, err)
		}
		err = writeFileAtomic(filepath.Join(destDir, rel), rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("unpacking %s: %w", rel, err)
		}
		files = append(files, rel)
	}
	return files, nil
}

// sanitizeRel rejects payload entry names that would escape the
// destination directory.
func sanitizeRel(name string) (string, error) {
	rel := filepath.FromSlash(name)
	if filepath.IsAbs(rel) || rel != filepath.Clean(rel) || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("payload entry %q escapes the destination", name)
	}
	return rel, nil
}

// writeFileAtomic streams src into path via a temp file and rename.
func writeFileAtomic(path string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// copyFileAtomic copies an existing file into path via temp and rename.
func copyFileAtomic(dst, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeFileAtomic(dst, f)
}
