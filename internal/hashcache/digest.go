package hashcache

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Digest is a SHA-256 content hash.
type Digest [sha256.Size]byte

// String renders the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses a lowercase hex digest as produced by Digest.String.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(raw) != sha256.Size {
		return d, fmt.Errorf("invalid digest %q: expected %d bytes, got %d", s, sha256.Size, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// HashFile computes the digest of a file's content by streaming it through
// the hash, so large inputs are never held in memory whole.
func HashFile(path string) (Digest, error) {
	var d Digest
	f, err := os.Open(path)
	if err != nil {
		return d, fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return d, fmt.Errorf("hashing %s: %w", path, err)
	}
	copy(d[:], h.Sum(nil))
	return d, nil
}

// HashBytes computes the digest of an in-memory byte slice.
func HashBytes(data []byte) Digest {
	return sha256.Sum256(data)
}

// hashArchiveMember computes the digest of a single member inside a zip
// archive without extracting the archive to disk.
func hashArchiveMember(archive, member string) (Digest, error) {
	var d Digest
	r, err := zip.OpenReader(archive)
	if err != nil {
		return d, fmt.Errorf("opening archive %s: %w", archive, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return d, fmt.Errorf("opening member %s of %s: %w", member, archive, err)
		}
		defer rc.Close()

		h := sha256.New()
		if _, err := io.Copy(h, rc); err != nil {
			return d, fmt.Errorf("hashing member %s of %s: %w", member, archive, err)
		}
		copy(d[:], h.Sum(nil))
		return d, nil
	}
	return d, fmt.Errorf("archive %s has no member %s", archive, member)
}
