package rulekey

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"path/filepath"

	"github.com/vk/buildgridgo/internal/hashcache"
)

// Fingerprint is a rule's deterministic content digest.
type Fingerprint [sha256.Size]byte

// String renders the fingerprint as lowercase hex, the form used as a cache
// lookup key on the wire and on disk.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Parse parses a lowercase hex fingerprint as produced by String.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	if len(raw) != sha256.Size {
		return f, fmt.Errorf("invalid fingerprint %q: expected %d bytes, got %d", s, sha256.Size, len(raw))
	}
	copy(f[:], raw)
	return f, nil
}

// Value type tags. Every hashed value is framed as tag + length + bytes so
// that adjacent values can never be confused for one another.
const (
	tagString      byte = 0x01
	tagBytes       byte = 0x02
	tagBool        byte = 0x03
	tagInt64       byte = 0x04
	tagFingerprint byte = 0x05
	tagFilePath    byte = 0x06
	tagFileDigest  byte = 0x07
	tagKey         byte = 0x10
	tagWrapper     byte = 0x11
	tagContainer   byte = 0x12
)

// Wrapper identifies a wrapper scope kind.
type Wrapper byte

const (
	// WrapperOptional marks a present optional value.
	WrapperOptional Wrapper = iota + 1
	// WrapperLeft and WrapperRight distinguish the two arms of an
	// either-typed field.
	WrapperLeft
	WrapperRight
)

// Container identifies a container scope kind.
type Container byte

const (
	// ContainerList is an ordered collection.
	ContainerList Container = iota + 1
	// ContainerMap is a key-value collection; callers present entries in
	// canonical key order.
	ContainerMap
)

// Builder accumulates scoped values into a fingerprint. It is not safe for
// concurrent use; independent rules use independent builders.
type Builder struct {
	h     hash.Hash
	files *hashcache.Cache
	root  string

	// writes counts committed hash contributions. Scopes compare it
	// against a snapshot taken when they opened to decide whether they
	// were non-empty.
	writes uint64
}

// NewBuilder creates a builder whose file values are resolved against root
// and hashed through the given cache. Only the root-relative path is ever
// hashed, so fingerprints do not leak absolute paths.
func NewBuilder(files *hashcache.Cache, root string) *Builder {
	return &Builder{h: sha256.New(), files: files, root: root}
}

func (b *Builder) write(tag byte, data []byte) {
	var frame [9]byte
	frame[0] = tag
	binary.BigEndian.PutUint64(frame[1:], uint64(len(data)))
	b.h.Write(frame[:])
	b.h.Write(data)
	b.writes++
}

// AddString hashes a string value.
func (b *Builder) AddString(s string) *Builder {
	b.write(tagString, []byte(s))
	return b
}

// AddBytes hashes a raw byte value.
func (b *Builder) AddBytes(data []byte) *Builder {
	b.write(tagBytes, data)
	return b
}

// AddBool hashes a boolean value.
func (b *Builder) AddBool(v bool) *Builder {
	if v {
		b.write(tagBool, []byte{1})
	} else {
		b.write(tagBool, []byte{0})
	}
	return b
}

// AddInt64 hashes an integer value.
func (b *Builder) AddInt64(v int64) *Builder {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	b.write(tagInt64, buf[:])
	return b
}

// AddFingerprint hashes an already-computed dependency fingerprint.
func (b *Builder) AddFingerprint(f Fingerprint) *Builder {
	b.write(tagFingerprint, f[:])
	return b
}

// AddFile hashes a leaf input file: its root-relative path in slash form,
// then its content digest. The content is read through the hash cache, so
// unchanged files are not re-read on subsequent builds.
func (b *Builder) AddFile(rel string) error {
	d, err := b.files.Get(filepath.Join(b.root, rel))
	if err != nil {
		return err
	}
	b.write(tagFilePath, []byte(filepath.ToSlash(rel)))
	b.write(tagFileDigest, d[:])
	return nil
}

// AddArchiveMember hashes a member of a zip archive as a leaf input.
func (b *Builder) AddArchiveMember(relArchive, member string) error {
	d, err := b.files.GetArchiveMember(filepath.Join(b.root, relArchive), member)
	if err != nil {
		return err
	}
	b.write(tagFilePath, []byte(filepath.ToSlash(relArchive)+"!/"+member))
	b.write(tagFileDigest, d[:])
	return nil
}

// Finalize returns the accumulated fingerprint. The builder must not be
// used afterwards.
func (b *Builder) Finalize() Fingerprint {
	var f Fingerprint
	copy(f[:], b.h.Sum(nil))
	return f
}
