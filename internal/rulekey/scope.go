package rulekey

import "encoding/binary"

// Scopes commit their tag when closed, and only if at least one value was
// hashed while they were open. Close is idempotent so scopes can be closed
// with defer and again explicitly on the happy path.

// KeyScope names a field. The field name reaches the digest only if the
// field contributed a value.
type KeyScope struct {
	b      *Builder
	key    string
	start  uint64
	closed bool
}

// Key opens a key scope for a named field.
func (b *Builder) Key(key string) *KeyScope {
	return &KeyScope{b: b, key: key, start: b.writes}
}

// Close commits the field name if the scope was non-empty.
func (s *KeyScope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.b.writes > s.start {
		s.b.write(tagKey, []byte(s.key))
	}
}

// WrapperScope marks a wrapped value, e.g. "optional, present". The marker
// reaches the digest only if the wrapped value was non-empty.
type WrapperScope struct {
	b      *Builder
	kind   Wrapper
	start  uint64
	closed bool
}

// Wrapper opens a wrapper scope.
func (b *Builder) Wrapper(kind Wrapper) *WrapperScope {
	return &WrapperScope{b: b, kind: kind, start: b.writes}
}

// Close commits the wrapper marker if the scope was non-empty.
func (s *WrapperScope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.b.writes > s.start {
		s.b.write(tagWrapper, []byte{byte(s.kind)})
	}
}

// ContainerScope marks a collection. On close it commits a tag qualified by
// the number of non-empty elements, and only if that number is positive, so
// empty collections leave no trace in the digest.
type ContainerScope struct {
	b      *Builder
	kind   Container
	elems  uint64
	closed bool
}

// Container opens a container scope. Each element must be hashed inside its
// own element scope obtained from Element.
func (b *Builder) Container(kind Container) *ContainerScope {
	return &ContainerScope{b: b, kind: kind}
}

// Element opens a scope for the next container element.
func (s *ContainerScope) Element() *ElementScope {
	return &ElementScope{container: s, start: s.b.writes}
}

// Close commits the count-qualified container tag if any element hashed
// something.
func (s *ContainerScope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.elems > 0 {
		var buf [9]byte
		buf[0] = byte(s.kind)
		binary.BigEndian.PutUint64(buf[1:], s.elems)
		s.b.write(tagContainer, buf[:])
	}
}

// ElementScope brackets a single container element.
type ElementScope struct {
	container *ContainerScope
	start     uint64
	closed    bool
}

// Close records the element against its container if it hashed anything.
func (s *ElementScope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.container.b.writes > s.start {
		s.container.elems++
	}
}
