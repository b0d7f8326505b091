// Package buffer provides an owned, growable byte container with an
// explicit logical limit, mirroring the used/allocated split that the
// streaming filter chain and pack codec rely on when they need to
// truncate a buffer without forcing a reallocation.
package buffer

// defaultSlack is the minimum extra capacity requested on each growth,
// avoiding a series of tiny reallocations for buffers that grow by a
// few bytes at a time.
const defaultSlack = 4096

// Buffer is an owned byte container. The zero value is an empty,
// zero-capacity buffer ready to use.
type Buffer struct {
	data  []byte
	limit int // -1 means "no limit below len(data)"
}

// New returns a Buffer with the given starting capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity), limit: -1}
}

// NewFromBytes wraps an existing slice without copying. The caller must
// not mutate the slice through any other reference afterward.
func NewFromBytes(b []byte) *Buffer {
	return &Buffer{data: b, limit: -1}
}

// Bytes returns the buffer's content, truncated to Limit if one is set.
func (b *Buffer) Bytes() []byte {
	if b.limit >= 0 && b.limit < len(b.data) {
		return b.data[:b.limit]
	}
	return b.data
}

// Len returns the logical length: Limit if set and smaller, else the
// used length.
func (b *Buffer) Len() int {
	return len(b.Bytes())
}

// Cap returns the allocated capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// SetLimit truncates the buffer's logical size without releasing the
// underlying allocation. A negative limit removes the restriction.
func (b *Buffer) SetLimit(limit int) {
	b.limit = limit
}

// Reset clears the used length and any limit, keeping the allocation.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.limit = -1
}

// Append grows the buffer by p, doubling the allocation (with a minimum
// slack) whenever the existing capacity is insufficient.
func (b *Buffer) Append(p []byte) {
	b.growFor(len(p))
	b.data = append(b.data, p...)
}

// growFor ensures capacity for n additional bytes beyond the current
// used length, following a double-with-slack policy.
func (b *Buffer) growFor(n int) {
	need := len(b.data) + n
	if need <= cap(b.data) {
		return
	}
	newCap := cap(b.data)*2 + defaultSlack
	if newCap < need {
		newCap = need + defaultSlack
	}
	grown := make([]byte, len(b.data), newCap)
	copy(grown, b.data)
	b.data = grown
}

// Equal reports content equality, ignoring the Limit field's identity
// (comparing only the logical bytes each buffer exposes).
func (b *Buffer) Equal(other *Buffer) bool {
	if other == nil {
		return false
	}
	a, c := b.Bytes(), other.Bytes()
	if len(a) != len(c) {
		return false
	}
	for i := range a {
		if a[i] != c[i] {
			return false
		}
	}
	return true
}

// Const is an immutable view over caller-owned bytes. Any attempt to
// mutate it panics, matching the source model's assertion-on-mutation
// contract for constant buffers formed around literals.
type Const struct {
	data []byte
}

// NewConst wraps b as a read-only constant buffer. b must not be
// mutated by the caller afterward.
func NewConst(b []byte) Const {
	return Const{data: b}
}

// Bytes returns the wrapped content.
func (c Const) Bytes() []byte {
	return c.data
}

// Len returns the wrapped content's length.
func (c Const) Len() int {
	return len(c.data)
}
