// Package arena provides the allocators relo compacts graphs into: Bump,
// a monotonic cursor over a caller-owned byte region, and Chunk, a Go-heap
// arena that keeps every allocation alive for its own lifetime.
//
// Bump is the region allocator SealToBuffer relies on: the first allocation
// lands at byte 0, so a compacted root always sits at the start of the
// region.
package arena

import (
	"unsafe"

	"github.com/rawbytedev/relo/internal/common"
)

// Bump hands out monotonically advancing slices of a fixed byte region.
// It never frees; reclaim the whole region by discarding it or calling
// Reset.
type Bump struct {
	buf  []byte
	next uintptr
}

// NewBump returns a bump allocator over buf. The caller keeps ownership of
// buf and must keep it alive as long as anything allocated from it.
func NewBump(buf []byte) *Bump {
	return &Bump{buf: buf}
}

// Allocate returns size bytes at the next align-rounded cursor position.
// A zero-size request returns the align-rounded cursor and consumes no
// bytes beyond that alignment padding; the result is a valid non-nil
// address as long as the region itself is non-empty.
func (b *Bump) Allocate(size, align uintptr) (unsafe.Pointer, error) {
	if align == 0 {
		align = 1
	}
	if len(b.buf) == 0 {
		return nil, common.ErrOutOfMemory
	}
	off := common.AlignUp(b.next, align)
	if off > uintptr(len(b.buf)) || size > uintptr(len(b.buf))-off {
		return nil, common.ErrOutOfMemory
	}
	b.next = off + size
	return unsafe.Add(unsafe.Pointer(&b.buf[0]), off), nil
}

// Used returns the number of region bytes consumed so far.
func (b *Bump) Used() int {
	return int(b.next)
}

// Reset rewinds the cursor to byte 0. Previously returned allocations are
// invalidated.
func (b *Bump) Reset() {
	b.next = 0
}

// Chunk allocates from the Go heap and retains every chunk it hands out.
// Pointers stored inside chunks are not traced individually by the
// collector; the arena's own references are what keep the graph alive, so
// a compacted graph lives exactly as long as its Chunk arena.
type Chunk struct {
	chunks [][]byte
}

// NewChunk returns an empty Go-heap arena.
func NewChunk() *Chunk {
	return &Chunk{}
}

// zeroByte backs zero-size allocations so callers always get a non-nil,
// never-dereferenced address.
var zeroByte byte

// Allocate returns size bytes with at least align alignment.
func (c *Chunk) Allocate(size, align uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return unsafe.Pointer(&zeroByte), nil
	}
	if align < 1 {
		align = 1
	}
	// Over-allocate so any alignment up to MaxAlign (and beyond) can be
	// satisfied inside the chunk. Go slices are already MaxAlign-aligned
	// for sizes >= 8.
	chunk := make([]byte, size+align-1)
	c.chunks = append(c.chunks, chunk)
	base := uintptr(unsafe.Pointer(&chunk[0]))
	off := common.AlignUp(base, align) - base
	return unsafe.Pointer(&chunk[off]), nil
}

// Len returns the number of live chunks, mostly for tests.
func (c *Chunk) Len() int {
	return len(c.chunks)
}

// Release drops all chunks. Everything allocated from the arena becomes
// invalid.
func (c *Chunk) Release() {
	c.chunks = nil
}

// AlignedBytes returns a byte slice of length n whose first byte satisfies
// align. Use it to build regions for SealToBuffer and snapshot readers.
func AlignedBytes(n int, align uintptr) []byte {
	if align <= 1 {
		return make([]byte, n)
	}
	raw := make([]byte, n+int(align-1))
	base := uintptr(unsafe.Pointer(&raw[0]))
	off := common.AlignUp(base, align) - base
	return raw[off : off+uintptr(n) : off+uintptr(n)]
}
