// Package relo relocates pointer-linked object graphs: Compact deep-copies
// a rooted graph into an allocator, Seal rewrites every internal pointer
// into a region-relative biased offset so the region bytes are position
// independent, and Unseal restores absolute pointers at a possibly
// different base address. SealToBuffer and UnsealFromBuffer bundle the
// primitives for the common checkpoint path: dump live state into a byte
// region, persist it, patch pointers on load, resume.
//
// The walk is purely structural. A per-type schedule is compiled from
// reflection on first use and cached; the walks themselves run on raw
// addresses with no per-node reflection. Graphs must be finite trees:
// sharing duplicates, cycles do not terminate (beyond the depth guard).
//
// The sealed byte layout is exactly the in-memory layout of the host. A
// region is only portable to machines with identical word size,
// endianness, struct padding and Bias.
package relo

import (
	"errors"
	"reflect"
	"unsafe"

	_ "go4.org/unsafe/assume-no-moving-gc"

	"github.com/rawbytedev/relo/arena"
	"github.com/rawbytedev/relo/internal/common"
)

var (
	// ErrOutOfMemory is returned when the allocator refuses a request.
	ErrOutOfMemory = common.ErrOutOfMemory
	// ErrPointerNotInRange flags a single-target pointer outside the
	// region during Seal, or a sealed offset out of range during Unseal.
	ErrPointerNotInRange = errors.New("relo: pointer not in range")
	// ErrSlicePointerInvalid is ErrPointerNotInRange for slice and string
	// base pointers.
	ErrSlicePointerInvalid = errors.New("relo: slice pointer not in range")
	// ErrUnsupportedType is returned for types the walker cannot handle
	// structurally (map, chan, func, interface, unsafe.Pointer,
	// zero-sized types, malformed union tags).
	ErrUnsupportedType = errors.New("relo: unsupported type")
	// ErrRegionUnaligned is returned when a buffer does not satisfy the
	// strictest alignment of the root type.
	ErrRegionUnaligned = errors.New("relo: region is not sufficiently aligned")
	// ErrTooDeep is returned when a walk exceeds the recursion limit,
	// usually a sign of a cyclic graph.
	ErrTooDeep = errors.New("relo: graph too deep")
	// ErrNilRoot is returned when the root pointer is nil.
	ErrNilRoot = errors.New("relo: nil root")
)

// Bias is added to every sealed offset so that offset 0 stays
// distinguishable from a nil pointer. 8 also preserves max-primitive
// alignment of biased offsets. All parties to a region must agree on it.
const Bias uintptr = 8

// maxDepth bounds walk recursion. Graph depth equals recursion depth, so
// this is the depth at which a graph is assumed cyclic.
const maxDepth = 10_000

// Allocator is the capability Compact needs: raw memory of a given size
// and alignment. Bump semantics (monotonic, root at byte 0) are required
// by SealToBuffer; Compact alone works with any implementation.
type Allocator interface {
	Allocate(size, align uintptr) (unsafe.Pointer, error)
}

// ContainsPointer reports whether T transitively contains a pointer,
// slice or string. Seal and Unseal are no-ops on the bytes of
// pointer-free types.
func ContainsPointer[T any]() bool {
	return containsPointer(reflect.TypeOf((*T)(nil)).Elem())
}

// Compact deep-copies the graph rooted at root into a, returning a fresh
// root whose entire reachable sub-graph is owned by a. root is not
// modified.
func Compact[T any](a Allocator, root *T) (*T, error) {
	pr, err := planFor(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrNilRoot
	}
	c := compactor{alloc: a}
	p, err := c.dupe(pr, unsafe.Pointer(root))
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

// Seal rewrites, in place, every pointer reachable from root into a
// region-relative offset biased by Bias. Every pointer must already lie
// within region; one outside poisons the region and fails with
// ErrPointerNotInRange or ErrSlicePointerInvalid. The root pointer itself
// is left untouched.
func Seal[T any](root *T, region []byte) error {
	pr, err := planFor(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return err
	}
	if root == nil {
		return ErrNilRoot
	}
	if !pr.hasPtr {
		return nil
	}
	s := sealer{size: uintptr(len(region))}
	if len(region) > 0 {
		s.base = uintptr(unsafe.Pointer(&region[0]))
	}
	return s.seal(pr, unsafe.Pointer(root))
}

// Unseal is the inverse of Seal: every stored offset becomes an absolute
// pointer relative to &region[0]. root is the region's root payload,
// already expressed as an absolute pointer by the caller. Out-of-range
// offsets poison the region and fail.
func Unseal[T any](root *T, region []byte) error {
	pr, err := planFor(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return err
	}
	if root == nil {
		return ErrNilRoot
	}
	if !pr.hasPtr {
		return nil
	}
	u := unsealer{size: uintptr(len(region))}
	if len(region) > 0 {
		u.base = unsafe.Pointer(&region[0])
	}
	return u.unseal(pr, unsafe.Pointer(root))
}

// SealToBuffer compacts root into buf with a bump allocator, seals the
// result at base &buf[0] and returns the number of bytes used. The
// compacted root always lands at buf[0]. buf must satisfy the strictest
// alignment in T; arena.AlignedBytes produces such buffers.
func SealToBuffer[T any](root *T, buf []byte) (int, error) {
	pr, err := planFor(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return 0, err
	}
	if root == nil {
		return 0, ErrNilRoot
	}
	if len(buf) == 0 {
		return 0, ErrOutOfMemory
	}
	if !common.IsAligned(unsafe.Pointer(&buf[0]), pr.align) {
		return 0, ErrRegionUnaligned
	}
	bump := arena.NewBump(buf)
	croot, err := Compact(bump, root)
	if err != nil {
		return 0, err
	}
	if err := Seal(croot, buf[:bump.Used()]); err != nil {
		return 0, err
	}
	return bump.Used(), nil
}

// UnsealFromBuffer reinterprets buf[0] as a sealed T, unseals it in place
// and compacts the now-usable graph into a, so the returned root outlives
// buf. The buffer is left in sealed form again afterwards, free to be
// reused or discarded.
func UnsealFromBuffer[T any](buf []byte, a Allocator) (*T, error) {
	pr, err := planFor(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	if uintptr(len(buf)) < pr.size {
		return nil, ErrPointerNotInRange
	}
	if !common.IsAligned(unsafe.Pointer(&buf[0]), pr.align) {
		return nil, ErrRegionUnaligned
	}
	root := (*T)(unsafe.Pointer(&buf[0]))
	if err := Unseal(root, buf); err != nil {
		return nil, err
	}
	out, err := Compact(a, root)
	if err != nil {
		return nil, err
	}
	if err := Seal(root, buf); err != nil {
		return nil, err
	}
	return out, nil
}
