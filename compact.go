package relo

import (
	"unsafe"

	"github.com/rawbytedev/relo/internal/common"
)

// sliceHeader mirrors the runtime representation of a slice.
// Copied from runtime/slice.go; relied on by seal/unseal too.
type sliceHeader struct {
	data unsafe.Pointer
	len  int
	cap  int
}

// stringHeader mirrors the runtime representation of a string.
type stringHeader struct {
	data unsafe.Pointer
	len  int
}

// compactor runs the dupe/repair walk pair. dupe copies one value behind a
// pointer into the allocator and repairs the copy; repair descends
// structurally and replaces every reference it meets with a dupe'd one.
// The source graph is only read.
type compactor struct {
	alloc Allocator
	depth int
}

func (c *compactor) dupe(pr *program, src unsafe.Pointer) (unsafe.Pointer, error) {
	c.depth++
	if c.depth > maxDepth {
		return nil, ErrTooDeep
	}
	dst, err := c.alloc.Allocate(pr.size, pr.align)
	if err != nil {
		return nil, err
	}
	common.Memcopy(dst, src, pr.size)
	if pr.hasPtr {
		if err := c.repair(pr, dst); err != nil {
			return nil, err
		}
	}
	c.depth--
	return dst, nil
}

// repair fixes up the references inside a freshly copied value at p so
// they point at allocator-owned copies. p itself is already inside the
// allocator.
func (c *compactor) repair(pr *program, p unsafe.Pointer) error {
	switch pr.kind {
	case opScalar:
		return nil

	case opStruct:
		for i := range pr.fields {
			f := &pr.fields[i]
			if err := c.repair(f.prog, unsafe.Add(p, f.off)); err != nil {
				return err
			}
		}
		return nil

	case opUnion:
		if f := pr.activeCase(p); f != nil && f.prog.hasPtr {
			return c.repair(f.prog, unsafe.Add(p, f.off))
		}
		return nil

	case opArray:
		for i := uintptr(0); i < pr.count; i++ {
			if err := c.repair(pr.elem, unsafe.Add(p, i*pr.elem.size)); err != nil {
				return err
			}
		}
		return nil

	case opPointer:
		q := *(*unsafe.Pointer)(p)
		if q == nil {
			return nil
		}
		fresh, err := c.dupe(pr.elem, q)
		if err != nil {
			return err
		}
		*(*unsafe.Pointer)(p) = fresh
		return nil

	case opSlice:
		return c.repairSlice(pr, p)

	case opString:
		h := (*stringHeader)(p)
		if h.data == nil && h.len == 0 {
			return nil
		}
		fresh, err := c.alloc.Allocate(uintptr(h.len), 1)
		if err != nil {
			return err
		}
		common.Memcopy(fresh, h.data, uintptr(h.len))
		h.data = fresh
		return nil
	}
	return nil
}

func (c *compactor) repairSlice(pr *program, p unsafe.Pointer) error {
	h := (*sliceHeader)(p)
	if h.data == nil && h.len == 0 {
		return nil
	}
	c.depth++
	if c.depth > maxDepth {
		return ErrTooDeep
	}
	elem := pr.elem
	n := uintptr(h.len)
	fresh, err := c.alloc.Allocate(n*elem.size, elem.align)
	if err != nil {
		return err
	}
	common.Memcopy(fresh, h.data, n*elem.size)
	// Swap the backing array in before descending so element repairs
	// mutate the copy, never the source.
	h.data = fresh
	h.cap = h.len
	if elem.hasPtr {
		for i := uintptr(0); i < n; i++ {
			if err := c.repair(elem, unsafe.Add(fresh, i*elem.size)); err != nil {
				return err
			}
		}
	}
	c.depth--
	return nil
}
