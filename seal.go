package relo

import "unsafe"

// sealer rewrites absolute pointers into region-relative biased offsets,
// in place. Child first: a pointer's target is walked while the pointer is
// still absolute, then the pointer itself is rewritten. A failed walk
// leaves the region partially rewritten; callers must discard it.
type sealer struct {
	base  uintptr
	size  uintptr
	depth int
}

func (s *sealer) inRange(addr uintptr) bool {
	return addr >= s.base && addr-s.base < s.size
}

func (s *sealer) seal(pr *program, p unsafe.Pointer) error {
	switch pr.kind {
	case opScalar:
		return nil

	case opStruct:
		for i := range pr.fields {
			f := &pr.fields[i]
			if err := s.seal(f.prog, unsafe.Add(p, f.off)); err != nil {
				return err
			}
		}
		return nil

	case opUnion:
		// The discriminant is plain bytes and is never rewritten.
		if f := pr.activeCase(p); f != nil && f.prog.hasPtr {
			return s.seal(f.prog, unsafe.Add(p, f.off))
		}
		return nil

	case opArray:
		for i := uintptr(0); i < pr.count; i++ {
			if err := s.seal(pr.elem, unsafe.Add(p, i*pr.elem.size)); err != nil {
				return err
			}
		}
		return nil

	case opPointer:
		q := *(*unsafe.Pointer)(p)
		if q == nil {
			return nil
		}
		addr := uintptr(q)
		if !s.inRange(addr) {
			return ErrPointerNotInRange
		}
		s.depth++
		if s.depth > maxDepth {
			return ErrTooDeep
		}
		if pr.elem.hasPtr {
			if err := s.seal(pr.elem, q); err != nil {
				return err
			}
		}
		s.depth--
		*(*uintptr)(p) = addr - s.base + Bias
		return nil

	case opSlice:
		h := (*sliceHeader)(p)
		if h.data == nil && h.len == 0 {
			return nil
		}
		if h.len == 0 {
			// Zero-length backing arrays may sit anywhere the allocator
			// liked; store the canonical sentinel instead of validating.
			*(*uintptr)(unsafe.Pointer(&h.data)) = Bias
			return nil
		}
		addr := uintptr(h.data)
		if !s.inRange(addr) {
			return ErrSlicePointerInvalid
		}
		s.depth++
		if s.depth > maxDepth {
			return ErrTooDeep
		}
		if pr.elem.hasPtr {
			for i := 0; i < h.len; i++ {
				if err := s.seal(pr.elem, unsafe.Add(h.data, uintptr(i)*pr.elem.size)); err != nil {
					return err
				}
			}
		}
		s.depth--
		*(*uintptr)(unsafe.Pointer(&h.data)) = addr - s.base + Bias
		return nil

	case opString:
		h := (*stringHeader)(p)
		if h.data == nil && h.len == 0 {
			return nil
		}
		if h.len == 0 {
			*(*uintptr)(unsafe.Pointer(&h.data)) = Bias
			return nil
		}
		addr := uintptr(h.data)
		if !s.inRange(addr) {
			return ErrSlicePointerInvalid
		}
		*(*uintptr)(unsafe.Pointer(&h.data)) = addr - s.base + Bias
		return nil
	}
	return nil
}
