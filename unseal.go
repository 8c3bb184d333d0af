package relo

import "unsafe"

// unsealer is the mirror of sealer: each offset is rewritten into an
// absolute pointer first, then the walk descends through the now-valid
// address. Same poisoning semantics on failure.
type unsealer struct {
	base  unsafe.Pointer
	size  uintptr
	depth int
}

func (u *unsealer) resolve(v uintptr) (unsafe.Pointer, bool) {
	if v < Bias || v-Bias >= u.size {
		return nil, false
	}
	return unsafe.Add(u.base, v-Bias), true
}

func (u *unsealer) unseal(pr *program, p unsafe.Pointer) error {
	switch pr.kind {
	case opScalar:
		return nil

	case opStruct:
		for i := range pr.fields {
			f := &pr.fields[i]
			if err := u.unseal(f.prog, unsafe.Add(p, f.off)); err != nil {
				return err
			}
		}
		return nil

	case opUnion:
		if f := pr.activeCase(p); f != nil && f.prog.hasPtr {
			return u.unseal(f.prog, unsafe.Add(p, f.off))
		}
		return nil

	case opArray:
		for i := uintptr(0); i < pr.count; i++ {
			if err := u.unseal(pr.elem, unsafe.Add(p, i*pr.elem.size)); err != nil {
				return err
			}
		}
		return nil

	case opPointer:
		v := *(*uintptr)(p)
		if v == 0 {
			return nil
		}
		q, ok := u.resolve(v)
		if !ok {
			return ErrPointerNotInRange
		}
		*(*unsafe.Pointer)(p) = q
		if !pr.elem.hasPtr {
			return nil
		}
		u.depth++
		if u.depth > maxDepth {
			return ErrTooDeep
		}
		if err := u.unseal(pr.elem, q); err != nil {
			return err
		}
		u.depth--
		return nil

	case opSlice:
		h := (*sliceHeader)(p)
		v := *(*uintptr)(unsafe.Pointer(&h.data))
		if v == 0 && h.len == 0 {
			return nil
		}
		if h.len == 0 {
			// Sentinel sealed by the counterpart; any base works for an
			// empty slice, the region base keeps it in bounds.
			h.data = u.base
			return nil
		}
		q, ok := u.resolve(v)
		if !ok {
			return ErrSlicePointerInvalid
		}
		h.data = q
		if !pr.elem.hasPtr {
			return nil
		}
		u.depth++
		if u.depth > maxDepth {
			return ErrTooDeep
		}
		for i := 0; i < h.len; i++ {
			if err := u.unseal(pr.elem, unsafe.Add(q, uintptr(i)*pr.elem.size)); err != nil {
				return err
			}
		}
		u.depth--
		return nil

	case opString:
		h := (*stringHeader)(p)
		v := *(*uintptr)(unsafe.Pointer(&h.data))
		if v == 0 && h.len == 0 {
			return nil
		}
		if h.len == 0 {
			h.data = u.base
			return nil
		}
		q, ok := u.resolve(v)
		if !ok {
			return ErrSlicePointerInvalid
		}
		h.data = q
		return nil
	}
	return nil
}
