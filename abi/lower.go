package abi

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/memory"
)

// ViewSource yields a view bound to the current memory buffer.
// *memory.Binding implements it.
type ViewSource interface {
	View() (*memory.View, error)
}

// Lowerer writes host values into guest memory. Allocation may grow the
// guest memory, so every write fetches a freshly validated view.
type Lowerer struct {
	ctx   context.Context
	src   ViewSource
	alloc Allocator
}

// NewLowerer returns a lowerer. src and alloc may be nil when only scalars
// are lowered.
func NewLowerer(ctx context.Context, src ViewSource, alloc Allocator) *Lowerer {
	return &Lowerer{ctx: ctx, src: src, alloc: alloc}
}

func (l *Lowerer) view(path []string) (*memory.View, error) {
	if l.src == nil {
		return nil, errors.New(errors.PhaseLower, errors.KindNotFound).
			Path(path...).
			Detail("lowering needs linear memory").
			Build()
	}
	return l.src.View()
}

func (l *Lowerer) allocate(size, align uint32, path []string) (uint32, error) {
	if l.alloc == nil {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align, fmt.Errorf("no allocator at %v", path))
	}
	return l.alloc.Alloc(l.ctx, size, align)
}

// LowerParams flattens args for a call. When the params flatten to more than
// MaxFlatParams values they are stored as a tuple in memory and a single
// pointer is returned.
func (l *Lowerer) LowerParams(types []*Type, args []any) ([]uint64, error) {
	if len(args) != len(types) {
		return nil, errors.InvalidInput(errors.PhaseLower,
			fmt.Sprintf("expected %d arguments, got %d", len(types), len(args)))
	}

	n := 0
	for _, t := range types {
		n += len(t.flat)
	}

	if n <= MaxFlatParams {
		flat := make([]uint64, 0, n)
		for i, t := range types {
			words, err := l.lowerFlat(t, args[i], []string{fmt.Sprintf("arg%d", i)})
			if err != nil {
				return nil, err
			}
			flat = append(flat, words...)
		}
		return flat, nil
	}

	tuple := Tuple(types...)
	ptr, err := l.allocate(tuple.size, tuple.align, nil)
	if err != nil {
		return nil, err
	}
	for i, f := range tuple.fields {
		if err := l.store(f.Type, args[i], ptr+f.Offset, []string{fmt.Sprintf("arg%d", i)}); err != nil {
			return nil, err
		}
	}
	return []uint64{uint64(ptr)}, nil
}

// LowerFlat converts v to the flat core values of t.
func (l *Lowerer) LowerFlat(t *Type, v any) ([]uint64, error) {
	return l.lowerFlat(t, v, nil)
}

func (l *Lowerer) lowerFlat(t *Type, v any, path []string) ([]uint64, error) {
	switch t.kind {
	case KindString:
		ptr, n, err := l.storeString(v, t, path)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(ptr), uint64(n)}, nil
	case KindList:
		ptr, n, err := l.storeList(t, v, path)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(ptr), uint64(n)}, nil
	case KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(path, v, t)
		}
		flat := make([]uint64, 0, len(t.flat))
		for _, f := range t.fields {
			fv, ok := m[f.Name]
			if !ok {
				return nil, missingField(path, f.Name)
			}
			words, err := l.lowerFlat(f.Type, fv, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			flat = append(flat, words...)
		}
		return flat, nil
	case KindVariant:
		disc, payload, err := variantCase(t, v, path)
		if err != nil {
			return nil, err
		}
		flat := make([]uint64, len(t.flat))
		flat[0] = uint64(disc)
		if c := t.cases[disc]; c.Type != nil {
			words, err := l.lowerFlat(c.Type, payload, append(path, c.Name))
			if err != nil {
				return nil, err
			}
			copy(flat[1:], words)
		}
		return flat, nil
	default:
		w, err := scalarWord(t, v, path)
		if err != nil {
			return nil, err
		}
		return []uint64{w}, nil
	}
}

// Store writes v at offset in the layout of t.
func (l *Lowerer) Store(t *Type, v any, offset uint32) error {
	return l.store(t, v, offset, nil)
}

func (l *Lowerer) store(t *Type, v any, offset uint32, path []string) error {
	switch t.kind {
	case KindString, KindList:
		var ptr, n uint32
		var err error
		if t.kind == KindString {
			ptr, n, err = l.storeString(v, t, path)
		} else {
			ptr, n, err = l.storeList(t, v, path)
		}
		if err != nil {
			return err
		}
		view, err := l.view(path)
		if err != nil {
			return err
		}
		if err := view.WriteU32(offset, ptr); err != nil {
			return lowerErr(err, path)
		}
		return lowerErr(view.WriteU32(offset+4, n), path)
	case KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, v, t)
		}
		for _, f := range t.fields {
			fv, ok := m[f.Name]
			if !ok {
				return missingField(path, f.Name)
			}
			if err := l.store(f.Type, fv, offset+f.Offset, append(path, f.Name)); err != nil {
				return err
			}
		}
		return nil
	case KindVariant:
		disc, payload, err := variantCase(t, v, path)
		if err != nil {
			return err
		}
		if c := t.cases[disc]; c.Type != nil {
			if err := l.store(c.Type, payload, offset+t.payloadOffset, append(path, c.Name)); err != nil {
				return err
			}
		}
		view, err := l.view(path)
		if err != nil {
			return err
		}
		switch t.discSize {
		case 1:
			err = view.WriteU8(offset, uint8(disc))
		case 2:
			err = view.WriteU16(offset, uint16(disc))
		default:
			err = view.WriteU32(offset, disc)
		}
		return lowerErr(err, path)
	default:
		w, err := scalarWord(t, v, path)
		if err != nil {
			return err
		}
		view, err := l.view(path)
		if err != nil {
			return err
		}
		switch t.size {
		case 1:
			err = view.WriteU8(offset, uint8(w))
		case 2:
			err = view.WriteU16(offset, uint16(w))
		case 4:
			err = view.WriteU32(offset, uint32(w))
		default:
			err = view.WriteU64(offset, w)
		}
		return lowerErr(err, path)
	}
}

func (l *Lowerer) storeString(v any, t *Type, path []string) (uint32, uint32, error) {
	s, ok := v.(string)
	if !ok {
		return 0, 0, mismatch(path, v, t)
	}
	if len(s) == 0 {
		return 0, 0, nil
	}
	if len(s) > MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseLower, path, len(s), "string")
	}
	ptr, err := l.allocate(uint32(len(s)), 1, path)
	if err != nil {
		return 0, 0, err
	}
	view, err := l.view(path)
	if err != nil {
		return 0, 0, err
	}
	if err := view.WriteBytes(ptr, []byte(s)); err != nil {
		return 0, 0, lowerErr(err, path)
	}
	return ptr, uint32(len(s)), nil
}

func (l *Lowerer) storeList(t *Type, v any, path []string) (uint32, uint32, error) {
	elem := t.elem

	if b, ok := v.([]byte); ok && elem.kind == KindU8 {
		if len(b) == 0 {
			return 0, 0, nil
		}
		if len(b) > MaxListLength {
			return 0, 0, errors.Overflow(errors.PhaseLower, path, len(b), t.String())
		}
		ptr, err := l.allocate(uint32(len(b)), 1, path)
		if err != nil {
			return 0, 0, err
		}
		view, err := l.view(path)
		if err != nil {
			return 0, 0, err
		}
		return ptr, uint32(len(b)), lowerErr(view.WriteBytes(ptr, b), path)
	}

	elems, err := listElems(t, v, path)
	if err != nil {
		return 0, 0, err
	}
	if len(elems) == 0 {
		return 0, 0, nil
	}
	if len(elems) > MaxListLength {
		return 0, 0, errors.Overflow(errors.PhaseLower, path, len(elems), t.String())
	}
	n := uint32(len(elems))
	total, ok := safeMul(n, elem.size)
	if !ok {
		return 0, 0, errors.Overflow(errors.PhaseLower, path, len(elems), t.String())
	}
	ptr, err := l.allocate(total, elem.align, path)
	if err != nil {
		return 0, 0, err
	}
	for i, e := range elems {
		if err := l.store(elem, e, ptr+uint32(i)*elem.size, append(path, fmt.Sprintf("[%d]", i))); err != nil {
			return 0, 0, err
		}
	}
	return ptr, n, nil
}

func missingField(path []string, name string) error {
	return errors.New(errors.PhaseLower, errors.KindTypeMismatch).
		Path(path...).
		Detail("required field %q not found", name).
		Build()
}

func lowerErr(err error, path []string) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Phase == errors.PhaseMemory {
		e.Phase = errors.PhaseLower
		if len(e.Path) == 0 && len(path) > 0 {
			e.Path = append([]string(nil), path...)
		}
	}
	return err
}
