package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/abi"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/memory"
)

// ReallocExport is the allocator export used for lowering when present.
const ReallocExport = "cabi_realloc"

// Config describes an adapter.
type Config struct {
	// Func is the core export to invoke.
	Func wasmhost.Function
	// PostReturn is the resolved post-return export, or nil.
	PostReturn wasmhost.Function
	// Binding is the owning instance's memory binding; nil for instances
	// without memory.
	Binding *memory.Binding
	// Allocator serves argument lowering; nil when arguments are scalars.
	Allocator abi.Allocator
	Name      string
	Signature abi.Signature
}

// Adapter is a host-callable function. It holds the instance's binding and
// is not safe for concurrent use.
type Adapter struct {
	fn      wasmhost.Function
	post    wasmhost.Function
	binding *memory.Binding
	alloc   abi.Allocator
	log     *zap.Logger
	name    string
	sig     abi.Signature
}

func New(cfg Config) (*Adapter, error) {
	if cfg.Func == nil {
		return nil, errors.NotFound(errors.PhaseLink, "export", cfg.Name)
	}
	for i, p := range cfg.Signature.Params {
		if p == nil {
			return nil, errors.InvalidInput(errors.PhaseLink, fmt.Sprintf("%s: param %d has no type", cfg.Name, i))
		}
	}

	a := &Adapter{
		fn:      cfg.Func,
		post:    cfg.PostReturn,
		binding: cfg.Binding,
		alloc:   cfg.Allocator,
		name:    cfg.Name,
		sig:     cfg.Signature,
		log:     Logger().With(zap.String("export", cfg.Name)),
	}
	if a.post == nil {
		a.log.Debug("post-return missing",
			zap.String("declared", cfg.Signature.PostReturn))
	}
	return a, nil
}

// ForInstance builds the adapter for export name on inst. The post-return
// export is looked up by the signature's PostReturn name; a missing one is
// not an error. Arguments are lowered through cabi_realloc when the
// instance exports it.
func ForInstance(inst *linker.Instance, name string, sig abi.Signature) (*Adapter, error) {
	fn, ok := inst.Function(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLink, "export", inst.Name()+"#"+name)
	}

	cfg := Config{
		Func:      fn,
		Binding:   inst.Binding(),
		Name:      name,
		Signature: sig,
	}
	if sig.PostReturn != "" {
		if post, ok := inst.Function(sig.PostReturn); ok {
			cfg.PostReturn = post
		}
	}
	if realloc, ok := inst.Function(ReallocExport); ok {
		cfg.Allocator = abi.NewReallocAllocator(realloc)
	}
	return New(cfg)
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) Signature() abi.Signature {
	return a.sig
}

// Call lowers args, invokes the export, lifts the result and runs the
// post-return hook.
func (a *Adapter) Call(ctx context.Context, args ...any) (any, error) {
	flat, err := a.lower(ctx, args)
	if err != nil {
		return nil, err
	}

	raw, err := a.fn.Call(ctx, flat...)
	if err != nil {
		a.log.Debug("export trapped", zap.Error(err))
		return nil, errors.Trap(errors.PhaseCall, a.name, err)
	}

	value, liftErr := a.lift(raw)
	postErr := a.postReturn(ctx, raw)

	if liftErr != nil {
		if postErr != nil {
			a.log.Warn("post-return trapped after failed lift",
				zap.NamedError("lift", liftErr),
				zap.NamedError("post_return", postErr))
		}
		return nil, liftErr
	}
	if postErr != nil {
		return nil, postErr
	}
	return value, nil
}

func (a *Adapter) lower(ctx context.Context, args []any) ([]uint64, error) {
	if len(a.sig.Params) == 0 {
		if len(args) != 0 {
			return nil, errors.InvalidInput(errors.PhaseLower,
				fmt.Sprintf("%s takes no arguments, got %d", a.name, len(args)))
		}
		return nil, nil
	}
	var src abi.ViewSource
	if a.binding != nil {
		src = a.binding
	}
	return abi.NewLowerer(ctx, src, a.alloc).LowerParams(a.sig.Params, args)
}

func (a *Adapter) lift(raw []uint64) (any, error) {
	if a.sig.Result == nil {
		return nil, nil
	}
	return abi.LiftResult(a.sig.Result, a.sig.Convention, raw, a.reader())
}

// reader revalidates the binding after every call, including calls whose
// result is a direct scalar, so growth done by the guest is observed before
// the next lift or lower. Lifting never grows memory, so one view serves the
// whole decode.
func (a *Adapter) reader() abi.Reader {
	if a.binding == nil {
		return noMemory{err: errors.NotFound(errors.PhaseLift, "memory", "linear memory")}
	}
	v, err := a.binding.View()
	if err != nil {
		return noMemory{err: err}
	}
	return v
}

func (a *Adapter) postReturn(ctx context.Context, raw []uint64) error {
	if a.post == nil {
		return nil
	}
	if _, err := a.post.Call(ctx, raw...); err != nil {
		return errors.Trap(errors.PhasePostReturn, a.sig.PostReturn, err)
	}
	return nil
}

// noMemory fails every read; values that need no memory still lift.
type noMemory struct {
	err error
}

func (m noMemory) ReadU8(uint32) (uint8, error)             { return 0, m.err }
func (m noMemory) ReadU16(uint32) (uint16, error)           { return 0, m.err }
func (m noMemory) ReadU32(uint32) (uint32, error)           { return 0, m.err }
func (m noMemory) ReadU64(uint32) (uint64, error)           { return 0, m.err }
func (m noMemory) ReadBytes(uint32, uint32) ([]byte, error) { return nil, m.err }
