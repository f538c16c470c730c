package engine

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero/api"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

// callState carries the caller of the running stub into host functions.
type callState struct {
	site        SiteOptions
	caller      callerFrame
	marked      bool
	deoptimized bool
}

type callStateKey struct{}

func withCallState(ctx context.Context, st *callState) context.Context {
	return context.WithValue(ctx, callStateKey{}, st)
}

func callStateFrom(ctx context.Context) *callState {
	if st, ok := ctx.Value(callStateKey{}).(*callState); ok {
		return st
	}
	return &callState{}
}

// shape is one signature of the interpreted call entry.
type shape struct {
	class nativebridge.RegisterClass
	argc  int
}

func (e *Engine) instantiateHostModule(ctx context.Context) error {
	reg := e.resolver.Registry()
	builder := e.runtime.NewHostModuleBuilder(e.cfg.HostModule)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.safepointHandler), nil, nil).
		Export(safepointExport)

	shapes := make(map[shape]*entry.Descriptor)
	for _, d := range reg.Entries() {
		sig := signature(d)
		builder.NewFunctionBuilder().
			WithGoModuleFunction(e.entryHandler(d), sig.params, sig.results).
			Export(d.Name())

		k := shape{class: d.Class(), argc: d.ArgumentCount()}
		if _, ok := shapes[k]; !ok {
			shapes[k] = d
		}
	}

	keys := make([]shape, 0, len(shapes))
	for k := range shapes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].class != keys[j].class {
			return keys[i].class < keys[j].class
		}
		return keys[i].argc < keys[j].argc
	})
	for _, k := range keys {
		sig := interpretSignature(shapes[k])
		builder.NewFunctionBuilder().
			WithGoModuleFunction(e.interpretHandler(k.argc), sig.params, sig.results).
			Export(interpretCallExport(k.class, k.argc))
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Instantiation("host module "+e.cfg.HostModule, err)
	}
	return nil
}

// Host functions signal failure by panicking; wazero returns the panic
// value to the caller of the stub as an error.

func (e *Engine) safepointHandler(ctx context.Context, _ api.Module, _ []uint64) {
	thread := isolate.ThreadFromContext(ctx)
	if thread == nil {
		panic(errors.Contract(errors.PhaseSafepoint, "", "safepoint check without a thread"))
	}
	st := callStateFrom(ctx)
	c, err := markCaller(thread, st.site)
	if err != nil {
		panic(err)
	}
	st.caller, st.marked = c, true
	thread.CheckSafepoint()
}

func (e *Engine) entryHandler(d *entry.Descriptor) api.GoModuleFunc {
	argc := d.ArgumentCount()
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		e.transfer(ctx, d, stack, stack[:argc])
	}
}

func (e *Engine) interpretHandler(argc int) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		target := nativebridge.Address(stack[0])
		d, ok := e.resolver.Registry().LookupAddress(target)
		if !ok {
			panic(errors.NotFound(errors.PhaseInvoke, "routine", target.String()))
		}
		if d.ArgumentCount() != argc {
			panic(errors.ArityMismatch(errors.PhaseInvoke, d.Name(), d.ArgumentCount(), argc))
		}
		e.transfer(ctx, d, stack, stack[1:1+argc])
	}
}

func (e *Engine) transfer(ctx context.Context, d *entry.Descriptor, stack, args []uint64) {
	st := callStateFrom(ctx)
	thread := isolate.ThreadFromContext(ctx)

	// args aliases stack, which receives the result
	in := append([]uint64(nil), args...)
	// the caller frame marked at the safepoint may since have been replaced
	c := st.caller
	if !st.marked {
		var err error
		if c, err = markCaller(thread, st.site); err != nil {
			panic(err)
		}
	}
	res, err := e.invoker.transfer(ctx, thread, st.site, c, d, in)
	if err != nil {
		panic(err)
	}
	if res.Deoptimized {
		st.deoptimized = true
	}
	stack[0] = res.Value
}
