package runtime

import (
	"context"

	"go.uber.org/zap"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/callback"
	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/engine"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

// Runtime ties a registry of runtime entries to the machinery that calls
// them: an isolate group, a deoptimizer, a callback table and an engine.
type Runtime struct {
	reg       *entry.Registry
	group     *isolate.Group
	deopt     *deopt.Deoptimizer
	callbacks *callback.Table
	engine    *engine.Engine
	opts      Options
}

// New builds a runtime around reg, which must already be built.
func New(ctx context.Context, reg *entry.Registry, opts Options) (*Runtime, error) {
	if reg == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "registry")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	group := isolate.NewGroup(opts.GroupName)
	d := deopt.New(group, deopt.WithTrace(opts.TraceDeoptimization))

	cb, err := callback.NewTable(opts.callbackOptions())
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(ctx, reg, d, opts.engineConfig())
	if err != nil {
		return nil, err
	}

	Logger().Info("runtime created",
		zap.String("group", opts.GroupName),
		zap.Stringer("mode", opts.Mode),
		zap.Stringer("tier", opts.Tier),
		zap.Int("general", len(reg.General())),
		zap.Int("leaf", len(reg.Leaf())),
	)

	return &Runtime{
		reg:       reg,
		group:     group,
		deopt:     d,
		callbacks: cb,
		engine:    eng,
		opts:      opts,
	}, nil
}

// Close shuts down every isolate and releases the engine.
func (r *Runtime) Close(ctx context.Context) error {
	for _, iso := range r.group.Isolates() {
		r.ShutdownIsolate(iso)
	}
	return r.engine.Close(ctx)
}

func (r *Runtime) Registry() *entry.Registry { return r.reg }

func (r *Runtime) Resolver() *entry.Resolver { return r.engine.Resolver() }

func (r *Runtime) Engine() *engine.Engine { return r.engine }

func (r *Runtime) Deoptimizer() *deopt.Deoptimizer { return r.deopt }

func (r *Runtime) Callbacks() *callback.Table { return r.callbacks }

func (r *Runtime) Group() *isolate.Group { return r.group }

func (r *Runtime) Options() Options { return r.opts }

func (r *Runtime) lookup(phase errors.Phase, name string) (*entry.Descriptor, error) {
	d, ok := r.reg.Lookup(name)
	if !ok {
		return nil, errors.NotFound(phase, "runtime entry", name)
	}
	return d, nil
}

// Call invokes the named entry from Go on thread. thread may be nil for
// leaf entries.
func (r *Runtime) Call(ctx context.Context, thread *isolate.Thread, name string, args ...uint64) (engine.Result, error) {
	return r.CallFrom(ctx, thread, engine.SiteOptions{}, name, args...)
}

// CallFrom is Call on behalf of the managed code described by site.
func (r *Runtime) CallFrom(ctx context.Context, thread *isolate.Thread, site engine.SiteOptions, name string, args ...uint64) (engine.Result, error) {
	d, err := r.lookup(errors.PhaseResolve, name)
	if err != nil {
		return engine.Result{}, err
	}
	return r.engine.Invoker().Invoke(ctx, thread, site, d, args)
}

// EntryPoint returns where a call site for the named entry branches.
func (r *Runtime) EntryPoint(name string) (nativebridge.Address, error) {
	d, err := r.lookup(errors.PhaseResolve, name)
	if err != nil {
		return 0, err
	}
	return r.engine.Resolver().GetEntryPoint(d), nil
}

// CompileCallSite emits a wasm call site for the named entry.
func (r *Runtime) CompileCallSite(ctx context.Context, name string, opts engine.SiteOptions) (*engine.CallSite, error) {
	d, err := r.lookup(errors.PhaseEmit, name)
	if err != nil {
		return nil, err
	}
	return r.engine.CompileCallSite(ctx, d, opts)
}

// DeoptimizeFunctionsOnStack deoptimizes every optimized frame of every
// thread in the group. requester may be nil when called from outside a
// mutator.
func (r *Runtime) DeoptimizeFunctionsOnStack(requester *isolate.Thread) (int, error) {
	if requester == nil {
		return r.deopt.DeoptimizeFunctionsOnStack(nil)
	}
	return r.deopt.DeoptimizeFunctionsOnStack(requester)
}

// NewIsolate creates an isolate in the runtime's group.
func (r *Runtime) NewIsolate(name string) *isolate.Isolate {
	return r.group.NewIsolate(name)
}

// ShutdownIsolate deletes the isolate's callbacks and shuts it down.
func (r *Runtime) ShutdownIsolate(iso *isolate.Isolate) {
	n := r.callbacks.DeleteAll(iso)
	r.group.RemoveIsolate(iso)
	Logger().Debug("isolate shut down", zap.String("isolate", iso.Name()), zap.Int("callbacks", n))
}

// NewThread registers a mutator thread with the group.
func (r *Runtime) NewThread() *isolate.Thread {
	return r.group.NewThread()
}

// CreateCallback allocates a trampoline that runs entryPoint for iso.
func (r *Runtime) CreateCallback(iso *isolate.Isolate, entryPoint nativebridge.Address, kind callback.Kind) (nativebridge.Address, error) {
	if iso == nil || iso.Group() != r.group {
		return 0, errors.WrongIsolate(errors.PhaseCallback, "isolate does not belong to the runtime's group")
	}
	return r.callbacks.Create(iso, entryPoint, kind)
}

// Dispatch is a resolved callback invocation.
type Dispatch struct {
	// Thread runs the callback. Nil for async callbacks.
	Thread     *isolate.Thread
	EntryPoint nativebridge.Address
	Kind       callback.Kind
	temporary  bool
}

// Done undoes the isolate switch made when the callback was resolved.
func (d Dispatch) Done() error {
	switch {
	case d.Kind == callback.KindSync && d.temporary:
		return callback.ExitTemporaryIsolate(d.Thread)
	case d.Kind == callback.KindIsolateGroupShared:
		return callback.ExitIsolateGroupSharedIsolate(d.Thread)
	}
	return nil
}

// ResolveCallback resolves a call to tramp made by caller. Async callbacks
// are posted to their isolate with args. Sync and shared callbacks leave
// the thread in the target isolate until Done is called.
func (r *Runtime) ResolveCallback(ctx context.Context, caller *isolate.Thread, tramp nativebridge.Address, args []uint64) (Dispatch, error) {
	wasTemporary := caller != nil && caller.InTemporaryIsolate()

	thread, ep, kind := r.callbacks.GetMetadata(caller, tramp)
	dispatch := Dispatch{Thread: thread, EntryPoint: ep, Kind: kind}

	switch kind {
	case callback.KindInvalid:
		return dispatch, errors.New(errors.PhaseCallback, errors.KindNotFound).
			Value(tramp).
			Detail("callback %s cannot run on this thread", tramp).
			Build()
	case callback.KindAsync:
		if err := r.callbacks.PostAsync(ctx, tramp, args); err != nil {
			return dispatch, err
		}
	case callback.KindSync:
		dispatch.temporary = !wasTemporary && thread.InTemporaryIsolate()
	}
	return dispatch, nil
}
