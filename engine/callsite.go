package engine

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

// SiteOptions describes the code a call site is emitted into.
type SiteOptions struct {
	// Caller is the code containing the call. Nil for calls made from
	// outside managed code.
	Caller *deopt.Code
	// ReturnPC is the return address recorded in the caller frame.
	ReturnPC uint64
}

// Result is the outcome of a runtime call.
type Result struct {
	Value uint64
	// Deoptimized reports that the caller frame was replaced by
	// unoptimized frames during or after the call.
	Deoptimized bool
}

// Float returns Value as a float64.
func (r Result) Float() float64 { return api.DecodeF64(r.Value) }

// CallSite is a compiled call sequence for one runtime entry.
type CallSite struct {
	desc       *entry.Descriptor
	module     api.Module
	fn         api.Function
	site       SiteOptions
	entryPoint nativebridge.Address
	wasm       []byte
}

// CompileCallSite emits and instantiates the stub for a call to d from
// opts.Caller. A lazily deoptimizable entry called from optimized code
// needs deopt metadata at the return address.
func (e *Engine) CompileCallSite(ctx context.Context, d *entry.Descriptor, opts SiteOptions) (*CallSite, error) {
	if e.closed.Load() {
		return nil, errors.NotInitialized(errors.PhaseEmit, "engine")
	}
	if d == nil {
		return nil, errors.InvalidInput(errors.PhaseEmit, "nil descriptor")
	}
	if reg := e.resolver.Registry(); reg != nil {
		if got, ok := reg.Lookup(d.Name()); !ok || got != d {
			return nil, errors.NotFound(errors.PhaseEmit, "runtime entry", d.Name())
		}
	}
	if c := opts.Caller; d.CanLazyDeopt() && c != nil && c.IsOptimized() && !c.IsForceOptimized() {
		if _, ok := c.DeoptInfoAt(opts.ReturnPC); !ok {
			return nil, errors.New(errors.PhaseEmit, errors.KindContract).
				Entry(d.Name()).
				Value(opts.ReturnPC).
				Detail("optimized caller has no deopt metadata at return pc=%d", opts.ReturnPC).
				Build()
		}
	}

	ep := e.resolver.GetEntryPoint(d)
	plan := planStub(e.cfg.HostModule, d, ep)
	bin := plan.encode()
	debugf("stub %s: target=%s imports=%d bytes=%d", d.Name(), plan.target, len(plan.imports), len(bin))

	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.New(errors.PhaseEmit, errors.KindInvalidData).
			Entry(d.Name()).
			Cause(err).
			Detail("compile call site").
			Build()
	}

	n := e.sites.Add(1)
	name := fmt.Sprintf("site.%s.%d", d.Name(), n)
	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Instantiation("call site "+name, err)
	}

	Logger().Debug("call site compiled",
		zap.String("entry", d.Name()),
		zap.String("module", name),
		zap.Stringer("entry_point", ep),
		zap.String("target", plan.target),
	)

	return &CallSite{
		desc:       d,
		module:     mod,
		fn:         mod.ExportedFunction(stubExport),
		site:       opts,
		entryPoint: ep,
		wasm:       bin,
	}, nil
}

// Descriptor is the entry the site calls.
func (s *CallSite) Descriptor() *entry.Descriptor { return s.desc }

// EntryPoint is the address the site branches to.
func (s *CallSite) EntryPoint() nativebridge.Address { return s.entryPoint }

// Binary returns the encoded stub module.
func (s *CallSite) Binary() []byte { return s.wasm }

func (s *CallSite) Options() SiteOptions { return s.site }

// Call runs the stub on thread. Arguments and result are raw words; float
// entries take and return api.EncodeF64 bits.
func (s *CallSite) Call(ctx context.Context, thread *isolate.Thread, args ...uint64) (Result, error) {
	d := s.desc
	if len(args) != d.ArgumentCount() {
		return Result{}, errors.ArityMismatch(errors.PhaseInvoke, d.Name(), d.ArgumentCount(), len(args))
	}
	if !d.IsLeaf() && thread == nil {
		return Result{}, errors.Contract(errors.PhaseInvoke, d.Name(), "general entry called without a thread")
	}

	st := &callState{site: s.site}
	ctx = withCallState(ctx, st)
	if thread != nil {
		ctx = isolate.WithThread(ctx, thread)
	}

	out, err := s.fn.Call(ctx, args...)
	if err != nil {
		var be *errors.Error
		if stderrors.As(err, &be) {
			return Result{}, be
		}
		return Result{}, errors.Wrap(errors.PhaseInvoke, errors.KindInconsistent, err, "call site "+d.Name())
	}
	return Result{Value: out[0], Deoptimized: st.deoptimized}, nil
}

// Close releases the stub module.
func (s *CallSite) Close(ctx context.Context) error {
	return s.module.Close(ctx)
}
