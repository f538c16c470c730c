package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

// Invoker performs the runtime side of a call: the safepoint check, the
// branch through the resolver and lazy deoptimization of the caller on
// return. Compiled stubs reach it through the host module; Invoke is the
// same sequence without wasm.
type Invoker struct {
	resolver *entry.Resolver
	deopt    *deopt.Deoptimizer
}

func NewInvoker(r *entry.Resolver, d *deopt.Deoptimizer) *Invoker {
	return &Invoker{resolver: r, deopt: d}
}

// Invoke calls d from the code described by site. The caller's return
// address is recorded before the safepoint poll, so a thread parked there
// has a walkable top frame.
func (inv *Invoker) Invoke(ctx context.Context, thread *isolate.Thread, site SiteOptions, d *entry.Descriptor, args []uint64) (Result, error) {
	c, err := markCaller(thread, site)
	if err != nil {
		return Result{}, err
	}
	if err := inv.Safepoint(thread, d); err != nil {
		return Result{}, err
	}
	return inv.transfer(ctx, thread, site, c, d, args)
}

// Safepoint polls for a pending safepoint before a non-leaf call. Leaf
// calls skip it.
func (inv *Invoker) Safepoint(thread *isolate.Thread, d *entry.Descriptor) error {
	if d.IsLeaf() {
		return nil
	}
	if thread == nil {
		return errors.Contract(errors.PhaseSafepoint, d.Name(), "general entry called without a thread")
	}
	thread.CheckSafepoint()
	return nil
}

// callerFrame is the activation of site.Caller that a call returns to.
type callerFrame struct {
	fp uint64
	ok bool
}

// markCaller records site.ReturnPC on the thread's top frame when that
// frame runs site.Caller.
func markCaller(thread *isolate.Thread, site SiteOptions) (callerFrame, error) {
	if thread == nil || site.Caller == nil {
		return callerFrame{}, nil
	}
	top := thread.TopFrame()
	if top == nil || top.Code != site.Caller {
		return callerFrame{}, nil
	}
	if err := thread.SetReturnAddress(top.FP, site.ReturnPC); err != nil {
		return callerFrame{}, err
	}
	return callerFrame{fp: top.FP, ok: true}, nil
}

// Transfer branches to d and, when d can lazily deoptimize, replaces the
// caller frame if its code was invalidated during the call.
func (inv *Invoker) Transfer(ctx context.Context, thread *isolate.Thread, site SiteOptions, d *entry.Descriptor, args []uint64) (Result, error) {
	c, err := markCaller(thread, site)
	if err != nil {
		return Result{}, err
	}
	return inv.transfer(ctx, thread, site, c, d, args)
}

func (inv *Invoker) transfer(ctx context.Context, thread *isolate.Thread, site SiteOptions, c callerFrame, d *entry.Descriptor, args []uint64) (Result, error) {
	if inv.deopt != nil {
		ctx = deopt.WithDeoptimizer(ctx, inv.deopt)
	}
	if thread != nil {
		ctx = isolate.WithThread(ctx, thread)
	}

	v, err := inv.resolver.Call(ctx, thread, d, args)
	if err != nil {
		return Result{}, err
	}
	res := Result{Value: v}
	if !c.ok {
		return res, nil
	}

	frame := thread.FrameAt(c.fp)
	switch {
	case frame == nil:
		return res, errors.Inconsistent(errors.PhaseDeopt, "caller frame fp=%d lost during call to %s", c.fp, d.Name())
	case frame.Code != site.Caller:
		res.Deoptimized = true
	case d.CanLazyDeopt() && inv.deopt != nil && frame.IsOptimized() && frame.Code.IsInvalidated():
		if err := inv.deopt.DeoptimizeAt(thread, frame.Code, frame); err != nil {
			return res, err
		}
		res.Deoptimized = true
		Logger().Debug("lazy deopt on return",
			zap.String("entry", d.Name()),
			zap.Uint64("thread", thread.ID()),
			zap.Uint64("fp", c.fp),
		)
	}
	return res, nil
}
