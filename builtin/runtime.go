package builtin

import (
	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
)

func stackOverflow(args *entry.Arguments) {
	args.Thread().CheckSafepoint()
}

func deoptimizeCaller(args *entry.Arguments) {
	d := deopt.FromContext(args.Context())
	if d == nil {
		args.Fail(errors.NotInitialized(errors.PhaseDeopt, "deoptimizer"))
		return
	}

	t := args.Thread()
	frame := t.TopFrame()
	if frame == nil || !frame.IsOptimized() {
		return
	}
	if err := d.DeoptimizeAt(t, frame.Code, frame); err != nil {
		args.Fail(err)
		return
	}
	args.SetReturn(1)
}

func deoptimizeFunctionsOnStack(args *entry.Arguments) {
	d := deopt.FromContext(args.Context())
	if d == nil {
		args.Fail(errors.NotInitialized(errors.PhaseDeopt, "deoptimizer"))
		return
	}

	n, err := d.DeoptimizeFunctionsOnStack(args.Thread())
	if err != nil {
		args.Fail(err)
		return
	}
	args.SetReturn(uint64(n))
}

// invalidateCallerCode stops new activations from entering the caller's
// optimized code. Activations already on the stack keep running it until
// they are deoptimized.
func invalidateCallerCode(args *entry.Arguments) {
	frame := args.Thread().TopFrame()
	if frame == nil || !frame.IsOptimized() || frame.Code.IsForceOptimized() {
		return
	}

	frame.Code.Invalidate()
	if fn := frame.Code.Function(); fn != nil && fn.CurrentCode() == frame.Code {
		fn.SwitchToUnoptimizedCode()
	}
	args.SetReturn(1)
}

func printStopMessage(args *entry.Arguments) {
	Logger().Info("stop message",
		zap.Uint64("message", args.At(0)),
		zap.Uint64("thread", args.Thread().ID()),
	)
}
