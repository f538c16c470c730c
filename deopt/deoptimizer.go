package deopt

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/native-bridge/errors"
)

// Stack is a thread's stack as seen by the deoptimizer. The surrounding
// engine implements it; the deoptimizer only reads frames and asks for a
// frame to be replaced.
type Stack interface {
	ID() uint64
	// Frames returns a bottom-to-top snapshot of the activations.
	Frames() []*Frame
	// ReplaceFrame swaps the frame at fp for replacement, outermost first.
	ReplaceFrame(fp uint64, replacement []*Frame) error
}

// Mutators runs an operation while every mutator thread is stopped.
type Mutators interface {
	// RunAtSafepoint parks all mutators except requester (which may be nil)
	// and runs fn with every stack in the group.
	RunAtSafepoint(requester Stack, fn func(stacks []Stack))
}

// Stats counts deoptimization work.
type Stats struct {
	FramesDeoptimized  uint64
	FramesMaterialized uint64
	GlobalPasses       uint64
}

// Option configures a Deoptimizer.
type Option func(*Deoptimizer)

// WithTrace logs every deoptimization at info level instead of debug.
func WithTrace(on bool) Option {
	return func(d *Deoptimizer) { d.trace = on }
}

// Deoptimizer turns optimized frames back into unoptimized ones.
// Thread-safe; callers guarantee the target frames are not running.
type Deoptimizer struct {
	mutators     Mutators
	deoptimized  atomic.Uint64
	materialized atomic.Uint64
	passes       atomic.Uint64
	trace        bool
}

// New creates a deoptimizer for the mutators of one isolate group.
func New(m Mutators, opts ...Option) *Deoptimizer {
	d := &Deoptimizer{mutators: m}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stats returns a snapshot of the counters.
func (d *Deoptimizer) Stats() Stats {
	return Stats{
		FramesDeoptimized:  d.deoptimized.Load(),
		FramesMaterialized: d.materialized.Load(),
		GlobalPasses:       d.passes.Load(),
	}
}

// DeoptimizeAt replaces frame, an activation of optimized code on thread,
// with the equivalent unoptimized frames. The frame must be stable: its
// thread is parked at a safepoint or is the caller.
//
// Force-optimized code and frames that are already unoptimized are left
// alone. A non-nil error of kind KindInconsistent means the recorded deopt
// metadata cannot rebuild the frame; callers treat it as fatal.
func (d *Deoptimizer) DeoptimizeAt(thread Stack, code *Code, frame *Frame) error {
	if thread == nil || code == nil || frame == nil {
		return errors.InvalidInput(errors.PhaseDeopt, "thread, code and frame are required")
	}
	if frame.Code != code {
		return errors.New(errors.PhaseDeopt, errors.KindInvalidInput).
			Value(frame.FP).
			Detail("frame fp=%d does not run the given code", frame.FP).
			Build()
	}
	if !code.IsOptimized() || code.IsForceOptimized() {
		return nil
	}

	info, ok := code.DeoptInfoAt(frame.PC)
	if !ok {
		return errors.Inconsistent(errors.PhaseDeopt, "no deopt metadata for %s at pc=%d", functionName(code), frame.PC)
	}

	frames, err := materialize(frame, info)
	if err != nil {
		return err
	}

	if err := thread.ReplaceFrame(frame.FP, frames); err != nil {
		return errors.Wrap(errors.PhaseDeopt, errors.KindInconsistent, err, "replace optimized frame")
	}

	if fn := code.Function(); fn != nil && fn.CurrentCode() == code {
		fn.SwitchToUnoptimizedCode()
	}
	code.dead.Store(true)

	d.deoptimized.Add(1)
	d.materialized.Add(uint64(len(frames)))

	level := zapcore.DebugLevel
	if d.trace {
		level = zapcore.InfoLevel
	}
	if ce := Logger().Check(level, "deoptimized frame"); ce != nil {
		ce.Write(
			zap.Uint64("thread", thread.ID()),
			zap.Uint64("fp", frame.FP),
			zap.Uint64("pc", frame.PC),
			zap.String("function", functionName(code)),
			zap.Stringer("reason", info.Reason),
			zap.Int("frames", len(frames)),
		)
	}
	return nil
}

// DeoptimizeFunctionsOnStack stops every mutator of the group and
// deoptimizes each optimized frame on every stack. It returns the number of
// frames deoptimized and the first failure, which is fatal.
func (d *Deoptimizer) DeoptimizeFunctionsOnStack(requester Stack) (int, error) {
	if d.mutators == nil {
		return 0, errors.NotInitialized(errors.PhaseDeopt, "mutator set")
	}

	var (
		count    int
		firstErr error
	)
	d.mutators.RunAtSafepoint(requester, func(stacks []Stack) {
		for _, s := range stacks {
			for _, f := range s.Frames() {
				if !f.IsOptimized() || f.Code.IsForceOptimized() {
					continue
				}
				if err := d.DeoptimizeAt(s, f.Code, f); err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				count++
			}
		}
	})
	d.passes.Add(1)

	Logger().Debug("deoptimized functions on stack", zap.Int("frames", count))
	return count, firstErr
}

func materialize(frame *Frame, info *Info) ([]*Frame, error) {
	if len(info.Frames) == 0 {
		return nil, errors.Inconsistent(errors.PhaseDeopt, "deopt metadata at pc=%d describes no frames", frame.PC)
	}

	out := make([]*Frame, 0, len(info.Frames))
	for i, fs := range info.Frames {
		if fs.Code == nil || fs.Code.IsOptimized() {
			return nil, errors.Inconsistent(errors.PhaseDeopt, "frame %d of deopt metadata at pc=%d has no unoptimized code", i, frame.PC)
		}
		if len(fs.Slots) != fs.Code.NumSlots() {
			return nil, errors.Inconsistent(errors.PhaseDeopt, "frame %d of deopt metadata describes %d slots, code has %d",
				i, len(fs.Slots), fs.Code.NumSlots())
		}

		slots := make([]uint64, len(fs.Slots))
		for j, src := range fs.Slots {
			switch src.Kind {
			case SourceSlot:
				if src.Index < 0 || src.Index >= len(frame.Slots) {
					return nil, errors.Inconsistent(errors.PhaseDeopt, "slot %d of frame %d reads optimized slot %d of %d",
						j, i, src.Index, len(frame.Slots))
				}
				slots[j] = frame.Slots[src.Index]
			case SourceConstant:
				slots[j] = src.Value
			default:
				return nil, errors.Inconsistent(errors.PhaseDeopt, "slot %d of frame %d has unknown source kind %d", j, i, src.Kind)
			}
		}
		out = append(out, &Frame{Code: fs.Code, PC: fs.PC, Slots: slots})
	}
	return out, nil
}

func functionName(c *Code) string {
	if c.function == nil {
		return "<anonymous>"
	}
	return c.function.name
}

type deoptimizerKey struct{}

// WithDeoptimizer returns a context carrying d, so runtime entries can reach
// the deoptimizer of the group they run in.
func WithDeoptimizer(ctx context.Context, d *Deoptimizer) context.Context {
	return context.WithValue(ctx, deoptimizerKey{}, d)
}

// FromContext returns the deoptimizer stored by WithDeoptimizer, or nil.
func FromContext(ctx context.Context) *Deoptimizer {
	if ctx == nil {
		return nil
	}
	d, _ := ctx.Value(deoptimizerKey{}).(*Deoptimizer)
	return d
}
