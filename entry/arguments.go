package entry

import (
	"context"
	"math"

	"github.com/wippyai/native-bridge/isolate"
)

// Arguments is the native-arguments block passed to a runtime entry: the
// raw argument words, the calling thread and the return slot.
type Arguments struct {
	ctx    context.Context
	thread *isolate.Thread
	err    error
	args   []uint64
	ret    uint64
}

func newArguments(ctx context.Context, thread *isolate.Thread, args []uint64) *Arguments {
	return &Arguments{ctx: ctx, thread: thread, args: args}
}

// Context returns the context of the call.
func (a *Arguments) Context() context.Context { return a.ctx }

// Thread returns the calling mutator thread. Leaf entries may run without
// one.
func (a *Arguments) Thread() *isolate.Thread { return a.thread }

func (a *Arguments) Count() int { return len(a.args) }

// At returns argument i as a machine word.
func (a *Arguments) At(i int) uint64 { return a.args[i] }

// FloatAt returns argument i reinterpreted as a float64.
func (a *Arguments) FloatAt(i int) float64 { return math.Float64frombits(a.args[i]) }

func (a *Arguments) SetReturn(v uint64) { a.ret = v }

func (a *Arguments) SetFloatReturn(v float64) { a.ret = math.Float64bits(v) }

// Return is the raw result word.
func (a *Arguments) Return() uint64 { return a.ret }

// Fail records err as the outcome of the call. The caller receives it in
// place of the return value.
func (a *Arguments) Fail(err error) { a.err = err }

func (a *Arguments) Err() error { return a.err }
