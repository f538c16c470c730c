package deopt

import "sync/atomic"

// Function is the identity of a managed function. It tracks which code
// object new activations run.
type Function struct {
	name        string
	current     atomic.Pointer[Code]
	unoptimized atomic.Pointer[Code]
}

// NewFunction creates a function with no code attached.
func NewFunction(name string) *Function {
	return &Function{name: name}
}

func (f *Function) Name() string { return f.name }

// CurrentCode returns the code new activations of f execute.
func (f *Function) CurrentCode() *Code { return f.current.Load() }

// UnoptimizedCode returns the unoptimized code of f, or nil.
func (f *Function) UnoptimizedCode() *Code { return f.unoptimized.Load() }

// HasOptimizedCode reports whether f currently runs optimized code.
func (f *Function) HasOptimizedCode() bool {
	c := f.current.Load()
	return c != nil && c.optimized
}

// InstallOptimizedCode makes c the current code of f.
func (f *Function) InstallOptimizedCode(c *Code) {
	f.current.Store(c)
}

// SwitchToUnoptimizedCode makes the unoptimized code current again.
func (f *Function) SwitchToUnoptimizedCode() {
	if u := f.unoptimized.Load(); u != nil {
		f.current.Store(u)
	}
}

// Code is a compiled body of a function. Optimized code carries the
// metadata needed to rebuild unoptimized frames at each deopt-eligible
// return address.
type Code struct {
	function       *Function
	deopt          map[uint64]*Info
	numSlots       int
	optimized      bool
	forceOptimized bool
	dead           atomic.Bool
	invalidated    atomic.Bool
}

// CodeOption configures optimized code.
type CodeOption func(*Code)

// ForceOptimized marks code that has no unoptimized counterpart and is never
// deoptimized.
func ForceOptimized() CodeOption {
	return func(c *Code) { c.forceOptimized = true }
}

// NewUnoptimizedCode creates unoptimized code for fn with numSlots locals.
// The first unoptimized code created for a function becomes both its
// unoptimized and its current code.
func NewUnoptimizedCode(fn *Function, numSlots int) *Code {
	c := &Code{function: fn, numSlots: numSlots}
	if fn != nil && fn.unoptimized.CompareAndSwap(nil, c) {
		fn.current.CompareAndSwap(nil, c)
	}
	return c
}

// NewOptimizedCode creates optimized code for fn. infos maps return
// addresses inside the code to the metadata describing the equivalent
// unoptimized frames.
func NewOptimizedCode(fn *Function, numSlots int, infos map[uint64]*Info, opts ...CodeOption) *Code {
	c := &Code{
		function:  fn,
		numSlots:  numSlots,
		optimized: true,
		deopt:     make(map[uint64]*Info, len(infos)),
	}
	for pc, info := range infos {
		c.deopt[pc] = info
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Code) Function() *Function { return c.function }

func (c *Code) IsOptimized() bool { return c.optimized }

func (c *Code) IsForceOptimized() bool { return c.forceOptimized }

func (c *Code) NumSlots() int { return c.numSlots }

// DeoptInfoAt returns the metadata recorded for return address pc.
func (c *Code) DeoptInfoAt(pc uint64) (*Info, bool) {
	info, ok := c.deopt[pc]
	return info, ok
}

// IsAlive reports whether the code may still be entered. Deoptimized code
// is marked dead.
func (c *Code) IsAlive() bool { return !c.dead.Load() }

// Invalidate records that the assumptions the code was optimized under no
// longer hold. Frames running it are deoptimized when a lazy-deopt call
// returns into them.
func (c *Code) Invalidate() { c.invalidated.Store(true) }

func (c *Code) IsInvalidated() bool { return c.invalidated.Load() }

// Frame is one activation on a thread's stack.
type Frame struct {
	Code  *Code
	Slots []uint64
	FP    uint64
	PC    uint64
}

// IsOptimized reports whether the frame runs optimized code.
func (f *Frame) IsOptimized() bool {
	return f.Code != nil && f.Code.optimized
}

// Info describes how to rebuild the unoptimized frames equivalent to an
// optimized frame stopped at one return address. Frames are listed
// outermost first; inlined callees add one frame each.
type Info struct {
	Frames []FrameSpec
	Reason Reason
}

// FrameSpec describes one unoptimized frame to materialize.
type FrameSpec struct {
	Code  *Code
	Slots []Source
	PC    uint64
}

// SourceKind selects where a materialized slot value comes from.
type SourceKind uint8

const (
	SourceSlot SourceKind = iota
	SourceConstant
)

// Source is the origin of one unoptimized slot value.
type Source struct {
	Value uint64
	Index int
	Kind  SourceKind
}

// FromSlot copies the value of optimized slot i.
func FromSlot(i int) Source { return Source{Kind: SourceSlot, Index: i} }

// Constant materializes a value the optimizer folded away.
func Constant(v uint64) Source { return Source{Kind: SourceConstant, Value: v} }
