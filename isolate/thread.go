package isolate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/errors"
)

// State is a mutator thread's safepoint state.
type State int32

const (
	// StateNative threads run outside managed code and never touch managed
	// frames, so safepoint operations do not wait for them.
	StateNative State = iota
	// StateManaged threads run managed code and must poll CheckSafepoint.
	StateManaged
	// StateParked threads are stopped at a safepoint.
	StateParked
)

func (s State) String() string {
	switch s {
	case StateNative:
		return "native"
	case StateManaged:
		return "managed"
	case StateParked:
		return "parked"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	framePointerBase = 0x1000
	frameStride      = 0x10
)

type entryKind uint8

const (
	enteredIsolate entryKind = iota
	enteredTemporary
	enteredShared
)

type entered struct {
	iso  *Isolate
	kind entryKind
}

// Thread is a mutator thread: a managed stack plus the isolate it is
// currently executing in.
type Thread struct {
	group   *Group
	frames  []*deopt.Frame
	entered []entered
	id      uint64
	nextFP  uint64
	state   State // guarded by group.mu
	mu      sync.Mutex
	parks   atomic.Uint64
}

func (t *Thread) ID() uint64 { return t.id }

func (t *Thread) Group() *Group { return t.group }

func (t *Thread) State() State {
	t.group.mu.Lock()
	defer t.group.mu.Unlock()
	return t.state
}

// Parks returns how many times the thread stopped at a safepoint.
func (t *Thread) Parks() uint64 { return t.parks.Load() }

// EnterManaged moves the thread into managed code, first waiting out any
// safepoint operation in progress.
func (t *Thread) EnterManaged() {
	g := t.group
	g.mu.Lock()
	g.waitSafepointLocked()
	t.state = StateManaged
	g.mu.Unlock()
}

// ExitManaged moves the thread back to native code.
func (t *Thread) ExitManaged() {
	g := t.group
	g.mu.Lock()
	t.state = StateNative
	g.cond.Broadcast()
	g.mu.Unlock()
}

// CheckSafepoint parks the thread while a safepoint operation is pending.
// Managed threads call it at every safepoint-capable call site.
func (t *Thread) CheckSafepoint() {
	g := t.group
	if !g.pending.Load() {
		return
	}

	g.mu.Lock()
	if t.state == StateManaged && g.pending.Load() {
		t.state = StateParked
		g.cond.Broadcast()
		g.waitSafepointLocked()
		t.state = StateManaged
		t.parks.Add(1)
	}
	g.mu.Unlock()
}

// PushFrame pushes an activation of code and returns it.
func (t *Thread) PushFrame(code *deopt.Code, slots []uint64) *deopt.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := &deopt.Frame{Code: code, Slots: slots, FP: t.allocFPLocked()}
	t.frames = append(t.frames, f)
	return f
}

// PopFrame removes the top activation. It returns nil on an empty stack.
func (t *Thread) PopFrame() *deopt.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) == 0 {
		return nil
	}
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return f
}

// TopFrame returns the innermost activation, or nil.
func (t *Thread) TopFrame() *deopt.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// FrameAt returns the activation with frame pointer fp, or nil.
func (t *Thread) FrameAt(fp uint64) *deopt.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(fp); i >= 0 {
		return t.frames[i]
	}
	return nil
}

// SetReturnAddress records pc as the return address of the frame at fp.
func (t *Thread) SetReturnAddress(fp, pc uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(fp)
	if i < 0 {
		return errors.InvalidInput(errors.PhaseSafepoint, fmt.Sprintf("no frame at fp=%#x", fp))
	}
	t.frames[i].PC = pc
	return nil
}

// Frames returns a bottom-to-top snapshot of the stack.
func (t *Thread) Frames() []*deopt.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*deopt.Frame(nil), t.frames...)
}

// ReplaceFrame swaps the frame at fp for replacement. The outermost
// replacement frame takes over fp; the rest get fresh frame pointers.
func (t *Thread) ReplaceFrame(fp uint64, replacement []*deopt.Frame) error {
	if len(replacement) == 0 {
		return errors.InvalidInput(errors.PhaseDeopt, "empty replacement")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(fp)
	if i < 0 {
		return errors.InvalidInput(errors.PhaseDeopt, fmt.Sprintf("no frame at fp=%#x on thread %d", fp, t.id))
	}

	replacement[0].FP = fp
	for _, f := range replacement[1:] {
		f.FP = t.allocFPLocked()
	}

	frames := make([]*deopt.Frame, 0, len(t.frames)+len(replacement)-1)
	frames = append(frames, t.frames[:i]...)
	frames = append(frames, replacement...)
	frames = append(frames, t.frames[i+1:]...)
	t.frames = frames
	return nil
}

func (t *Thread) allocFPLocked() uint64 {
	fp := t.nextFP
	t.nextFP += frameStride
	return fp
}

func (t *Thread) indexLocked(fp uint64) int {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if t.frames[i].FP == fp {
			return i
		}
	}
	return -1
}

// Isolate returns the isolate the thread is executing in, or nil.
func (t *Thread) Isolate() *Isolate {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entered) == 0 {
		return nil
	}
	return t.entered[len(t.entered)-1].iso
}

// InTemporaryIsolate reports whether the thread's current isolate was
// entered by EnterTemporaryIsolate.
func (t *Thread) InTemporaryIsolate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entered)
	return n > 0 && t.entered[n-1].kind == enteredTemporary
}

// EnterIsolate makes t the mutator of iso. The thread must not be in any
// isolate.
func (t *Thread) EnterIsolate(iso *Isolate) error {
	return t.enter(iso, enteredIsolate)
}

// ExitIsolate leaves the isolate entered by EnterIsolate.
func (t *Thread) ExitIsolate() error {
	return t.exit(enteredIsolate)
}

// EnterTemporaryIsolate enters iso for the duration of one callback
// invocation from a thread that was outside any isolate.
func (t *Thread) EnterTemporaryIsolate(iso *Isolate) error {
	return t.enter(iso, enteredTemporary)
}

// ExitTemporaryIsolate leaves the isolate entered by EnterTemporaryIsolate.
func (t *Thread) ExitTemporaryIsolate() error {
	return t.exit(enteredTemporary)
}

// EnterSharedIsolate switches the thread to the group's shared isolate. The
// isolate the thread was in is restored by ExitSharedIsolate.
func (t *Thread) EnterSharedIsolate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entered = append(t.entered, entered{iso: t.group.shared, kind: enteredShared})
	return nil
}

// ExitSharedIsolate leaves the group's shared isolate.
func (t *Thread) ExitSharedIsolate() error {
	return t.exit(enteredShared)
}

func (t *Thread) enter(iso *Isolate, kind entryKind) error {
	if iso == nil {
		return errors.InvalidInput(errors.PhaseSafepoint, "nil isolate")
	}
	if iso.group != t.group {
		return errors.WrongIsolate(errors.PhaseSafepoint,
			fmt.Sprintf("isolate %q belongs to another group", iso.name))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entered) > 0 {
		return errors.Contract(errors.PhaseSafepoint, "",
			fmt.Sprintf("thread %d already in isolate %q", t.id, t.entered[len(t.entered)-1].iso.name))
	}
	if err := iso.acquire(t); err != nil {
		return err
	}
	t.entered = append(t.entered, entered{iso: iso, kind: kind})
	return nil
}

func (t *Thread) exit(kind entryKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entered)
	if n == 0 || t.entered[n-1].kind != kind {
		return errors.Contract(errors.PhaseSafepoint, "",
			fmt.Sprintf("thread %d exits an isolate it did not enter", t.id))
	}
	top := t.entered[n-1]
	t.entered = t.entered[:n-1]
	if kind != enteredShared {
		top.iso.release(t)
	}
	return nil
}

type threadKey struct{}

// WithThread returns a context carrying the current mutator thread.
func WithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, t)
}

// ThreadFromContext returns the thread stored by WithThread, or nil.
func ThreadFromContext(ctx context.Context) *Thread {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(threadKey{}).(*Thread)
	return t
}
