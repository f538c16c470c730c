package isolate

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/deopt"
)

// Group is an isolate group: a set of isolates sharing code and a set of
// mutator threads that stop together at safepoints.
type Group struct {
	shared   *Isolate
	cond     *sync.Cond
	name     string
	threads  []*Thread
	isolates []*Isolate

	mu   sync.Mutex // guards threads, isolates and thread states
	opMu sync.Mutex // serializes safepoint operations

	nextThread atomic.Uint64
	pending    atomic.Bool
	safepoints atomic.Uint64
}

// NewGroup creates an isolate group with its shared isolate.
func NewGroup(name string) *Group {
	g := &Group{name: name}
	g.cond = sync.NewCond(&g.mu)
	g.shared = newIsolate(g, name+"/shared", true)
	return g
}

func (g *Group) Name() string { return g.name }

// SharedIsolate returns the isolate that isolate-group-shared callbacks run
// in.
func (g *Group) SharedIsolate() *Isolate { return g.shared }

// NewIsolate creates an isolate in the group.
func (g *Group) NewIsolate(name string) *Isolate {
	iso := newIsolate(g, name, false)
	g.mu.Lock()
	g.isolates = append(g.isolates, iso)
	g.mu.Unlock()
	Logger().Debug("isolate created", zap.String("group", g.name), zap.String("isolate", name))
	return iso
}

// Isolates returns the group's isolates, excluding the shared one.
func (g *Group) Isolates() []*Isolate {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Isolate(nil), g.isolates...)
}

// RemoveIsolate shuts iso down and forgets it.
func (g *Group) RemoveIsolate(iso *Isolate) {
	g.mu.Lock()
	for i, x := range g.isolates {
		if x == iso {
			g.isolates = append(g.isolates[:i], g.isolates[i+1:]...)
			break
		}
	}
	g.mu.Unlock()
	iso.Shutdown()
}

// NewThread registers a mutator thread. It starts in StateNative.
func (g *Group) NewThread() *Thread {
	t := &Thread{
		group:  g,
		id:     g.nextThread.Add(1),
		nextFP: framePointerBase,
	}
	g.mu.Lock()
	g.threads = append(g.threads, t)
	g.mu.Unlock()
	return t
}

// RemoveThread unregisters t. A pending safepoint no longer waits for it.
func (g *Group) RemoveThread(t *Thread) {
	g.mu.Lock()
	for i, x := range g.threads {
		if x == t {
			g.threads = append(g.threads[:i], g.threads[i+1:]...)
			break
		}
	}
	t.state = StateNative
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Threads returns the registered threads in creation order.
func (g *Group) Threads() []*Thread {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Thread(nil), g.threads...)
}

// SafepointCount returns the number of completed safepoint operations.
func (g *Group) SafepointCount() uint64 { return g.safepoints.Load() }

// SafepointPending reports whether a safepoint operation is waiting for, or
// holding, the group's managed threads.
func (g *Group) SafepointPending() bool { return g.pending.Load() }

// RunAtSafepoint stops every thread of the group other than requester and
// runs fn with all stacks. Threads in StateNative are not waited for; they
// park on their next EnterManaged. requester may be nil for operations
// started from outside the group.
//
// The requester is treated as safe while it waits for the operation lock,
// so two threads requesting at once do not deadlock. There is no
// cancellation: the call returns once fn has run.
func (g *Group) RunAtSafepoint(requester deopt.Stack, fn func(stacks []deopt.Stack)) {
	self, _ := requester.(*Thread)
	if self != nil && self.group != g {
		self = nil
	}

	prev := StateNative
	if self != nil {
		g.mu.Lock()
		prev = self.state
		self.state = StateNative
		g.cond.Broadcast()
		g.mu.Unlock()
	}

	g.opMu.Lock()

	g.mu.Lock()
	g.pending.Store(true)
	for g.hasRunningLocked(self) {
		g.cond.Wait()
	}
	stacks := make([]deopt.Stack, len(g.threads))
	for i, t := range g.threads {
		stacks[i] = t
	}
	g.mu.Unlock()

	fn(stacks)

	g.mu.Lock()
	g.pending.Store(false)
	g.cond.Broadcast()
	g.mu.Unlock()

	n := g.safepoints.Add(1)
	g.opMu.Unlock()

	Logger().Debug("safepoint operation complete",
		zap.String("group", g.name),
		zap.Int("threads", len(stacks)),
		zap.Uint64("count", n),
	)

	if self != nil && prev == StateManaged {
		self.EnterManaged()
	}
}

func (g *Group) hasRunningLocked(self *Thread) bool {
	for _, t := range g.threads {
		if t != self && t.state == StateManaged {
			return true
		}
	}
	return false
}

// waitSafepointLocked blocks while a safepoint operation is pending.
func (g *Group) waitSafepointLocked() {
	for g.pending.Load() {
		g.cond.Wait()
	}
}
