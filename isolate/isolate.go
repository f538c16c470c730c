package isolate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/errors"
)

const mailboxSize = 64

// Isolate is an isolated heap within a group. At most one thread is its
// mutator at a time; the group's shared isolate admits any number.
type Isolate struct {
	group   *Group
	mutator *Thread
	mailbox chan any
	done    chan struct{}
	name    string
	mu      sync.Mutex
	closed  bool
	shared  bool
}

func newIsolate(g *Group, name string, shared bool) *Isolate {
	return &Isolate{
		group:   g,
		name:    name,
		shared:  shared,
		mailbox: make(chan any, mailboxSize),
		done:    make(chan struct{}),
	}
}

func (iso *Isolate) Name() string { return iso.name }

func (iso *Isolate) Group() *Group { return iso.group }

// IsShared reports whether iso is its group's shared isolate.
func (iso *Isolate) IsShared() bool { return iso.shared }

// Mutator returns the thread currently executing in iso, or nil.
func (iso *Isolate) Mutator() *Thread {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	return iso.mutator
}

// Post delivers msg to the isolate's mailbox, blocking while it is full.
func (iso *Isolate) Post(ctx context.Context, msg any) error {
	iso.mu.Lock()
	closed := iso.closed
	iso.mu.Unlock()
	if closed {
		return errors.New(errors.PhaseCallback, errors.KindNotFound).
			Detail("isolate %q is shut down", iso.name).
			Build()
	}

	select {
	case iso.mailbox <- msg:
		return nil
	case <-iso.done:
		return errors.New(errors.PhaseCallback, errors.KindNotFound).
			Detail("isolate %q is shut down", iso.name).
			Build()
	case <-ctx.Done():
		return errors.Wrap(errors.PhaseCallback, errors.KindInvalidInput, ctx.Err(), "post to isolate "+iso.name)
	}
}

// Messages returns the receive side of the mailbox.
func (iso *Isolate) Messages() <-chan any { return iso.mailbox }

// Done is closed when the isolate shuts down.
func (iso *Isolate) Done() <-chan struct{} { return iso.done }

// Shutdown stops accepting messages. Messages already queued stay readable.
func (iso *Isolate) Shutdown() {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.closed {
		return
	}
	iso.closed = true
	close(iso.done)
	Logger().Debug("isolate shut down", zap.String("isolate", iso.name))
}

func (iso *Isolate) acquire(t *Thread) error {
	if iso.shared {
		return nil
	}
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.closed {
		return errors.WrongIsolate(errors.PhaseSafepoint, fmt.Sprintf("isolate %q is shut down", iso.name))
	}
	if iso.mutator != nil && iso.mutator != t {
		return errors.WrongIsolate(errors.PhaseSafepoint,
			fmt.Sprintf("isolate %q is owned by thread %d", iso.name, iso.mutator.id))
	}
	iso.mutator = t
	return nil
}

func (iso *Isolate) release(t *Thread) {
	if iso.shared {
		return
	}
	iso.mu.Lock()
	if iso.mutator == t {
		iso.mutator = nil
	}
	iso.mu.Unlock()
}

func (iso *Isolate) String() string { return iso.name }
