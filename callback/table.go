package callback

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

// Kind is the dispatch mode of a callback.
type Kind uint8

const (
	// KindSync callbacks run on the calling thread inside their isolate.
	KindSync Kind = iota
	// KindAsync callbacks are posted to their isolate's mailbox.
	KindAsync
	// KindIsolateGroupShared callbacks run on the calling thread inside
	// the group's shared isolate.
	KindIsolateGroupShared
	// KindInvalid is reported for trampolines that resolve to nothing.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	case KindIsolateGroupShared:
		return "isolate_group_shared"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Metadata is what a trampoline resolves to.
type Metadata struct {
	Isolate    *isolate.Isolate
	EntryPoint nativebridge.Address
	Kind       Kind
}

// Options configures trampoline allocation.
type Options struct {
	// Base is the address of the first trampoline.
	Base nativebridge.Address
	// Stride is the distance between consecutive trampolines.
	Stride uintptr
	// PageSize is the number of trampolines allocated at once.
	PageSize int
}

// DefaultOptions returns the default trampoline layout.
func DefaultOptions() Options {
	return Options{
		Base:     0x7f0000000000,
		Stride:   16,
		PageSize: 64,
	}
}

type slot struct {
	meta  Metadata
	valid bool
}

// Table allocates trampolines and maps them back to their metadata.
// Trampoline addresses are stable for the life of the callback; freed slots
// are reused.
type Table struct {
	slots    []slot
	freeList []int
	opts     Options
	live     int
	mu       sync.RWMutex
}

// NewTable creates an empty table.
func NewTable(opts Options) (*Table, error) {
	if opts.Base == 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "callback base address must be non-zero")
	}
	if opts.Stride == 0 || opts.PageSize <= 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "callback stride and page size must be positive")
	}
	return &Table{opts: opts}, nil
}

// Create allocates a trampoline that resolves to entryPoint in iso.
// Isolate-group-shared callbacks resolve to the shared isolate of iso's
// group.
func (t *Table) Create(iso *isolate.Isolate, entryPoint nativebridge.Address, kind Kind) (nativebridge.Address, error) {
	if iso == nil {
		return 0, errors.InvalidInput(errors.PhaseCallback, "callback without isolate")
	}
	if entryPoint == 0 {
		return 0, errors.InvalidInput(errors.PhaseCallback, "callback without entry point")
	}
	if kind >= KindInvalid {
		return 0, errors.InvalidInput(errors.PhaseCallback, "invalid callback kind "+kind.String())
	}
	if kind == KindIsolateGroupShared {
		iso = iso.Group().SharedIsolate()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.freeList) == 0 {
		t.growLocked()
	}
	idx := t.freeList[len(t.freeList)-1]
	t.freeList = t.freeList[:len(t.freeList)-1]
	t.slots[idx] = slot{
		meta:  Metadata{Isolate: iso, EntryPoint: entryPoint, Kind: kind},
		valid: true,
	}
	t.live++

	tramp := t.addressOf(idx)
	Logger().Debug("callback created",
		zap.Stringer("trampoline", tramp),
		zap.Stringer("entry_point", entryPoint),
		zap.Stringer("kind", kind),
		zap.String("isolate", iso.Name()),
	)
	return tramp, nil
}

// growLocked adds one page of free slots, lowest address handed out first.
func (t *Table) growLocked() {
	start := len(t.slots)
	t.slots = append(t.slots, make([]slot, t.opts.PageSize)...)
	for i := len(t.slots) - 1; i >= start; i-- {
		t.freeList = append(t.freeList, i)
	}
}

func (t *Table) addressOf(idx int) nativebridge.Address {
	return t.opts.Base + nativebridge.Address(uintptr(idx)*t.opts.Stride)
}

func (t *Table) indexOf(tramp nativebridge.Address) (int, bool) {
	if tramp < t.opts.Base {
		return 0, false
	}
	off := uintptr(tramp - t.opts.Base)
	if off%t.opts.Stride != 0 {
		return 0, false
	}
	n := off / t.opts.Stride
	if n >= uintptr(len(t.slots)) || !t.slots[n].valid {
		return 0, false
	}
	return int(n), true
}

// Lookup returns the metadata of a live trampoline.
func (t *Table) Lookup(tramp nativebridge.Address) (Metadata, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.indexOf(tramp)
	if !ok {
		return Metadata{}, false
	}
	return t.slots[idx].meta, true
}

// Delete frees a trampoline. Its address may be handed out again.
func (t *Table) Delete(tramp nativebridge.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.indexOf(tramp)
	if !ok {
		return errors.NotFound(errors.PhaseCallback, "trampoline", tramp.String())
	}
	t.freeLocked(idx)
	return nil
}

// DeleteAll frees every trampoline owned by iso. It runs on isolate
// shutdown and returns the number freed.
func (t *Table) DeleteAll(iso *isolate.Isolate) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].valid && t.slots[i].meta.Isolate == iso {
			t.freeLocked(i)
			n++
		}
	}
	if n > 0 {
		Logger().Debug("callbacks deleted", zap.String("isolate", iso.Name()), zap.Int("count", n))
	}
	return n
}

func (t *Table) freeLocked(idx int) {
	t.slots[idx] = slot{}
	t.freeList = append(t.freeList, idx)
	t.live--
}

// Len returns the number of live trampolines.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Message is posted to an isolate's mailbox for an asynchronous callback.
type Message struct {
	Args       []uint64
	Trampoline nativebridge.Address
	EntryPoint nativebridge.Address
}

// PostAsync delivers an asynchronous callback invocation to its isolate.
func (t *Table) PostAsync(ctx context.Context, tramp nativebridge.Address, args []uint64) error {
	m, ok := t.Lookup(tramp)
	if !ok {
		return errors.NotFound(errors.PhaseCallback, "trampoline", tramp.String())
	}
	if m.Kind != KindAsync {
		return errors.New(errors.PhaseCallback, errors.KindContract).
			Value(tramp).
			Detail("trampoline %s is %s, not async", tramp, m.Kind).
			Build()
	}
	return m.Isolate.Post(ctx, Message{Trampoline: tramp, EntryPoint: m.EntryPoint, Args: args})
}
