package entry

import (
	"context"

	"go.uber.org/zap"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

// Builder collects descriptors and validates them into a Registry.
type Builder struct {
	general []*Descriptor
	leaf    []*Descriptor
	built   bool
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Add routes each descriptor to the general or the leaf list, keeping
// declaration order.
func (b *Builder) Add(descs ...*Descriptor) *Builder {
	for _, d := range descs {
		if d == nil {
			continue
		}
		if d.leaf {
			b.leaf = append(b.leaf, d)
		} else {
			b.general = append(b.general, d)
		}
	}
	return b
}

// Build validates the collected descriptors and returns the immutable
// registry. A builder builds at most once.
func (b *Builder) Build() (*Registry, error) {
	if b.built {
		return nil, errors.Contract(errors.PhaseRegistry, "", "registry already built")
	}
	b.built = true

	r := &Registry{
		general: append([]*Descriptor(nil), b.general...),
		leaf:    append([]*Descriptor(nil), b.leaf...),
	}
	r.all = make([]*Descriptor, 0, len(r.general)+len(r.leaf))
	r.all = append(r.all, r.general...)
	r.all = append(r.all, r.leaf...)
	r.byName = make(map[string]*Descriptor, len(r.all))
	r.byAddr = make(map[nativebridge.Address]*Descriptor, len(r.all))

	for _, d := range r.all {
		if err := validate(d); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.name]; dup {
			return nil, errors.Duplicate(errors.PhaseRegistry, "runtime entry", d.name)
		}
		if prev, dup := r.byAddr[d.address]; dup {
			return nil, errors.New(errors.PhaseRegistry, errors.KindDuplicate).
				Entry(d.name).
				Value(d.address).
				Detail("routine address %s already used by %s", d.address, prev.name).
				Build()
		}
		if d.address == interpretCallEntry {
			return nil, errors.New(errors.PhaseRegistry, errors.KindDuplicate).
				Entry(d.name).
				Detail("routine address is the interpreted call entry").
				Build()
		}
		r.byName[d.name] = d
		r.byAddr[d.address] = d
	}

	Logger().Debug("registry built",
		zap.Int("general", len(r.general)),
		zap.Int("leaf", len(r.leaf)),
	)
	return r, nil
}

func validate(d *Descriptor) error {
	switch {
	case d.name == "":
		return errors.InvalidInput(errors.PhaseDeclare, "runtime entry with empty name")
	case d.address == 0:
		return errors.New(errors.PhaseDeclare, errors.KindInvalidInput).
			Entry(d.name).
			Detail("unresolved routine address").
			Build()
	case d.argc < 0:
		return errors.New(errors.PhaseDeclare, errors.KindInvalidInput).
			Entry(d.name).
			Value(d.argc).
			Detail("negative argument count %d", d.argc).
			Build()
	case d.leaf && d.lazy:
		return errors.Contract(errors.PhaseDeclare, d.name, "leaf entry cannot allow lazy deopt")
	}
	return nil
}

// Registry is the fixed set of runtime entries. It is never mutated after
// Build, so lookups need no locking.
type Registry struct {
	byName  map[string]*Descriptor
	byAddr  map[nativebridge.Address]*Descriptor
	general []*Descriptor
	leaf    []*Descriptor
	all     []*Descriptor
}

// Lookup finds a descriptor by name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// MustLookup is Lookup for names known at compile time. It panics on an
// undeclared name.
func (r *Registry) MustLookup(name string) *Descriptor {
	d, ok := r.byName[name]
	if !ok {
		panic(errors.NotFound(errors.PhaseRegistry, "runtime entry", name))
	}
	return d
}

// LookupAddress finds the descriptor whose routine lives at addr.
func (r *Registry) LookupAddress(addr nativebridge.Address) (*Descriptor, bool) {
	d, ok := r.byAddr[addr]
	return d, ok
}

// Entries returns the general entries followed by the leaf entries, each
// in declaration order.
func (r *Registry) Entries() []*Descriptor { return append([]*Descriptor(nil), r.all...) }

func (r *Registry) General() []*Descriptor { return append([]*Descriptor(nil), r.general...) }

func (r *Registry) Leaf() []*Descriptor { return append([]*Descriptor(nil), r.leaf...) }

func (r *Registry) Len() int { return len(r.all) }

// CallAddress branches to the routine at addr with args. A branch to the
// interpreted call entry takes the real target as its leading argument.
func (r *Registry) CallAddress(ctx context.Context, thread *isolate.Thread, addr nativebridge.Address, args []uint64) (uint64, error) {
	if addr == interpretCallEntry {
		if len(args) == 0 {
			return 0, errors.InvalidInput(errors.PhaseInvoke, "interpreted call without target address")
		}
		return InterpretCall(ctx, r, thread, nativebridge.Address(args[0]), args[1:])
	}

	d, ok := r.byAddr[addr]
	if !ok {
		return 0, errors.NotFound(errors.PhaseInvoke, "routine", addr.String())
	}
	if err := checkCall(d, thread, args); err != nil {
		return 0, err
	}

	a := newArguments(ctx, thread, args)
	d.invoke(a)
	return a.ret, a.err
}

func checkCall(d *Descriptor, thread *isolate.Thread, args []uint64) error {
	if len(args) != d.argc {
		return errors.ArityMismatch(errors.PhaseInvoke, d.name, d.argc, len(args))
	}
	if !d.leaf && thread == nil {
		return errors.Contract(errors.PhaseInvoke, d.name, "general entry called without a thread")
	}
	return nil
}
