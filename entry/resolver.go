package entry

import (
	"context"
	"math"
	"reflect"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

// Mode selects where call sites branch.
type Mode uint8

const (
	// ModeDirect branches straight to each routine.
	ModeDirect Mode = iota
	// ModeRedirect branches every call to the shared interpreted call
	// entry, which dispatches on the target address using descriptor
	// metadata. Used when generated code runs under an interpreter or
	// simulator that cannot execute native routines directly.
	ModeRedirect
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeRedirect:
		return "redirect"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseMode parses "direct" or "redirect".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "direct", "":
		return ModeDirect, nil
	case "redirect":
		return ModeRedirect, nil
	default:
		return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(s).
			Detail("unknown resolver mode %q", s).
			Build()
	}
}

func (m Mode) MarshalYAML() (any, error) {
	return m.String(), nil
}

func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

var interpretCallEntry = nativebridge.AddressOf(InterpretCall)

// InterpretCallEntry is the address of the shared interpreted call entry.
func InterpretCallEntry() nativebridge.Address { return interpretCallEntry }

// Resolver answers which address a call site for a descriptor branches to.
// Its mode is fixed at construction.
type Resolver struct {
	reg  *Registry
	mode Mode
}

func NewResolver(reg *Registry, mode Mode) *Resolver {
	return &Resolver{reg: reg, mode: mode}
}

func (r *Resolver) Mode() Mode { return r.mode }

func (r *Resolver) Registry() *Registry { return r.reg }

// GetEntryPoint returns the routine address in direct mode and the
// interpreted call entry in redirect mode.
func (r *Resolver) GetEntryPoint(d *Descriptor) nativebridge.Address {
	if r.mode == ModeRedirect {
		return interpretCallEntry
	}
	return d.address
}

// GetEntryPointNoRedirect always returns the routine address.
func (r *Resolver) GetEntryPointNoRedirect(d *Descriptor) nativebridge.Address {
	return d.address
}

// Call branches to the entry point of d.
func (r *Resolver) Call(ctx context.Context, thread *isolate.Thread, d *Descriptor, args []uint64) (uint64, error) {
	ep := r.GetEntryPoint(d)
	if ep == interpretCallEntry {
		return InterpretCall(ctx, r.reg, thread, d.address, args)
	}
	return r.reg.CallAddress(ctx, thread, ep, args)
}

// InterpretCall is the shared interpreted call entry. It finds the
// descriptor for target, checks the argument count against its metadata,
// marshals args by register class and runs the routine.
func InterpretCall(ctx context.Context, reg *Registry, thread *isolate.Thread, target nativebridge.Address, args []uint64) (uint64, error) {
	if reg == nil {
		return 0, errors.NotInitialized(errors.PhaseInvoke, "registry")
	}
	d, ok := reg.LookupAddress(target)
	if !ok {
		return 0, errors.NotFound(errors.PhaseInvoke, "routine", target.String())
	}
	if err := checkCall(d, thread, args); err != nil {
		return 0, err
	}

	if ce := Logger().Check(zapcore.DebugLevel, "interpreted call"); ce != nil {
		ce.Write(
			zap.String("entry", d.name),
			zap.Stringer("target", target),
			zap.Stringer("class", d.Class()),
			zap.Int("argc", len(args)),
		)
	}

	if !d.leaf {
		a := newArguments(ctx, thread, args)
		d.fn.(RuntimeFunction)(a)
		return a.ret, a.err
	}

	in := make([]reflect.Value, len(args))
	for i, w := range args {
		if d.float {
			in[i] = reflect.ValueOf(math.Float64frombits(w))
		} else {
			in[i] = reflect.ValueOf(w)
		}
	}
	out := reflect.ValueOf(d.fn).Call(in)
	if d.float {
		return math.Float64bits(out[0].Float()), nil
	}
	return out[0].Uint(), nil
}
