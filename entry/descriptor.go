package entry

import (
	nativebridge "github.com/wippyai/native-bridge"
)

const (
	generalSymbolPrefix = "DRT_"
	leafSymbolPrefix    = "DLRT_"
)

// Descriptor is the immutable description of one runtime entry: the
// metadata a call site needs to emit a correct call sequence.
type Descriptor struct {
	fn      any
	invoke  func(*Arguments)
	name    string
	address nativebridge.Address
	argc    int
	leaf    bool
	float   bool
	lazy    bool
}

// Name is the symbolic name used by tooling and diagnostics.
func (d *Descriptor) Name() string { return d.name }

// Address is the native address of the routine.
func (d *Descriptor) Address() nativebridge.Address { return d.address }

// ArgumentCount is the number of machine-word arguments.
func (d *Descriptor) ArgumentCount() int { return d.argc }

// IsLeaf reports whether the routine never triggers a safepoint. Leaf calls
// skip the thread-state transition.
func (d *Descriptor) IsLeaf() bool { return d.leaf }

// IsFloat reports whether arguments and result travel in float registers.
func (d *Descriptor) IsFloat() bool { return d.float }

// CanLazyDeopt reports whether the caller frame may be deoptimized on
// return, so the call site must record deopt metadata.
func (d *Descriptor) CanLazyDeopt() bool { return d.lazy }

// Class is the register class of arguments and result.
func (d *Descriptor) Class() nativebridge.RegisterClass {
	if d.float {
		return nativebridge.ClassFloat
	}
	return nativebridge.ClassGeneral
}

// Symbol is the native symbol of the routine as it appears in disassembly.
func (d *Descriptor) Symbol() string {
	if d.leaf {
		return leafSymbolPrefix + d.name
	}
	return generalSymbolPrefix + d.name
}

func (d *Descriptor) String() string {
	return d.Symbol() + "@" + d.address.String()
}
