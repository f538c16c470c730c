package nativebridge

import (
	"reflect"
	"strconv"

	"github.com/tetratelabs/wazero/api"
)

// Address is an opaque native address. Zero is never a valid routine address.
type Address uintptr

// String renders the address in hex.
func (a Address) String() string {
	return "0x" + strconv.FormatUint(uint64(a), 16)
}

// AddressOf returns the code pointer of a Go function value.
// Returns 0 for nil or non-function values.
func AddressOf(fn any) Address {
	if fn == nil {
		return 0
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return 0
	}
	return Address(rv.Pointer())
}

// RegisterClass is the hardware register family carrying arguments and the
// return value of a call.
type RegisterClass uint8

const (
	ClassGeneral RegisterClass = iota
	ClassFloat
)

// ValueType maps the register class onto the wasm value type used by
// emitted call sites.
func (c RegisterClass) ValueType() api.ValueType {
	if c == ClassFloat {
		return api.ValueTypeF64
	}
	return api.ValueTypeI64
}

func (c RegisterClass) String() string {
	switch c {
	case ClassGeneral:
		return "general"
	case ClassFloat:
		return "float"
	default:
		return "class(" + strconv.Itoa(int(c)) + ")"
	}
}
