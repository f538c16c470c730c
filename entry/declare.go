package entry

import (
	nativebridge "github.com/wippyai/native-bridge"
)

// RuntimeFunction is the body of a general runtime entry. It reads its
// arguments from, and writes its result to, the native-arguments block.
type RuntimeFunction func(args *Arguments)

// LeafFunc is the set of Go signatures a word-class leaf entry may have.
type LeafFunc interface {
	func() uint64 |
		func(uint64) uint64 |
		func(uint64, uint64) uint64 |
		func(uint64, uint64, uint64) uint64
}

// FloatLeafFunc is the set of Go signatures a float-class leaf entry may
// have.
type FloatLeafFunc interface {
	func(float64) float64 |
		func(float64, float64) float64
}

// Option adjusts a general entry declaration.
type Option func(*Descriptor)

// NoLazyDeopt declares that the caller of the entry is never deoptimized on
// return, so call sites need no deopt metadata.
func NoLazyDeopt() Option {
	return func(d *Descriptor) { d.lazy = false }
}

// Define declares a general runtime entry taking argc arguments. General
// entries may trigger safepoints and default to allowing lazy deopt of
// their caller.
func Define(name string, argc int, fn RuntimeFunction, opts ...Option) *Descriptor {
	d := &Descriptor{
		name:    name,
		argc:    argc,
		lazy:    true,
		fn:      fn,
		invoke:  fn,
		address: nativebridge.AddressOf(fn),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefineLeaf declares a leaf runtime entry on the general register class.
// The arity is taken from the function type.
func DefineLeaf[F LeafFunc](name string, fn F) *Descriptor {
	d := &Descriptor{
		name:    name,
		leaf:    true,
		fn:      fn,
		address: nativebridge.AddressOf(fn),
	}

	switch f := any(fn).(type) {
	case func() uint64:
		d.argc = 0
		d.invoke = func(a *Arguments) { a.SetReturn(f()) }
	case func(uint64) uint64:
		d.argc = 1
		d.invoke = func(a *Arguments) { a.SetReturn(f(a.At(0))) }
	case func(uint64, uint64) uint64:
		d.argc = 2
		d.invoke = func(a *Arguments) { a.SetReturn(f(a.At(0), a.At(1))) }
	case func(uint64, uint64, uint64) uint64:
		d.argc = 3
		d.invoke = func(a *Arguments) { a.SetReturn(f(a.At(0), a.At(1), a.At(2))) }
	}
	return d
}

// DefineFloatLeaf declares a leaf runtime entry on the float register
// class. Only marshalling differs from DefineLeaf.
func DefineFloatLeaf[F FloatLeafFunc](name string, fn F) *Descriptor {
	d := &Descriptor{
		name:    name,
		leaf:    true,
		float:   true,
		fn:      fn,
		address: nativebridge.AddressOf(fn),
	}

	switch f := any(fn).(type) {
	case func(float64) float64:
		d.argc = 1
		d.invoke = func(a *Arguments) { a.SetFloatReturn(f(a.FloatAt(0))) }
	case func(float64, float64) float64:
		d.argc = 2
		d.invoke = func(a *Arguments) { a.SetFloatReturn(f(a.FloatAt(0), a.FloatAt(1))) }
	}
	return d
}
