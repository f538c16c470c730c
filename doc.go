// Package nativebridge implements the native call bridge of a managed-code
// execution engine: the fixed table of host-implemented runtime entries that
// generated or interpreted code calls into, the resolution of the address a
// call site branches to, deoptimization of optimized frames reachable from
// those call sites, and the resolution of foreign-function callback
// trampolines back to their isolate context.
//
// # Architecture Overview
//
//	nativebridge/      Root package with Address and RegisterClass
//	├── entry/         Entry descriptors, the registry and the entry-point resolver
//	├── manifest/      YAML manifest of runtime entries
//	├── builtin/       Stock runtime entries (generated from builtin/entries.yaml)
//	├── deopt/         Code/frame model, deopt metadata and the deoptimizer
//	├── isolate/       Isolate groups, mutator threads and safepoints
//	├── callback/      FFI callback trampolines and metadata lookup
//	├── engine/        wazero-backed call sites, host module and invoker
//	├── runtime/       High-level facade and options
//	├── errors/        Structured error types
//	└── cmd/           entrygen (code generator) and bridgectl (tooling CLI)
//
// # Quick Start
//
//	reg, err := builtin.NewRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := runtime.New(ctx, reg, runtime.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	thread := rt.Group().NewThread()
//	res, err := rt.Call(ctx, thread, "ModInt64", uint64(neg7), 3)
//
// # Declaring Entries
//
// Entries are declared once, each paired with a strongly typed Go function:
//
//	var addEntry = entry.DefineLeaf("Add", func(a, b uint64) uint64 {
//	    return a + b
//	})
//
// The arity of a leaf entry comes from its function type, so a descriptor
// can never disagree with the routine it points at.
//
// # Thread Safety
//
// A built Registry is immutable and safe for concurrent reads without
// locking. Deoptimization only mutates a thread's stack while that thread is
// parked at a safepoint or is the caller itself.
package nativebridge
