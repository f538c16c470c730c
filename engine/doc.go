// Package engine emits call sites for runtime entries and executes them on
// wazero.
//
// Each call site is a small wasm module whose single export, "call", has
// the register-class signature of its entry. The stub imports its target
// from a host module that exposes every registry entry by name, a
// "safepoint" poll and one view of the interpreted call entry per
// signature shape:
//
//	general, direct:   call $safepoint; local.get ...; call $Entry
//	leaf, direct:      local.get ...; call $Entry
//	any, redirect:     i64.const <address>; local.get ...; call $InterpretCall.<class><argc>
//
// Host functions run through the Invoker, which also serves callers that
// do not go through wasm:
//
//	reg, _ := entry.NewBuilder().Add(addEntry).Build()
//	e, _ := engine.New(ctx, reg, nil, engine.DefaultConfig())
//	site, _ := e.CompileCallSite(ctx, addEntry, engine.SiteOptions{})
//	res, _ := site.Call(ctx, nil, 2, 3) // res.Value == 5
package engine
