// Package runtime provides the high-level API of the native call bridge.
//
// # Quick Start
//
//	ctx := context.Background()
//	reg, err := builtin.NewRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt, err := runtime.New(ctx, reg, runtime.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Call an entry from Go
//	res, err := rt.Call(ctx, nil, "ModInt64", 7, 3)
//	fmt.Println(res.Value) // 1
//
//	// Or emit a wasm call site for it
//	site, err := rt.CompileCallSite(ctx, "ModInt64", engine.SiteOptions{})
//	res, err = site.Call(ctx, nil, 7, 3)
//
// # Modes
//
// Options.Mode picks where call sites branch:
//
//	direct    - straight to each routine
//	redirect  - to the shared interpreted call entry, which dispatches on
//	            the routine address
//
// Both produce the same results; redirect mode exists for hosts that run
// generated code under an interpreter.
//
// # Options
//
// Options load from YAML:
//
//	mode: redirect
//	tier: interpreter
//	trace_deoptimization: true
//	callback_page_size: 128
package runtime
