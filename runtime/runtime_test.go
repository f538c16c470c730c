package runtime

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/native-bridge/builtin"
	"github.com/wippyai/native-bridge/callback"
	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/engine"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

func newRuntime(t *testing.T, mode entry.Mode) *Runtime {
	t.Helper()
	reg, err := builtin.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	opts := DefaultOptions()
	opts.Mode = mode
	opts.Tier = engine.TierInterpreter

	ctx := context.Background()
	rt, err := New(ctx, reg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    func(Options) bool
		wantErr bool
	}{
		{
			name: "empty uses defaults",
			yaml: "",
			want: func(o Options) bool { return o == DefaultOptions() },
		},
		{
			name: "all fields",
			yaml: "mode: redirect\ntier: interpreter\nhost_module: rt\ntrace_deoptimization: true\ncallback_base: 4096\ncallback_page_size: 8\n",
			want: func(o Options) bool {
				return o.Mode == entry.ModeRedirect && o.Tier == engine.TierInterpreter &&
					o.HostModule == "rt" && o.TraceDeoptimization &&
					o.CallbackBase == 4096 && o.CallbackPageSize == 8
			},
		},
		{name: "unknown key", yaml: "modes: direct\n", wantErr: true},
		{name: "bad mode", yaml: "mode: sideways\n", wantErr: true},
		{name: "bad tier", yaml: "tier: jit\n", wantErr: true},
		{name: "zero page size", yaml: "callback_page_size: 0\n", wantErr: true},
		{name: "empty host module", yaml: "host_module: \"\"\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOptions([]byte(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOptions: %v", err)
			}
			if !tt.want(got) {
				t.Errorf("options = %+v", got)
			}
		})
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte("mode: redirect\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if opts.Mode != entry.ModeRedirect {
		t.Errorf("Mode = %s", opts.Mode)
	}

	if _, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	big := filepath.Join(t.TempDir(), "big.yaml")
	if err := os.WriteFile(big, make([]byte, maxOptionsSize+1), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOptions(big); !stderrors.Is(err, errors.InvalidData(errors.PhaseConfig, "")) {
		t.Errorf("oversized file: err = %v, want invalid data", err)
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, nil, DefaultOptions()); err == nil {
		t.Error("nil registry should fail")
	}

	reg, _ := builtin.NewRegistry()
	opts := DefaultOptions()
	opts.CallbackBase = 0
	_, err := New(ctx, reg, opts)
	var verr *errors.ValidationError
	if !stderrors.As(err, &verr) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestRuntime_CallBothModes(t *testing.T) {
	for _, mode := range []entry.Mode{entry.ModeDirect, entry.ModeRedirect} {
		t.Run(mode.String(), func(t *testing.T) {
			rt := newRuntime(t, mode)
			ctx := context.Background()

			res, err := rt.Call(ctx, nil, "ModInt64", uint64(7), uint64(3))
			if err != nil || res.Value != 1 {
				t.Errorf("ModInt64(7, 3) = %+v, %v", res, err)
			}

			res, err = rt.Call(ctx, nil, "LibcPow", api.EncodeF64(3), api.EncodeF64(2))
			if err != nil || res.Float() != 9 {
				t.Errorf("LibcPow(3, 2) = %v, %v", res.Float(), err)
			}

			site, err := rt.CompileCallSite(ctx, "PopCount", engine.SiteOptions{})
			if err != nil {
				t.Fatalf("CompileCallSite: %v", err)
			}
			res, err = site.Call(ctx, nil, 0xff)
			if err != nil || res.Value != 8 {
				t.Errorf("PopCount(0xff) = %+v, %v", res, err)
			}

			ep, _ := rt.EntryPoint("PopCount")
			d := rt.Registry().MustLookup("PopCount")
			if mode == entry.ModeDirect && ep != d.Address() {
				t.Errorf("direct entry point = %s, want %s", ep, d.Address())
			}
			if mode == entry.ModeRedirect && ep != entry.InterpretCallEntry() {
				t.Errorf("redirect entry point = %s", ep)
			}
		})
	}
}

func TestRuntime_UnknownEntry(t *testing.T) {
	rt := newRuntime(t, entry.ModeDirect)
	ctx := context.Background()

	if _, err := rt.Call(ctx, nil, "Nope"); !stderrors.Is(err, errors.New(errors.PhaseResolve, errors.KindNotFound).Build()) {
		t.Errorf("Call: err = %v", err)
	}
	if _, err := rt.CompileCallSite(ctx, "Nope", engine.SiteOptions{}); !stderrors.Is(err, errors.New(errors.PhaseEmit, errors.KindNotFound).Build()) {
		t.Errorf("CompileCallSite: err = %v", err)
	}
}

func TestRuntime_DeoptimizeFunctionsOnStack(t *testing.T) {
	rt := newRuntime(t, entry.ModeDirect)

	fn := deopt.NewFunction("loop")
	unopt := deopt.NewUnoptimizedCode(fn, 1)
	opt := deopt.NewOptimizedCode(fn, 1, map[uint64]*deopt.Info{
		3: {Reason: deopt.ReasonUnknown, Frames: []deopt.FrameSpec{{Code: unopt, PC: 9, Slots: []deopt.Source{deopt.FromSlot(0)}}}},
	})
	fn.InstallOptimizedCode(opt)

	var threads []*isolate.Thread
	for i := 0; i < 3; i++ {
		th := rt.NewThread()
		f := th.PushFrame(opt, []uint64{uint64(i)})
		if err := th.SetReturnAddress(f.FP, 3); err != nil {
			t.Fatal(err)
		}
		threads = append(threads, th)
	}

	n, err := rt.DeoptimizeFunctionsOnStack(nil)
	if err != nil {
		t.Fatalf("DeoptimizeFunctionsOnStack: %v", err)
	}
	if n != 3 {
		t.Errorf("deoptimized %d frames, want 3", n)
	}
	for i, th := range threads {
		top := th.TopFrame()
		if top.Code != unopt || top.Slots[0] != uint64(i) {
			t.Errorf("thread %d top = %+v", i, top)
		}
	}
}

func TestRuntime_DeoptimizeParkedThread(t *testing.T) {
	calls := map[string]func(rt *Runtime, th *isolate.Thread, site engine.SiteOptions) (engine.Result, error){
		"CallFrom": func(rt *Runtime, th *isolate.Thread, site engine.SiteOptions) (engine.Result, error) {
			return rt.CallFrom(context.Background(), th, site, "StackOverflow")
		},
		"call site": func(rt *Runtime, th *isolate.Thread, site engine.SiteOptions) (engine.Result, error) {
			s, err := rt.CompileCallSite(context.Background(), "StackOverflow", site)
			if err != nil {
				return engine.Result{}, err
			}
			return s.Call(context.Background(), th)
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			rt := newRuntime(t, entry.ModeDirect)
			th := rt.NewThread()
			th.EnterManaged()
			defer th.ExitManaged()

			fn := deopt.NewFunction("f")
			unopt := deopt.NewUnoptimizedCode(fn, 1)
			opt := deopt.NewOptimizedCode(fn, 1, map[uint64]*deopt.Info{
				10: {Reason: deopt.ReasonUnknown, Frames: []deopt.FrameSpec{{Code: unopt, PC: 4, Slots: []deopt.Source{deopt.FromSlot(0)}}}},
			})
			fn.InstallOptimizedCode(opt)
			th.PushFrame(opt, []uint64{11})

			type outcome struct {
				n   int
				err error
			}
			done := make(chan outcome, 1)
			go func() {
				n, err := rt.DeoptimizeFunctionsOnStack(nil)
				done <- outcome{n, err}
			}()
			for !rt.Group().SafepointPending() {
				time.Sleep(time.Millisecond)
			}

			res, err := call(rt, th, engine.SiteOptions{Caller: opt, ReturnPC: 10})
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			got := <-done
			if got.err != nil || got.n != 1 {
				t.Fatalf("global deopt: n=%d err=%v", got.n, got.err)
			}
			if th.Parks() != 1 {
				t.Errorf("parks = %d, want 1", th.Parks())
			}
			if !res.Deoptimized {
				t.Error("caller should report deoptimized")
			}
			top := th.TopFrame()
			if top.IsOptimized() || top.Code != unopt || top.PC != 4 || top.Slots[0] != 11 {
				t.Errorf("top frame = %+v", top)
			}
		})
	}
}

func TestRuntime_GeneralEntryThroughCallSite(t *testing.T) {
	rt := newRuntime(t, entry.ModeRedirect)
	ctx := context.Background()
	th := rt.NewThread()
	th.EnterManaged()
	defer th.ExitManaged()

	fn := deopt.NewFunction("caller")
	unopt := deopt.NewUnoptimizedCode(fn, 1)
	opt := deopt.NewOptimizedCode(fn, 1, map[uint64]*deopt.Info{
		5: {Reason: deopt.ReasonUnknown, Frames: []deopt.FrameSpec{{Code: unopt, PC: 1, Slots: []deopt.Source{deopt.Constant(77)}}}},
	})
	fn.InstallOptimizedCode(opt)
	th.PushFrame(opt, []uint64{0})

	site, err := rt.CompileCallSite(ctx, "InvalidateCallerCode", engine.SiteOptions{Caller: opt, ReturnPC: 5})
	if err != nil {
		t.Fatalf("CompileCallSite: %v", err)
	}
	res, err := site.Call(ctx, th)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.Deoptimized {
		t.Error("caller should be deoptimized on return")
	}
	if top := th.TopFrame(); top.Code != unopt || top.Slots[0] != 77 {
		t.Errorf("top = %+v", top)
	}
}

func TestRuntime_Callbacks(t *testing.T) {
	rt := newRuntime(t, entry.ModeDirect)
	ctx := context.Background()
	owner := rt.NewIsolate("owner")
	ep := rt.Registry().MustLookup("StackOverflow").Address()

	syncT, err := rt.CreateCallback(owner, ep, callback.KindSync)
	if err != nil {
		t.Fatalf("CreateCallback: %v", err)
	}
	asyncT, _ := rt.CreateCallback(owner, ep, callback.KindAsync)
	sharedT, _ := rt.CreateCallback(owner, ep, callback.KindIsolateGroupShared)

	t.Run("sync enters temporarily", func(t *testing.T) {
		caller := rt.NewThread()
		disp, err := rt.ResolveCallback(ctx, caller, syncT, nil)
		if err != nil {
			t.Fatalf("ResolveCallback: %v", err)
		}
		if disp.Thread != caller || disp.EntryPoint != ep || caller.Isolate() != owner {
			t.Errorf("dispatch = %+v", disp)
		}
		if err := disp.Done(); err != nil {
			t.Fatalf("Done: %v", err)
		}
		if caller.Isolate() != nil {
			t.Error("temporary isolate not exited")
		}
	})

	t.Run("async posts", func(t *testing.T) {
		disp, err := rt.ResolveCallback(ctx, rt.NewThread(), asyncT, []uint64{9})
		if err != nil || disp.Thread != nil || disp.Kind != callback.KindAsync {
			t.Fatalf("dispatch = %+v, %v", disp, err)
		}
		msg := (<-owner.Messages()).(callback.Message)
		if msg.EntryPoint != ep || msg.Args[0] != 9 {
			t.Errorf("message = %+v", msg)
		}
	})

	t.Run("shared", func(t *testing.T) {
		caller := rt.NewThread()
		disp, err := rt.ResolveCallback(ctx, caller, sharedT, nil)
		if err != nil || caller.Isolate() != rt.Group().SharedIsolate() {
			t.Fatalf("dispatch = %+v, %v", disp, err)
		}
		if err := disp.Done(); err != nil || caller.Isolate() != nil {
			t.Errorf("Done: %v, isolate %v", err, caller.Isolate())
		}
	})

	t.Run("wrong isolate", func(t *testing.T) {
		other := rt.NewIsolate("other")
		caller := rt.NewThread()
		if err := caller.EnterIsolate(other); err != nil {
			t.Fatal(err)
		}
		defer caller.ExitIsolate()

		disp, err := rt.ResolveCallback(ctx, caller, syncT, nil)
		if err == nil || disp.Kind != callback.KindInvalid {
			t.Errorf("dispatch = %+v, %v", disp, err)
		}
	})

	t.Run("foreign isolate rejected", func(t *testing.T) {
		foreign := isolate.NewGroup("foreign").NewIsolate("x")
		if _, err := rt.CreateCallback(foreign, ep, callback.KindSync); err == nil {
			t.Error("isolate from another group should be rejected")
		}
	})

	rt.ShutdownIsolate(owner)
	if _, ok := rt.Callbacks().Lookup(syncT); ok {
		t.Error("callbacks of a shut down isolate should be deleted")
	}
}
