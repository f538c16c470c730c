package builtin

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/isolate"
)

func TestRegistryMatchesManifest(t *testing.T) {
	m, err := Manifest()
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if reg.Len() != len(m.Entries) {
		t.Fatalf("registry has %d entries, manifest %d", reg.Len(), len(m.Entries))
	}
	for _, e := range m.Entries {
		d, ok := reg.Lookup(e.Name)
		if !ok {
			t.Errorf("%s declared in manifest but not registered", e.Name)
			continue
		}
		if d.ArgumentCount() != e.Argc {
			t.Errorf("%s: argc %d, manifest %d", e.Name, d.ArgumentCount(), e.Argc)
		}
		if d.IsLeaf() != e.IsLeaf() || d.IsFloat() != e.IsFloat() || d.CanLazyDeopt() != e.CanLazyDeopt() {
			t.Errorf("%s: flags disagree with manifest", e.Name)
		}
	}

	for i, d := range reg.General() {
		if d.Name() != m.General()[i].Name {
			t.Errorf("general[%d] = %s, manifest %s", i, d.Name(), m.General()[i].Name)
		}
	}
}

func callLeaf(t *testing.T, d *entry.Descriptor, args ...uint64) uint64 {
	t.Helper()
	reg, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	for _, mode := range []entry.Mode{entry.ModeDirect, entry.ModeRedirect} {
		got, err := entry.NewResolver(reg, mode).Call(context.Background(), nil, d, args)
		if err != nil {
			t.Fatalf("%s %s: %v", mode, d.Name(), err)
		}
		if mode == entry.ModeRedirect {
			return got
		}
	}
	return 0
}

func i64(v int64) uint64 { return uint64(v) }

func f64(v float64) uint64 { return math.Float64bits(v) }

func TestWordLeaves(t *testing.T) {
	tests := []struct {
		name string
		desc *entry.Descriptor
		args []uint64
		want uint64
	}{
		{"mod positive", ModInt64Entry, []uint64{i64(7), i64(3)}, 1},
		{"mod negative dividend", ModInt64Entry, []uint64{i64(-7), i64(3)}, 2},
		{"mod negative divisor", ModInt64Entry, []uint64{i64(-7), i64(-3)}, 2},
		{"mod zero divisor", ModInt64Entry, []uint64{i64(5), 0}, 0},
		{"mod min by -1", ModInt64Entry, []uint64{i64(math.MinInt64), i64(-1)}, 0},
		{"mulhigh small", MulHighInt64Entry, []uint64{1 << 62, 4}, 1},
		{"mulhigh negative", MulHighInt64Entry, []uint64{i64(-1), 1}, math.MaxUint64},
		{"mulhigh both negative", MulHighInt64Entry, []uint64{i64(-1 << 62), i64(-4)}, 1},
		{"popcount", PopCountEntry, []uint64{0xff00ff}, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := callLeaf(t, tt.desc, tt.args...); got != tt.want {
				t.Errorf("got %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestFloatLeaves(t *testing.T) {
	tests := []struct {
		name string
		desc *entry.Descriptor
		args []uint64
		want float64
	}{
		{"pow", LibcPowEntry, []uint64{f64(2), f64(10)}, 1024},
		{"atan2", LibcAtan2Entry, []uint64{f64(1), f64(1)}, math.Pi / 4},
		{"modulo", DartModuloEntry, []uint64{f64(-5.5), f64(2)}, 0.5},
		{"modulo negative divisor", DartModuloEntry, []uint64{f64(-5.5), f64(-2)}, 0.5},
		{"floor", LibcFloorEntry, []uint64{f64(-1.5)}, -2},
		{"ceil", LibcCeilEntry, []uint64{f64(-1.5)}, -1},
		{"trunc", LibcTruncEntry, []uint64{f64(-1.5)}, -1},
		{"round half away", LibcRoundEntry, []uint64{f64(2.5)}, 3},
		{"exp", LibcExpEntry, []uint64{f64(0)}, 1},
		{"log", LibcLogEntry, []uint64{f64(math.E)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := math.Float64frombits(callLeaf(t, tt.desc, tt.args...))
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFloatModulo_NegativeZero(t *testing.T) {
	got := floatModulo(-4, 2)
	if got != 0 || math.Signbit(got) {
		t.Errorf("floatModulo(-4, 2) = %v, want +0", got)
	}
}

// optimizedFrame pushes an optimized activation that maps back to a single
// unoptimized frame at pc 1.
func optimizedFrame(th *isolate.Thread) (*deopt.Function, *deopt.Frame) {
	fn := deopt.NewFunction("caller")
	unopt := deopt.NewUnoptimizedCode(fn, 1)
	opt := deopt.NewOptimizedCode(fn, 1, map[uint64]*deopt.Info{
		1: {Reason: deopt.ReasonAtCall, Frames: []deopt.FrameSpec{{Code: unopt, PC: 10, Slots: []deopt.Source{deopt.FromSlot(0)}}}},
	})
	fn.InstallOptimizedCode(opt)
	frame := th.PushFrame(opt, []uint64{42})
	frame.PC = 1
	return fn, frame
}

func TestGeneralEntries(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	g := isolate.NewGroup("test")
	d := deopt.New(g)
	ctx := deopt.WithDeoptimizer(context.Background(), d)
	res := entry.NewResolver(reg, entry.ModeDirect)

	t.Run("Deoptimize", func(t *testing.T) {
		th := g.NewThread()
		defer g.RemoveThread(th)
		fn, _ := optimizedFrame(th)

		got, err := res.Call(ctx, th, DeoptimizeEntry, nil)
		if err != nil || got != 1 {
			t.Fatalf("Call = (%d, %v)", got, err)
		}
		top := th.TopFrame()
		if top.IsOptimized() || top.Slots[0] != 42 || top.PC != 10 {
			t.Errorf("top frame = %+v", top)
		}
		if fn.HasOptimizedCode() {
			t.Error("function should be back on unoptimized code")
		}
	})

	t.Run("DeoptimizeFunctionsOnStack", func(t *testing.T) {
		other := g.NewThread()
		defer g.RemoveThread(other)
		optimizedFrame(other)
		th := g.NewThread()
		defer g.RemoveThread(th)
		optimizedFrame(th)

		got, err := res.Call(ctx, th, DeoptimizeFunctionsOnStackEntry, nil)
		if err != nil || got != 2 {
			t.Fatalf("Call = (%d, %v), want 2", got, err)
		}
		if other.TopFrame().IsOptimized() {
			t.Error("other thread still optimized")
		}
	})

	t.Run("InvalidateCallerCode", func(t *testing.T) {
		th := g.NewThread()
		defer g.RemoveThread(th)
		fn, frame := optimizedFrame(th)

		got, err := res.Call(ctx, th, InvalidateCallerCodeEntry, nil)
		if err != nil || got != 1 {
			t.Fatalf("Call = (%d, %v)", got, err)
		}
		if !frame.Code.IsInvalidated() {
			t.Error("caller code should be invalidated")
		}
		if fn.HasOptimizedCode() {
			t.Error("new activations should use unoptimized code")
		}
		if !frame.IsOptimized() {
			t.Error("the frame itself is only deoptimized on return")
		}
	})

	t.Run("StackOverflow and PrintStopMessage", func(t *testing.T) {
		th := g.NewThread()
		defer g.RemoveThread(th)
		if _, err := res.Call(ctx, th, StackOverflowEntry, nil); err != nil {
			t.Errorf("StackOverflow: %v", err)
		}
		if _, err := res.Call(ctx, th, PrintStopMessageEntry, []uint64{7}); err != nil {
			t.Errorf("PrintStopMessage: %v", err)
		}
	})

	t.Run("without deoptimizer", func(t *testing.T) {
		th := g.NewThread()
		defer g.RemoveThread(th)
		_, err := res.Call(context.Background(), th, DeoptimizeEntry, nil)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDeopt, Kind: errors.KindNotInitialized}) {
			t.Errorf("got %v", err)
		}
	})
}
