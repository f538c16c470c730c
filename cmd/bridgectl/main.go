package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/native-bridge/builtin"
	"github.com/wippyai/native-bridge/engine"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/runtime"
)

type config struct {
	configFile  string
	mode        string
	tier        string
	resolve     string
	call        string
	args        string
	list        bool
	wasm        bool
	interactive bool
	verbose     bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.configFile, "config", "", "Path to runtime options (YAML)")
	flag.StringVar(&cfg.mode, "mode", "", "Resolver mode: direct or redirect (overrides -config)")
	flag.StringVar(&cfg.tier, "tier", "", "Engine tier: auto, compiler or interpreter (overrides -config)")
	flag.BoolVar(&cfg.list, "list", false, "List runtime entries and exit")
	flag.StringVar(&cfg.resolve, "resolve", "", "Print the entry point of a runtime entry")
	flag.StringVar(&cfg.call, "call", "", "Runtime entry to call")
	flag.StringVar(&cfg.args, "args", "", "Call arguments (comma-separated)")
	flag.BoolVar(&cfg.wasm, "wasm", false, "Call through a compiled wasm call site")
	flag.BoolVar(&cfg.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&cfg.verbose, "v", false, "Verbose logging")
	flag.Parse()

	if !cfg.list && cfg.resolve == "" && cfg.call == "" && !cfg.interactive {
		fmt.Fprintln(os.Stderr, "Usage: bridgectl -list [-mode direct|redirect]")
		fmt.Fprintln(os.Stderr, "       bridgectl -resolve <entry> [-mode redirect]")
		fmt.Fprintln(os.Stderr, "       bridgectl -call <entry> -args 2,3 [-wasm]")
		fmt.Fprintln(os.Stderr, "       bridgectl -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadOptions(cfg config) (runtime.Options, error) {
	opts := runtime.DefaultOptions()
	if cfg.configFile != "" {
		var err error
		if opts, err = runtime.LoadOptions(cfg.configFile); err != nil {
			return opts, err
		}
	}
	if cfg.mode != "" {
		m, err := entry.ParseMode(cfg.mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = m
	}
	if cfg.tier != "" {
		t, err := engine.ParseTier(cfg.tier)
		if err != nil {
			return opts, err
		}
		opts.Tier = t
	}
	return opts, opts.Validate()
}

func newRuntime(ctx context.Context, cfg config) (*runtime.Runtime, error) {
	if cfg.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		runtime.SetLogger(l)
		builtin.SetLogger(l.Named("builtin"))
	}

	opts, err := loadOptions(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := builtin.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return runtime.New(ctx, reg, opts)
}

func run(cfg config) error {
	if cfg.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(cfg)
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	infos := describe(rt.Registry())
	opts := rt.Options()

	if cfg.list {
		fmt.Printf("Mode: %s  Tier: %s  Entries: %d\n\n", opts.Mode, opts.Tier, len(infos))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tSIGNATURE\tFLAGS\tENTRY POINT")
		for _, e := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.desc.Symbol(), e.signature(), e.flags(), rt.Resolver().GetEntryPoint(e.desc))
		}
		return w.Flush()
	}

	if cfg.resolve != "" {
		e, ok := findEntry(infos, cfg.resolve)
		if !ok {
			return fmt.Errorf("unknown entry %q", cfg.resolve)
		}
		r := rt.Resolver()
		fmt.Printf("%s\n", e.desc)
		fmt.Printf("  entry point (%s): %s\n", opts.Mode, r.GetEntryPoint(e.desc))
		fmt.Printf("  routine:            %s\n", r.GetEntryPointNoRedirect(e.desc))
		return nil
	}

	e, ok := findEntry(infos, cfg.call)
	if !ok {
		return fmt.Errorf("unknown entry %q", cfg.call)
	}
	args, err := convertArgs(e, splitArgs(cfg.args))
	if err != nil {
		return err
	}
	out, err := callEntry(ctx, rt, e, args, cfg.wasm)
	if err != nil {
		return fmt.Errorf("call %s: %w", e.name, err)
	}
	fmt.Printf("%s = %s\n", e.name, out)
	return nil
}

// callEntry runs e on a fresh managed thread, through a compiled call site
// when viaWasm is set and through the invoker otherwise.
func callEntry(ctx context.Context, rt *runtime.Runtime, e entryInfo, args []uint64, viaWasm bool) (string, error) {
	th := rt.NewThread()
	defer rt.Group().RemoveThread(th)
	th.EnterManaged()
	defer th.ExitManaged()

	var (
		res engine.Result
		err error
	)
	if viaWasm {
		var site *engine.CallSite
		site, err = rt.CompileCallSite(ctx, e.name, engine.SiteOptions{})
		if err != nil {
			return "", err
		}
		defer site.Close(ctx)
		res, err = site.Call(ctx, th, args...)
	} else {
		res, err = rt.Call(ctx, th, e.name, args...)
	}
	if err != nil {
		return "", err
	}
	return formatResult(e, res), nil
}
