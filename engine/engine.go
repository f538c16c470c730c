package engine

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
)

// Tier selects how wazero executes call-site stubs.
type Tier uint8

const (
	// TierAuto uses the compiler where the platform supports it.
	TierAuto Tier = iota
	TierCompiler
	TierInterpreter
)

func (t Tier) String() string {
	switch t {
	case TierAuto:
		return "auto"
	case TierCompiler:
		return "compiler"
	case TierInterpreter:
		return "interpreter"
	default:
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseTier parses "auto", "compiler" or "interpreter".
func ParseTier(s string) (Tier, error) {
	switch s {
	case "auto", "":
		return TierAuto, nil
	case "compiler":
		return TierCompiler, nil
	case "interpreter":
		return TierInterpreter, nil
	default:
		return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(s).
			Detail("unknown engine tier %q", s).
			Build()
	}
}

func (t Tier) MarshalYAML() (any, error) {
	return t.String(), nil
}

func (t *Tier) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Tier) runtimeConfig() wazero.RuntimeConfig {
	switch t {
	case TierCompiler:
		return wazero.NewRuntimeConfigCompiler()
	case TierInterpreter:
		return wazero.NewRuntimeConfigInterpreter()
	default:
		return wazero.NewRuntimeConfig()
	}
}

// Config controls engine construction.
type Config struct {
	// HostModule is the module name call-site stubs import from.
	HostModule string
	Tier       Tier
	Mode       entry.Mode
}

func DefaultConfig() Config {
	return Config{
		HostModule: "runtime",
		Tier:       TierAuto,
		Mode:       entry.ModeDirect,
	}
}

// Engine compiles call sites for runtime entries into wasm stubs and runs
// them against a host module that exposes the registry.
type Engine struct {
	runtime  wazero.Runtime
	resolver *entry.Resolver
	invoker  *Invoker
	cfg      Config
	sites    atomic.Uint64
	closed   atomic.Bool
}

// New creates an engine over reg. d may be nil, in which case lazy
// deoptimization on return is disabled.
func New(ctx context.Context, reg *entry.Registry, d *deopt.Deoptimizer, cfg Config) (*Engine, error) {
	if reg == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "registry")
	}
	if cfg.HostModule == "" {
		cfg.HostModule = DefaultConfig().HostModule
	}

	rt := wazero.NewRuntimeWithConfig(ctx, cfg.Tier.runtimeConfig())
	resolver := entry.NewResolver(reg, cfg.Mode)
	e := &Engine{
		runtime:  rt,
		resolver: resolver,
		invoker:  NewInvoker(resolver, d),
		cfg:      cfg,
	}

	if err := e.instantiateHostModule(ctx); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	Logger().Debug("engine created",
		zap.String("host", cfg.HostModule),
		zap.Stringer("tier", cfg.Tier),
		zap.Stringer("mode", cfg.Mode),
		zap.Int("entries", reg.Len()),
	)
	return e, nil
}

func (e *Engine) Resolver() *entry.Resolver { return e.resolver }

func (e *Engine) Invoker() *Invoker { return e.invoker }

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime { return e.runtime }

func (e *Engine) Config() Config { return e.cfg }

// Close releases the runtime and every compiled call site.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.runtime.Close(ctx)
}
