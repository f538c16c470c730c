package runtime

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/callback"
	"github.com/wippyai/native-bridge/engine"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/errors"
)

// maxOptionsSize bounds option files read from disk.
const maxOptionsSize = 1 << 20

// Options configures a Runtime. The zero value of each field means its
// default.
type Options struct {
	// GroupName names the isolate group created by the runtime.
	GroupName string `yaml:"group_name"`
	// HostModule is the wasm module name call sites import from.
	HostModule string `yaml:"host_module"`
	// CallbackBase is the address of the first callback trampoline.
	CallbackBase uint64 `yaml:"callback_base"`
	// CallbackPageSize is the number of trampolines allocated at once.
	CallbackPageSize int `yaml:"callback_page_size"`
	// Mode selects direct or redirected call sites.
	Mode entry.Mode  `yaml:"mode"`
	Tier engine.Tier `yaml:"tier"`
	// TraceDeoptimization logs every deoptimized frame at info level.
	TraceDeoptimization bool `yaml:"trace_deoptimization"`
}

// DefaultOptions returns options for a direct-mode runtime.
func DefaultOptions() Options {
	cb := callback.DefaultOptions()
	return Options{
		GroupName:        "main",
		HostModule:       engine.DefaultConfig().HostModule,
		CallbackBase:     uint64(cb.Base),
		CallbackPageSize: cb.PageSize,
		Mode:             entry.ModeDirect,
		Tier:             engine.TierAuto,
	}
}

// ParseOptions decodes YAML options over the defaults. Unknown keys are
// rejected.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return Options{}, errors.ParseFailed(errors.PhaseConfig, "runtime options", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// LoadOptions reads options from a YAML file.
func LoadOptions(path string) (Options, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Options{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "stat "+path)
	}
	if info.Size() > maxOptionsSize {
		return Options{}, errors.InvalidData(errors.PhaseConfig,
			fmt.Sprintf("options file %s is %d bytes, limit %d", path, info.Size(), maxOptionsSize))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read "+path)
	}
	return ParseOptions(data)
}

// Validate checks the options for values New would reject.
func (o Options) Validate() error {
	v := &errors.ValidationError{Phase: errors.PhaseConfig}
	if o.HostModule == "" {
		v.Add("", "host_module is empty")
	}
	if o.CallbackBase == 0 {
		v.Add("", "callback_base must be non-zero")
	}
	if o.CallbackPageSize <= 0 {
		v.Add("", "callback_page_size must be positive, got %d", o.CallbackPageSize)
	}
	if o.Mode != entry.ModeDirect && o.Mode != entry.ModeRedirect {
		v.Add("", "unknown mode %s", o.Mode)
	}
	if o.Tier > engine.TierInterpreter {
		v.Add("", "unknown tier %s", o.Tier)
	}
	return v.Err()
}

func (o Options) callbackOptions() callback.Options {
	cb := callback.DefaultOptions()
	cb.Base = nativebridge.Address(o.CallbackBase)
	cb.PageSize = o.CallbackPageSize
	return cb
}

func (o Options) engineConfig() engine.Config {
	return engine.Config{
		HostModule: o.HostModule,
		Tier:       o.Tier,
		Mode:       o.Mode,
	}
}
