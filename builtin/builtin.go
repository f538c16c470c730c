// Package builtin declares the stock runtime entries.
//
// The declarations in entries_gen.go are generated from entries.yaml; edit
// the manifest and rerun go generate rather than editing them by hand.
package builtin

import (
	_ "embed"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/manifest"
)

//go:generate go run ../cmd/entrygen -manifest entries.yaml -out entries_gen.go

//go:embed entries.yaml
var manifestData []byte

// Manifest parses the embedded manifest the declarations were generated
// from.
func Manifest() (*manifest.Manifest, error) {
	return manifest.Parse(manifestData)
}

// NewRegistry builds a registry holding every stock entry.
func NewRegistry() (*entry.Registry, error) {
	return entry.NewBuilder().Add(Entries()...).Build()
}

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the builtin package's logger instance.
// Stop messages are written to it.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the builtin package's logger.
func SetLogger(l *zap.Logger) {
	logger = l
}
