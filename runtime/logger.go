package runtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/callback"
	"github.com/wippyai/native-bridge/deopt"
	"github.com/wippyai/native-bridge/engine"
	"github.com/wippyai/native-bridge/entry"
	"github.com/wippyai/native-bridge/isolate"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the runtime's logger instance.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the runtime's logger and that of every package it
// wires together. Call it before New.
func SetLogger(l *zap.Logger) {
	logger = l
	entry.SetLogger(l.Named("entry"))
	deopt.SetLogger(l.Named("deopt"))
	isolate.SetLogger(l.Named("isolate"))
	callback.SetLogger(l.Named("callback"))
	engine.SetLogger(l.Named("engine"))
}
