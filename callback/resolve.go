package callback

import (
	"go.uber.org/zap"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/isolate"
)

// GetMetadata resolves tramp for the thread that invoked it. It returns the
// thread the callback runs on, the entry point to branch to and the
// callback kind.
//
//   - sync: the caller, already inside the owner isolate or entered into it
//     temporarily when it was outside any isolate;
//   - async: a nil thread, the callback is posted to the owner isolate;
//   - isolate-group-shared: the caller, switched into the shared isolate.
//
// A trampoline that is unknown, or a sync callback invoked from inside a
// different isolate, yields (nil, 0, KindInvalid). A callback never runs on
// a thread or in an isolate it does not belong to.
func (t *Table) GetMetadata(caller *isolate.Thread, tramp nativebridge.Address) (*isolate.Thread, nativebridge.Address, Kind) {
	m, ok := t.Lookup(tramp)
	if !ok {
		return invalid(tramp, "unknown trampoline")
	}

	switch m.Kind {
	case KindAsync:
		return nil, m.EntryPoint, KindAsync

	case KindSync:
		if caller == nil {
			return invalid(tramp, "sync callback without calling thread")
		}
		switch cur := caller.Isolate(); cur {
		case m.Isolate:
			return caller, m.EntryPoint, KindSync
		case nil:
			if err := caller.EnterTemporaryIsolate(m.Isolate); err != nil {
				Logger().Debug("temporary isolate entry refused", zap.Error(err))
				return invalid(tramp, "owner isolate busy")
			}
			return caller, m.EntryPoint, KindSync
		default:
			return invalid(tramp, "sync callback invoked from isolate "+cur.Name())
		}

	case KindIsolateGroupShared:
		if caller == nil || caller.Group() != m.Isolate.Group() {
			return invalid(tramp, "shared callback from outside the isolate group")
		}
		if err := caller.EnterSharedIsolate(); err != nil {
			return invalid(tramp, err.Error())
		}
		return caller, m.EntryPoint, KindIsolateGroupShared
	}

	return invalid(tramp, "unknown callback kind")
}

func invalid(tramp nativebridge.Address, why string) (*isolate.Thread, nativebridge.Address, Kind) {
	Logger().Debug("callback resolved to fallback",
		zap.Stringer("trampoline", tramp),
		zap.String("reason", why),
	)
	return nil, 0, KindInvalid
}

// ExitTemporaryIsolate runs when a sync callback that entered its isolate
// temporarily completes.
func ExitTemporaryIsolate(t *isolate.Thread) error {
	return t.ExitTemporaryIsolate()
}

// ExitIsolateGroupSharedIsolate runs when an isolate-group-shared callback
// completes, restoring the isolate the thread was in before.
func ExitIsolateGroupSharedIsolate(t *isolate.Thread) error {
	return t.ExitSharedIsolate()
}
