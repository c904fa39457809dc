// safego.go - Panic-recovering goroutine launcher and call guard.
package util

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// SafeGo launches fn in a goroutine with deferred panic recovery.
// On panic: logs the stack trace. Does NOT exit, background panics in
// instrumentation must never take the host process down.
func SafeGo(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer recoverTo(logger, name)
		fn()
	}()
}

// SafeCall runs fn synchronously and swallows any panic. Returns false when
// fn panicked. Used around consumer-supplied callbacks (sinks, observers,
// pressure subscribers) so their failures stay out of the caller's path.
func SafeCall(logger *zap.Logger, name string, fn func()) (ok bool) {
	ok = true
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if logger != nil {
				logger.Error("panic recovered",
					zap.String("where", name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}
	}()
	fn()
	return ok
}

func recoverTo(logger *zap.Logger, name string) {
	if r := recover(); r != nil && logger != nil {
		logger.Error("panic in background goroutine",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()))
	}
}
