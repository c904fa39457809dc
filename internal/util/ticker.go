// ticker.go - Owned periodic timer with a guaranteed release path.
package util

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticker runs fn every interval on its own goroutine until Stop is called.
// Acquire with StartTicker, release with Stop; Stop is idempotent and blocks
// until the loop has exited, so no tick fires after Stop returns.
type Ticker struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartTicker acquires a ticker. A non-positive interval yields an inert
// ticker whose Stop is still safe to call.
func StartTicker(logger *zap.Logger, name string, interval time.Duration, fn func()) *Ticker {
	t := &Ticker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if interval <= 0 {
		close(t.done)
		return t
	}
	go func() {
		defer close(t.done)
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-tk.C:
				// A panicking tick must not kill the loop.
				SafeCall(logger, name, fn)
			}
		}
	}()
	return t
}

// Stop releases the ticker. Safe on nil and safe to call repeatedly.
func (t *Ticker) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}
