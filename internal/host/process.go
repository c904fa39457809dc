// process.go - Host backed by the running Go process.
// Lets the memory optimizer watch the daemon itself: heap readout from
// runtime.MemStats, limit from physical memory, GC hint via runtime.GC.
package host

import (
	"runtime"
	"runtime/debug"

	"github.com/pbnjay/memory"
)

// ProcessHost exposes the current process as a memory-only host.
// Timing entry streams are unsupported.
type ProcessHost struct {
	// LimitBytes overrides the detected limit when non-zero.
	LimitBytes uint64
}

// Observe implements Host. The process has no browser timing streams.
func (p *ProcessHost) Observe(EntryType, func(Entry)) (Subscription, error) {
	return nil, ErrUnsupported
}

// Memory implements Host. The limit is the configured override, else the
// soft memory limit when one is set, else half of physical memory.
func (p *ProcessHost) Memory() (MemoryReadout, bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	limit := p.LimitBytes
	if limit == 0 {
		if soft := debug.SetMemoryLimit(-1); soft > 0 && soft < 1<<62 {
			limit = uint64(soft)
		}
	}
	if limit == 0 {
		limit = memory.TotalMemory() / 2
	}
	if limit == 0 {
		return MemoryReadout{}, false
	}
	return MemoryReadout{
		UsedBytes:  ms.HeapAlloc,
		TotalBytes: ms.HeapSys,
		LimitBytes: limit,
	}, true
}

// NetworkClass implements Host.
func (p *ProcessHost) NetworkClass() (string, bool) { return "", false }

// Viewport implements Host.
func (p *ProcessHost) Viewport() (float64, bool) { return 0, false }

// HintGC implements GCHinter.
func (p *ProcessHost) HintGC() bool {
	runtime.GC()
	debug.FreeOSMemory()
	return true
}
