// dev.go - Developer-only diagnostics. Inert unless Development is set.
package monitor

import (
	"time"

	"go.uber.org/zap"
)

// DevTools exposes ad hoc profiling helpers.
type DevTools struct {
	m       *Monitor
	enabled bool
}

// Dev returns the developer surface.
func (m *Monitor) Dev() *DevTools {
	return &DevTools{m: m, enabled: m.opts.Development}
}

// Enabled reports whether the surface is active.
func (d *DevTools) Enabled() bool { return d.enabled }

// Measure runs fn and logs its duration in development. In production fn
// still runs but nothing is measured.
func (d *DevTools) Measure(name string, fn func()) time.Duration {
	if !d.enabled {
		fn()
		return 0
	}
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	d.m.logger.Info("measure", zap.String("name", name), zap.Duration("elapsed", elapsed))
	return elapsed
}

// LiveReport generates a fresh full report in development and nil
// otherwise.
func (d *DevTools) LiveReport() *FullReport {
	if !d.enabled {
		return nil
	}
	r := d.m.FullReport()
	return &r
}
