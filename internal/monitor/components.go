// components.go - Component lifecycle tracking for render timing and
// instance counts.
package monitor

import (
	"sync"
	"time"

	"github.com/brennhill/gasoline-perfkit/internal/memory"
)

// Component is one mounted instance. Obtain it with Monitor.Mount.
type Component struct {
	m       *Monitor
	name    string
	unmount sync.Once
}

// Mount registers a live instance of name.
func (m *Monitor) Mount(name string) *Component {
	m.memory.RegisterComponent(name)
	return &Component{m: m, name: name}
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// Render runs fn and records its duration as one render.
func (c *Component) Render(fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	c.m.vitals.TrackComponentRender(c.name, durationMs(d))
	return d
}

// TrackEventListener records a listener on el owned by this component.
// Leaks found on el are reported under the component.
func (c *Component) TrackEventListener(el memory.Element, event string) {
	c.m.memory.TrackComponentListener(c.name, el, event)
}

// UntrackEventListener forgets a listener added with TrackEventListener.
func (c *Component) UntrackEventListener(el memory.Element, event string) {
	c.m.memory.UntrackEventListener(el, event)
}

// Unmount releases the instance. Extra calls are ignored.
func (c *Component) Unmount() {
	c.unmount.Do(func() { c.m.memory.UnregisterComponent(c.name) })
}

// TrackRender starts timing a render of name; call the returned func when
// the render completes.
func (m *Monitor) TrackRender(name string) func() {
	start := time.Now()
	var once sync.Once
	return func() {
		once.Do(func() { m.vitals.TrackComponentRender(name, durationMs(time.Since(start))) })
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
