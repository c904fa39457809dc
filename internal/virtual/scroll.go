// scroll.go - Scroll container binding and the debounced isScrolling flag.
package virtual

import (
	"sync"
	"time"
)

// DefaultScrollingResetDelay is how long after the last scroll event the
// list reports it is no longer scrolling.
const DefaultScrollingResetDelay = 150 * time.Millisecond

// ScrollContainer is the scrollable element a list is mounted in.
type ScrollContainer interface {
	// OnScroll registers fn for scroll events and returns its remover.
	OnScroll(fn func(offset float64)) (remove func())
	// ScrollTo moves the container to offset.
	ScrollTo(offset float64)
}

// State is the mutable view state of a mounted list.
type State struct {
	ScrollOffset float64 `json:"scroll_offset"`
	IsScrolling  bool    `json:"is_scrolling"`
}

// scroller owns the listener registration and the reset timer. Exactly one
// listener is registered per attached container.
type scroller struct {
	mu         sync.Mutex
	state      State
	delay      time.Duration
	container  ScrollContainer
	remove     func()
	resetTimer *time.Timer
	generation uint64
}

func (s *scroller) init(delay time.Duration) {
	if delay <= 0 {
		delay = DefaultScrollingResetDelay
	}
	s.delay = delay
}

// attach binds c, replacing (and unregistering) any previous container.
// Re-attaching the same container is a no-op.
func (s *scroller) attach(c ScrollContainer) {
	s.mu.Lock()
	if c == s.container {
		s.mu.Unlock()
		return
	}
	oldRemove := s.remove
	s.container = c
	s.remove = nil
	s.mu.Unlock()

	if oldRemove != nil {
		oldRemove()
	}
	if c == nil {
		return
	}
	remove := c.OnScroll(s.handleScroll)
	s.mu.Lock()
	if s.container == c {
		s.remove = remove
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	// Container changed while registering.
	if remove != nil {
		remove()
	}
}

// detach removes the listener and cancels the pending reset.
func (s *scroller) detach() {
	s.mu.Lock()
	remove := s.remove
	s.remove = nil
	s.container = nil
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	s.state.IsScrolling = false
	s.generation++
	s.mu.Unlock()
	if remove != nil {
		remove()
	}
}

// handleScroll records the offset and (re)arms the isScrolling reset.
func (s *scroller) handleScroll(offset float64) {
	if !(offset > 0) {
		offset = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ScrollOffset = offset
	s.state.IsScrolling = true
	s.generation++
	gen := s.generation
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetTimer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A later scroll re-armed the timer; this fire is stale.
		if s.generation == gen {
			s.state.IsScrolling = false
			s.resetTimer = nil
		}
	})
}

// scrollTo sets the offset programmatically and forwards it to the container.
func (s *scroller) scrollTo(offset float64) {
	s.mu.Lock()
	s.state.ScrollOffset = offset
	c := s.container
	s.mu.Unlock()
	if c != nil {
		c.ScrollTo(offset)
	}
}

func (s *scroller) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *scroller) attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove != nil
}
