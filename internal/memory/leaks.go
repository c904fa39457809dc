// leaks.go - Heuristic leak classification. Findings are advisory.
package memory

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxEventTypesPerElement = 10
	maxActiveTimers         = 50
	maxObservers            = 20
)

var leakRemedies = map[LeakKind]string{
	LeakEventListener: "Remove event listeners when the element is removed or the component unmounts.",
	LeakInterval:      "Clear intervals and timeouts in the component's cleanup path.",
	LeakObserver:      "Disconnect observers when the observed element goes away.",
	LeakDOMReference:  "Do not keep DOM elements in global variables; use local or weak references.",
	LeakClosure:       "Avoid capturing large objects in long-lived callbacks.",
}

// DetectLeaks runs every heuristic against the current registries.
func (o *Optimizer) DetectLeaks() []Leak {
	o.mu.Lock()
	type tracked struct {
		el     Element
		events []string
	}
	elements := make([]tracked, 0, len(o.listeners))
	for el, set := range o.listeners {
		elements = append(elements, tracked{el, sortedEvents(set)})
	}
	observers := len(o.observers)
	global := o.global
	o.mu.Unlock()

	leaks := []Leak{}

	sort.Slice(elements, func(i, j int) bool {
		return describe(elements[i].el) < describe(elements[j].el)
	})
	for _, t := range elements {
		label := describe(t.el)
		if !connected(t.el) {
			leaks = append(leaks, Leak{
				Kind:           LeakEventListener,
				Severity:       SeverityHigh,
				Description:    fmt.Sprintf("Detached element %s still has %d listener(s): %s", label, len(t.events), strings.Join(t.events, ", ")),
				Remedy:         leakRemedies[LeakEventListener],
				Related:        label,
				RelatedElement: t.el,
			})
		}
		if len(t.events) > maxEventTypesPerElement {
			leaks = append(leaks, Leak{
				Kind:           LeakEventListener,
				Severity:       SeverityMedium,
				Description:    fmt.Sprintf("Element %s has %d tracked event types", label, len(t.events)),
				Remedy:         leakRemedies[LeakEventListener],
				Related:        label,
				RelatedElement: t.el,
			})
		}
	}

	if global != nil {
		for _, b := range safeBindings(global) {
			el, ok := b.Value.(Element)
			if !ok {
				continue
			}
			leaks = append(leaks, Leak{
				Kind:           LeakDOMReference,
				Severity:       SeverityMedium,
				Description:    fmt.Sprintf("Global %q references a DOM element", b.Name),
				Remedy:         leakRemedies[LeakDOMReference],
				Related:        b.Name,
				RelatedElement: el,
			})
		}
	}

	if n := o.timers.Active(); n > maxActiveTimers {
		leaks = append(leaks, Leak{
			Kind:        LeakInterval,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("%d active timers (limit %d)", n, maxActiveTimers),
			Remedy:      leakRemedies[LeakInterval],
		})
	}

	if observers > maxObservers {
		leaks = append(leaks, Leak{
			Kind:        LeakObserver,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("%d observers registered (limit %d)", observers, maxObservers),
			Remedy:      leakRemedies[LeakObserver],
		})
	}
	return leaks
}

// HasSevereLeak reports whether any leak is critical or high.
func HasSevereLeak(leaks []Leak) bool {
	for _, l := range leaks {
		if l.Severity == SeverityCritical || l.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

func recommendations(leaks []Leak) []string {
	seen := make(map[LeakKind]bool)
	out := []string{}
	for _, l := range leaks {
		if !seen[l.Kind] {
			seen[l.Kind] = true
			out = append(out, l.Remedy)
		}
	}
	return out
}

func describe(el Element) string {
	if d, ok := el.(Describer); ok {
		return d.Describe()
	}
	return fmt.Sprintf("%T", el)
}

// connected treats a panicking handle as attached so it is not reported.
func connected(el Element) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()
	return el.IsConnected()
}

func safeBindings(g GlobalScope) (out []Binding) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return g.Bindings()
}
