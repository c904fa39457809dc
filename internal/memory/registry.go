// registry.go - Component, listener, observer and global-scope registries.
package memory

import "sort"

// ============================================
// Components
// ============================================

// RegisterComponent records one mounted instance of name.
func (o *Optimizer) RegisterComponent(name string) {
	if name == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.components[name]++
}

// UnregisterComponent records one unmount. Unmatched calls clamp at zero.
func (o *Optimizer) UnregisterComponent(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, ok := o.components[name]
	if !ok {
		return
	}
	o.components[name] = max(0, n-1)
}

// LiveInstances returns the live instance count of name.
func (o *Optimizer) LiveInstances(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.components[name]
}

// Components lists every registered component, sorted by name, with the
// current leaks on elements the component owns.
func (o *Optimizer) Components() []ComponentInfo {
	return o.componentInfos(o.DetectLeaks())
}

func (o *Optimizer) componentInfos(leaks []Leak) []ComponentInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	byOwner := make(map[string][]Leak)
	for _, l := range leaks {
		if l.RelatedElement == nil {
			continue
		}
		if owner, ok := o.owners[l.RelatedElement]; ok {
			byOwner[owner] = append(byOwner[owner], l)
		}
	}
	out := make([]ComponentInfo, 0, len(o.components))
	for name, n := range o.components {
		owned := byOwner[name]
		if owned == nil {
			owned = []Leak{}
		}
		out = append(out, ComponentInfo{Name: name, LiveInstanceCount: n, Leaks: owned})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ============================================
// Event listeners
// ============================================

// TrackEventListener records that el has a listener for event.
func (o *Optimizer) TrackEventListener(el Element, event string) {
	if el == nil || event == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	set := o.listeners[el]
	if set == nil {
		set = make(map[string]struct{})
		o.listeners[el] = set
	}
	set[event] = struct{}{}
}

// TrackComponentListener is TrackEventListener with el attributed to
// component, so leaks on el are listed under that component.
func (o *Optimizer) TrackComponentListener(component string, el Element, event string) {
	if el == nil || event == "" {
		return
	}
	o.TrackEventListener(el, event)
	if component == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.listeners[el]; ok {
		o.owners[el] = component
	}
}

// UntrackEventListener forgets one listener. The element entry goes away
// with its last event.
func (o *Optimizer) UntrackEventListener(el Element, event string) {
	if el == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	set, ok := o.listeners[el]
	if !ok {
		return
	}
	delete(set, event)
	if len(set) == 0 {
		delete(o.listeners, el)
		delete(o.owners, el)
	}
}

// TrackedEvents returns the tracked events of el, sorted.
func (o *Optimizer) TrackedEvents(el Element) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return sortedEvents(o.listeners[el])
}

func sortedEvents(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for ev := range set {
		out = append(out, ev)
	}
	sort.Strings(out)
	return out
}

// ============================================
// Observers
// ============================================

// RegisterObserver tracks ob under id, replacing (and disconnecting) any
// observer already registered with that id.
func (o *Optimizer) RegisterObserver(id string, ob Observer) {
	if ob == nil {
		return
	}
	o.mu.Lock()
	prev := o.observers[id]
	o.observers[id] = ob
	o.mu.Unlock()
	if prev != nil && prev != ob {
		o.disconnect(id, prev)
	}
}

// UnregisterObserver disconnects and removes the observer registered as id.
func (o *Optimizer) UnregisterObserver(id string) {
	o.mu.Lock()
	ob, ok := o.observers[id]
	delete(o.observers, id)
	o.mu.Unlock()
	if ok {
		o.disconnect(id, ob)
	}
}

func (o *Optimizer) disconnect(id string, ob Observer) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Sugar().Warnw("observer disconnect panicked", "id", id, "panic", r)
		}
	}()
	ob.Disconnect()
}

// ObserverCount returns the number of registered observers.
func (o *Optimizer) ObserverCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.observers)
}

// ============================================
// Global scope
// ============================================

// SetGlobalScope replaces the scope inspected for dom-reference leaks.
func (o *Optimizer) SetGlobalScope(g GlobalScope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.global = g
}
