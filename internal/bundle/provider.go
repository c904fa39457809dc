// provider.go - Pluggable module graph introspection.
// Duplicate detection is best-effort: hosts without a module graph use
// NoopProvider and simply report no duplicates.
package bundle

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Graph is what a provider knows about the shipped modules.
type Graph struct {
	Modules []ModuleInfo `json:"modules"`
	// Duplicates may be supplied directly; when nil the analyzer derives
	// them from module paths.
	Duplicates []DuplicateModule `json:"duplicates,omitempty"`
}

// ModuleGraphProvider supplies the module graph of the running bundle.
type ModuleGraphProvider interface {
	Graph(ctx context.Context) (Graph, error)
}

// NoopProvider has no introspection capability.
type NoopProvider struct{}

// Graph returns an empty graph.
func (NoopProvider) Graph(context.Context) (Graph, error) { return Graph{}, nil }

// StaticProvider serves a graph pushed by a client (or set in tests).
type StaticProvider struct {
	mu    sync.RWMutex
	graph Graph
}

// NewStaticProvider starts with g.
func NewStaticProvider(g Graph) *StaticProvider { return &StaticProvider{graph: g} }

// Set replaces the graph.
func (p *StaticProvider) Set(g Graph) {
	p.mu.Lock()
	p.graph = g
	p.mu.Unlock()
}

// Graph returns the current graph.
func (p *StaticProvider) Graph(context.Context) (Graph, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.graph, nil
}

// ============================================
// Package paths
// ============================================

const nodeModules = "node_modules/"

// PackageOf extracts the npm package name and its install root from a
// module path, using the innermost node_modules segment. Returns ok=false
// for first-party paths.
func PackageOf(path string) (name, root string, ok bool) {
	path = strings.ReplaceAll(path, "\\", "/")
	i := strings.LastIndex(path, nodeModules)
	if i < 0 {
		return "", "", false
	}
	rest := path[i+len(nodeModules):]
	parts := strings.SplitN(rest, "/", 3)
	switch {
	case len(parts) == 0 || parts[0] == "":
		return "", "", false
	case strings.HasPrefix(parts[0], "@"):
		if len(parts) < 2 || parts[1] == "" {
			return "", "", false
		}
		name = parts[0] + "/" + parts[1]
	default:
		name = parts[0]
	}
	return name, path[:i+len(nodeModules)] + name, true
}

// DetectDuplicates groups modules by package and reports packages installed
// at two or more roots. Wasted bytes are the total across copies minus the
// largest copy, which is the one that would be kept.
func DetectDuplicates(modules []ModuleInfo) []DuplicateModule {
	sizes := make(map[string]map[string]int64) // pkg -> root -> bytes
	for _, m := range modules {
		name, root, ok := PackageOf(m.Name)
		if !ok {
			continue
		}
		if sizes[name] == nil {
			sizes[name] = make(map[string]int64)
		}
		sizes[name][root] += m.SizeBytes
	}

	var dups []DuplicateModule
	for name, roots := range sizes {
		if len(roots) < 2 {
			continue
		}
		var total, largest int64
		for _, b := range roots {
			total += b
			largest = max(largest, b)
		}
		dups = append(dups, DuplicateModule{
			Name:             name,
			OccurrenceCount:  len(roots),
			TotalWastedBytes: total - largest,
		})
	}
	sort.Slice(dups, func(i, j int) bool {
		if dups[i].TotalWastedBytes != dups[j].TotalWastedBytes {
			return dups[i].TotalWastedBytes > dups[j].TotalWastedBytes
		}
		return dups[i].Name < dups[j].Name
	})
	return dups
}
