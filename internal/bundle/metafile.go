// metafile.go - Module graph from an esbuild metafile on disk.
package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Metafile is the esbuild metafile JSON structure.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput is an input file in the metafile.
type MetafileInput struct {
	Bytes   int64            `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"`
}

// MetafileImport is an import edge in the metafile.
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// MetafileOutput is an output chunk in the metafile.
type MetafileOutput struct {
	Bytes      int64                   `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"` // esbuild wire name
}

// InputContrib is the contribution of an input to an output.
type InputContrib struct {
	BytesInOutput int64 `json:"bytesInOutput"` // esbuild wire name
}

// DefaultVendorGlobs marks third-party modules.
var DefaultVendorGlobs = []string{"**/node_modules/**"}

// MetafileProvider reads an esbuild metafile. The file is re-parsed only
// when its content fingerprint changes.
type MetafileProvider struct {
	path        string
	vendorGlobs []string
	logger      *zap.Logger

	mu          sync.Mutex
	fingerprint uint64
	graph       Graph
	loaded      bool
}

// NewMetafileProvider validates the vendor globs. Empty globs fall back to
// DefaultVendorGlobs.
func NewMetafileProvider(path string, vendorGlobs []string, logger *zap.Logger) (*MetafileProvider, error) {
	if len(vendorGlobs) == 0 {
		vendorGlobs = DefaultVendorGlobs
	}
	for _, g := range vendorGlobs {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid vendor glob %q", g)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetafileProvider{path: path, vendorGlobs: vendorGlobs, logger: logger.Named("bundle.metafile")}, nil
}

// Path returns the metafile location.
func (p *MetafileProvider) Path() string { return p.path }

// Graph implements ModuleGraphProvider.
func (p *MetafileProvider) Graph(ctx context.Context) (Graph, error) {
	g, _, err := p.load(ctx)
	return g, err
}

// load returns the graph and whether it was re-parsed.
func (p *MetafileProvider) load(ctx context.Context) (Graph, bool, error) {
	if err := ctx.Err(); err != nil {
		return Graph{}, false, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return Graph{}, false, fmt.Errorf("read metafile: %w", err)
	}
	sum := xxhash.Sum64(data)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded && sum == p.fingerprint {
		return p.graph, false, nil
	}
	var mf Metafile
	if err := json.Unmarshal(data, &mf); err != nil {
		return Graph{}, false, fmt.Errorf("parse metafile: %w", err)
	}
	p.graph = p.buildGraph(mf)
	p.fingerprint = sum
	p.loaded = true
	p.logger.Debug("metafile loaded", zap.Int("modules", len(p.graph.Modules)), zap.Uint64("fingerprint", sum))
	return p.graph, true, nil
}

func (p *MetafileProvider) isVendor(path string) bool {
	for _, g := range p.vendorGlobs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

func (p *MetafileProvider) buildGraph(mf Metafile) Graph {
	type acc struct {
		inOutput int64
		chunks   map[string]bool
		entry    bool
	}
	accs := make(map[string]*acc, len(mf.Inputs))
	get := func(name string) *acc {
		a := accs[name]
		if a == nil {
			a = &acc{chunks: make(map[string]bool)}
			accs[name] = a
		}
		return a
	}
	for outName, out := range mf.Outputs {
		for inName, c := range out.Inputs {
			a := get(inName)
			a.inOutput += c.BytesInOutput
			a.chunks[outName] = true
		}
		if out.EntryPoint != "" {
			get(out.EntryPoint).entry = true
		}
	}
	for inName := range mf.Inputs {
		get(inName)
	}

	modules := make([]ModuleInfo, 0, len(accs))
	for name, a := range accs {
		size := a.inOutput
		if size == 0 {
			size = mf.Inputs[name].Bytes
		}
		chunks := make([]string, 0, len(a.chunks))
		for c := range a.chunks {
			chunks = append(chunks, c)
		}
		sort.Strings(chunks)
		modules = append(modules, ModuleInfo{
			Name:             name,
			SizeBytes:        size,
			GzippedSizeBytes: int64(float64(size) * DefaultGzipRatio),
			Chunks:           chunks,
			IsEntry:          a.entry,
			IsVendor:         p.isVendor(name),
		})
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
	return Graph{Modules: modules}
}

// Watch reloads the graph whenever the metafile changes and passes it to
// onChange. Blocks until ctx is done. The directory is watched so editors
// and bundlers that replace the file atomically are still seen.
func (p *MetafileProvider) Watch(ctx context.Context, onChange func(Graph)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(p.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(p.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			g, changed, err := p.load(ctx)
			if err != nil {
				// Partially written files fail to parse; the next write retries.
				p.logger.Debug("metafile reload failed", zap.Error(err))
				continue
			}
			if changed {
				onChange(g)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				p.logger.Warn("watcher overflow", zap.Error(err))
				continue
			}
			p.logger.Warn("watcher error", zap.Error(err))
		}
	}
}
