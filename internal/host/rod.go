// rod.go - Host backed by a real Chrome tab driven over CDP.
// An init script installs buffered PerformanceObservers in the page; Poll
// reads everything recorded so far and re-delivers only the new entries
// through an embedded PushHost, so observers see the same ordered stream
// they would get from the ingest server.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/util"
)

// recorderScript buffers entries of every supported type in window.__perfkit.
// Types the browser does not support are recorded in unsupported[].
const recorderScript = `(() => {
  if (window.__perfkit) return;
  const store = { entries: {}, unsupported: [] };
  window.__perfkit = store;
  const types = ["paint", "largest-contentful-paint", "first-input", "layout-shift", "navigation", "resource"];
  for (const type of types) {
    store.entries[type] = [];
    try {
      new PerformanceObserver((list) => {
        for (const e of list.getEntries()) store.entries[type].push(e.toJSON ? e.toJSON() : e);
      }).observe({ type, buffered: true });
    } catch (err) {
      store.unsupported.push(type);
    }
  }
})()`

// snapshotScript serialises the recorder state plus memory / network / viewport.
const snapshotScript = `() => {
  const s = window.__perfkit || { entries: {}, unsupported: [] };
  const m = performance.memory;
  const c = navigator.connection;
  return JSON.stringify({
    entries: s.entries,
    unsupported: s.unsupported,
    memory: m ? { used: m.usedJSHeapSize, total: m.totalJSHeapSize, limit: m.jsHeapSizeLimit } : null,
    network: c && c.effectiveType ? c.effectiveType : "",
    viewport: window.innerWidth || 0
  });
}`

// RodConfig configures a browser-backed host.
type RodConfig struct {
	// ControlURL is a DevTools websocket URL. Empty launches a local headless Chrome.
	ControlURL string
	// URL is the page to open.
	URL string
	// PollInterval controls how often the page is read. Zero means manual Poll only.
	PollInterval time.Duration
	// NavigateTimeout bounds the initial navigation.
	NavigateTimeout time.Duration
}

// RodHost implements Host over a rod page.
type RodHost struct {
	*PushHost

	logger  *zap.Logger
	browser *rod.Browser
	page    *rod.Page
	ticker  *util.Ticker

	mu          sync.Mutex
	seen        map[EntryType]int
	unsupported map[EntryType]bool
	closeOnce   sync.Once
}

// OpenRodHost connects (or launches) Chrome, installs the recorder and
// navigates to cfg.URL.
func OpenRodHost(ctx context.Context, cfg RodConfig, logger *zap.Logger) (*RodHost, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("rod host: url is required")
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 30 * time.Second
	}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("rod host: launch: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("rod host: connect: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("rod host: create tab: %w", err)
	}
	if _, err := page.EvalOnNewDocument(recorderScript); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("rod host: install recorder: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(cfg.URL); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("rod host: navigate %s: %w", cfg.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		logger.Warn("rod host: wait load timeout", zap.String("url", cfg.URL), zap.Error(err))
	}

	h := &RodHost{
		PushHost:    NewPushHost(WithLogger(logger)),
		logger:      logger,
		browser:     b,
		page:        page,
		seen:        make(map[EntryType]int),
		unsupported: make(map[EntryType]bool),
	}
	if err := h.Poll(ctx); err != nil {
		logger.Warn("rod host: initial poll failed", zap.Error(err))
	}
	if cfg.PollInterval > 0 {
		h.ticker = util.StartTicker(logger, "rod.poll", cfg.PollInterval, func() {
			if err := h.Poll(ctx); err != nil {
				logger.Debug("rod host: poll failed", zap.Error(err))
			}
		})
	}
	return h, nil
}

// Observe implements Host, reporting browser-side capability gaps.
func (h *RodHost) Observe(t EntryType, fn func(Entry)) (Subscription, error) {
	h.mu.Lock()
	unsupported := h.unsupported[t]
	h.mu.Unlock()
	if unsupported {
		return nil, ErrUnsupported
	}
	return h.PushHost.Observe(t, fn)
}

// Poll reads the page recorder and delivers entries not seen before.
func (h *RodHost) Poll(ctx context.Context) error {
	res, err := h.page.Context(ctx).Eval(snapshotScript)
	if err != nil {
		return fmt.Errorf("rod host: eval: %w", err)
	}
	snap, err := decodeRodSnapshot([]byte(res.Value.Str()))
	if err != nil {
		return err
	}
	h.apply(snap)
	return nil
}

// apply delivers new entries and readouts from one page snapshot.
func (h *RodHost) apply(snap rodSnapshot) {
	h.mu.Lock()
	for _, t := range snap.Unsupported {
		h.unsupported[EntryType(t)] = true
	}
	var fresh []Entry
	for _, t := range AllEntryTypes {
		raw := snap.Entries[string(t)]
		from := h.seen[t]
		if from > len(raw) {
			// Page reloaded, recorder restarted.
			from = 0
		}
		for _, r := range raw[from:] {
			fresh = append(fresh, r.toEntry(t))
		}
		h.seen[t] = len(raw)
	}
	h.mu.Unlock()

	if snap.Memory != nil {
		h.SetMemory(MemoryReadout{
			UsedBytes:  uint64(snap.Memory.Used),
			TotalBytes: uint64(snap.Memory.Total),
			LimitBytes: uint64(snap.Memory.Limit),
		})
	}
	if snap.Network != "" {
		h.SetNetworkClass(snap.Network)
	}
	if snap.Viewport > 0 {
		h.SetViewport(snap.Viewport)
	}
	h.Deliver(fresh...)
}

// Close stops polling and closes the browser connection.
func (h *RodHost) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.ticker.Stop()
		err = h.browser.Close()
	})
	return err
}

// ============================================
// Page snapshot decoding
// ============================================

type rodSnapshot struct {
	Entries     map[string][]rodEntry `json:"entries"`
	Unsupported []string              `json:"unsupported"`
	Memory      *struct {
		Used  float64 `json:"used"`
		Total float64 `json:"total"`
		Limit float64 `json:"limit"`
	} `json:"memory"`
	Network  string  `json:"network"`
	Viewport float64 `json:"viewport"`
}

// rodEntry uses the browser's camelCase PerformanceEntry.toJSON() names.
type rodEntry struct {
	Name                     string  `json:"name"`
	StartTime                float64 `json:"startTime"`
	Duration                 float64 `json:"duration"`
	RenderTime               float64 `json:"renderTime"`
	LoadTime                 float64 `json:"loadTime"`
	Size                     float64 `json:"size"`
	ProcessingStart          float64 `json:"processingStart"`
	Value                    float64 `json:"value"`
	HadRecentInput           bool    `json:"hadRecentInput"`
	RequestStart             float64 `json:"requestStart"`
	ResponseStart            float64 `json:"responseStart"`
	ResponseEnd              float64 `json:"responseEnd"`
	DomContentLoadedEventEnd float64 `json:"domContentLoadedEventEnd"`
	LoadEventEnd             float64 `json:"loadEventEnd"`
	TransferSize             int64   `json:"transferSize"`
	EncodedBodySize          int64   `json:"encodedBodySize"`
	DecodedBodySize          int64   `json:"decodedBodySize"`
	InitiatorType            string  `json:"initiatorType"`
}

func (r rodEntry) toEntry(t EntryType) Entry {
	return Entry{
		Type:                     t,
		Name:                     r.Name,
		StartTime:                r.StartTime,
		Duration:                 r.Duration,
		RenderTime:               r.RenderTime,
		LoadTime:                 r.LoadTime,
		Size:                     r.Size,
		ProcessingStart:          r.ProcessingStart,
		Value:                    r.Value,
		HadRecentInput:           r.HadRecentInput,
		RequestStart:             r.RequestStart,
		ResponseStart:            r.ResponseStart,
		ResponseEnd:              r.ResponseEnd,
		DomContentLoadedEventEnd: r.DomContentLoadedEventEnd,
		LoadEventEnd:             r.LoadEventEnd,
		TransferSize:             r.TransferSize,
		EncodedBodySize:          r.EncodedBodySize,
		DecodedBodySize:          r.DecodedBodySize,
		InitiatorType:            r.InitiatorType,
	}
}

func decodeRodSnapshot(data []byte) (rodSnapshot, error) {
	var snap rodSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return rodSnapshot{}, fmt.Errorf("rod host: decode snapshot: %w", err)
	}
	return snap, nil
}
