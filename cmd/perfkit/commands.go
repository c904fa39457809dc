// commands.go - One-shot commands: score, bundle, range, probe and mcp.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/cmd/perfkit/output"
	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/config"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/mcp"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/util"
	"github.com/brennhill/gasoline-perfkit/internal/virtual"
	"github.com/brennhill/gasoline-perfkit/internal/vitals"
)

// ============================================
// score
// ============================================

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "Score a saved metrics snapshot",
		ArgsUsage: "<snapshot.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "baseline", Usage: "Compare against this snapshot and report regressions"},
			&cli.IntFlag{Name: "fail-under", Usage: "Fail when the score is below this value"},
		},
		Action: action("score", runScore),
	}
}

func readSnapshot(path string) (vitals.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vitals.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	s := vitals.NewSnapshot()
	if err := json.Unmarshal(data, &s); err != nil {
		return vitals.Snapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return s, nil
}

func runScore(c *cli.Context, _ config.Config, _ *zap.Logger) (*output.Result, error) {
	if c.NArg() != 1 {
		return nil, usageError("score takes exactly one snapshot file")
	}
	snap, err := readSnapshot(c.Args().First())
	if err != nil {
		return nil, err
	}
	report := vitals.BuildReport(snap)
	res := perfResult(report)

	if base := c.String("baseline"); base != "" {
		before, err := readSnapshot(base)
		if err != nil {
			return nil, err
		}
		diff := vitals.Compare(before, snap)
		res.Data = map[string]any{"report": report, "diff": diff}
		res.AddField("verdict", diff.Verdict)
		res.AddField("baseline", fmt.Sprintf("%d → %d", diff.ScoreBefore, diff.ScoreAfter))
		if diff.Regressed() {
			res.Success = false
			res.Error = diff.Summary
		}
	}
	if floor := c.Int("fail-under"); c.IsSet("fail-under") && report.Score < floor {
		res.Success = false
		res.Error = fmt.Sprintf("score %d is below %d", report.Score, floor)
	}
	return res, nil
}

// ============================================
// bundle
// ============================================

func bundleCommand() *cli.Command {
	return &cli.Command{
		Name:      "bundle",
		Usage:     "Analyze a bundler metafile",
		ArgsUsage: "[metafile]",
		Action:    action("bundle", runBundle),
	}
}

func runBundle(c *cli.Context, cfg config.Config, logger *zap.Logger) (*output.Result, error) {
	path := cfg.Metafile
	if c.NArg() > 0 {
		path = c.Args().First()
	}
	if path == "" {
		return nil, usageError("bundle needs a metafile argument or --metafile")
	}
	provider, err := bundle.NewMetafileProvider(path, cfg.VendorGlobs, logger)
	if err != nil {
		return nil, err
	}
	analyzer := bundle.NewAnalyzer(nil, provider, bundle.NewSizeTable(cfg.SizeTable), logger)
	if err := analyzer.Refresh(c.Context); err != nil {
		return nil, err
	}
	return bundleResult(analyzer.GenerateReport()), nil
}

// ============================================
// range
// ============================================

func rangeCommand() *cli.Command {
	return &cli.Command{
		Name:  "range",
		Usage: "Compute the rows a fixed-height virtual list renders",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "scroll-top", Usage: "Scroll offset in px"},
			&cli.Float64Flag{Name: "item-height", Usage: "Row height in px", Required: true},
			&cli.Float64Flag{Name: "container-height", Usage: "Viewport height in px", Required: true},
			&cli.IntFlag{Name: "count", Usage: "Number of rows", Required: true},
			&cli.IntFlag{Name: "overscan", Usage: "Extra rows on each edge", Value: 5},
			&cli.IntFlag{Name: "index", Usage: "Row to compute a scroll offset for"},
			&cli.StringFlag{Name: "align", Usage: "start, center or end", Value: "start"},
		},
		Action: action("range", runRange),
	}
}

func runRange(c *cli.Context, _ config.Config, _ *zap.Logger) (*output.Result, error) {
	itemHeight, containerHeight, count := c.Float64("item-height"), c.Float64("container-height"), c.Int("count")
	switch {
	case !(itemHeight > 0):
		return nil, usageError("--item-height must be positive")
	case !(containerHeight > 0):
		return nil, usageError("--container-height must be positive")
	case count < 0:
		return nil, usageError("--count must not be negative")
	}
	rng := virtual.ComputeVisibleRange(c.Float64("scroll-top"), itemHeight, containerHeight, count, c.Int("overscan"))
	data := map[string]any{
		"range":      rng,
		"rendered":   rng.Len(),
		"total_size": float64(count) * itemHeight,
	}
	res := &output.Result{Success: true, Command: "range", Summary: "Empty range", Data: data}
	if !rng.IsEmpty() {
		res.Summary = fmt.Sprintf("Render rows %d-%d (%d of %d)", rng.Start, rng.End, rng.Len(), count)
	}
	res.AddField("total size", fmt.Sprintf("%.0fpx", float64(count)*itemHeight))
	if c.IsSet("index") {
		off := virtual.ScrollOffsetForIndex(c.Int("index"), count, itemHeight, containerHeight, virtual.ParseAlign(c.String("align")))
		data["scroll_offset"] = off
		res.AddField("scroll to", fmt.Sprintf("%.0fpx", off))
	}
	return res, nil
}

// ============================================
// probe
// ============================================

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Load a page in Chrome and run one diagnostic pass",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "control-url", Usage: "DevTools websocket of a running Chrome (default: launch headless)"},
			&cli.DurationFlag{Name: "settle", Usage: "How long to observe the page after load", Value: 3 * time.Second},
		},
		Action: action("probe", runProbe),
	}
}

func runProbe(c *cli.Context, cfg config.Config, logger *zap.Logger) (*output.Result, error) {
	if c.NArg() != 1 {
		return nil, usageError("probe takes exactly one url")
	}
	url := c.Args().First()
	if _, ok := util.HTTPOrigin(url); !ok {
		return nil, usageError("probe needs an absolute http(s) url, got %q", url)
	}
	ctx := c.Context
	h, err := host.OpenRodHost(ctx, host.RodConfig{
		ControlURL:   c.String("control-url"),
		URL:          url,
		PollInterval: 500 * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	sink, err := newSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer sink.Close()
	mp, err := newMetafileProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := monitorOptions(cfg, h, sink, mp, logger)
	opts.Page = util.PageKey(url)
	mon := monitor.New(opts)
	if err := mon.Start(ctx); err != nil {
		return nil, err
	}
	defer mon.Stop()

	settle := c.Duration("settle")
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(settle):
	}
	if err := h.Poll(ctx); err != nil {
		logger.Warn("final poll failed", zap.Error(err))
	}
	res := fullResult("probe", mon.RunDiagnostics(ctx))
	res.AddField("observed", formatDuration(settle))
	return res, nil
}

// ============================================
// mcp
// ============================================

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve perfkit tools over MCP on stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "Instrument this page in Chrome instead of an empty push host"},
			&cli.StringFlag{Name: "control-url", Usage: "DevTools websocket of a running Chrome"},
		},
		Action: action("mcp", runMCP),
	}
}

func runMCP(c *cli.Context, cfg config.Config, logger *zap.Logger) (*output.Result, error) {
	ctx := c.Context
	var h host.Host = host.NewPushHost(host.WithLogger(logger))
	if url := c.String("url"); url != "" {
		rh, err := host.OpenRodHost(ctx, host.RodConfig{
			ControlURL:   c.String("control-url"),
			URL:          url,
			PollInterval: time.Second,
		}, logger)
		if err != nil {
			return nil, err
		}
		defer rh.Close()
		h = rh
		cfg.Page = util.PageKey(url)
	}
	sink, err := newSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer sink.Close()
	mp, err := newMetafileProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	m := monitor.New(monitorOptions(cfg, h, sink, mp, logger))
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	defer m.Stop()

	if err := mcp.Run(ctx, m, logger); err != nil {
		return nil, err
	}
	return nil, nil
}
