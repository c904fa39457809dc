// tools.go - perfkit tools on an MCP server.
// perf_report, bundle_report, memory_report and full_report read from the
// monitor; visible_range is pure windowing math.
package mcp

import (
	"context"
	"fmt"
	"strconv"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/virtual"
)

// Version is reported in the MCP implementation info.
var Version = "dev"

// NewServer builds an MCP server exposing m.
func NewServer(m *monitor.Monitor, logger *zap.Logger) *sdk.Server {
	srv := sdk.NewServer(&sdk.Implementation{Name: "perfkit", Version: Version}, nil)
	Register(srv, m, logger)
	return srv
}

// Run serves MCP over stdio until ctx is done or the client disconnects.
func Run(ctx context.Context, m *monitor.Monitor, logger *zap.Logger) error {
	if err := NewServer(m, logger).Run(ctx, &sdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

// Register adds every perfkit tool to srv.
func Register(srv *sdk.Server, m *monitor.Monitor, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &tools{mon: m, logger: logger.Named("mcp")}
	t.registerPerfReport(srv)
	t.registerBundleReport(srv)
	t.registerMemoryReport(srv)
	t.registerFullReport(srv)
	t.registerVisibleRange(srv)
}

type tools struct {
	mon    *monitor.Monitor
	logger *zap.Logger
}

var formatProperty = map[string]any{
	"type":        "string",
	"enum":        []string{"json", "markdown"},
	"description": "Output format (default json)",
}

type formatArgs struct {
	Format string `json:"format"`
}

// handler decodes args against schema and turns decode failures into
// structured errors.
func handler[A any](schema map[string]any, fn func(ctx context.Context, args A) *sdk.CallToolResult) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var args A
		warnings, err := decodeArgs(req.Params.Arguments, schema, &args)
		if err != nil {
			return errorResult(ErrInvalidJSON, "Arguments are not valid JSON: "+err.Error(), "Fix the arguments and call again"), nil
		}
		return withWarnings(fn(ctx, args), warnings), nil
	}
}

// --- perf_report ---

func (t *tools) registerPerfReport(srv *sdk.Server) {
	schema := inputSchema(map[string]any{"format": formatProperty}, nil)
	srv.AddTool(&sdk.Tool{
		Name:        "perf_report",
		Description: "Web Vitals report: 0-100 score, LCP/FID/CLS/FCP/TTFB with ratings, issues and recommendations.",
		InputSchema: schema,
	}, handler(schema, func(_ context.Context, args formatArgs) *sdk.CallToolResult {
		r := t.mon.Vitals().GenerateReport()
		summary := fmt.Sprintf("Performance score %d/100, %d issue(s)", r.Score, len(r.Issues))
		if args.Format != "markdown" {
			return jsonResult(summary, r)
		}
		rows := make([][]string, 0, len(r.Issues))
		for _, is := range r.Issues {
			rows = append(rows, []string{string(is.Severity), string(is.Category), is.Message, strconv.Itoa(is.ImpactScore)})
		}
		return markdownResult(summary, MarkdownTable([]string{"Severity", "Category", "Issue", "Impact"}, rows))
	}))
}

// --- bundle_report ---

func (t *tools) registerBundleReport(srv *sdk.Server) {
	schema := inputSchema(map[string]any{"format": formatProperty}, nil)
	srv.AddTool(&sdk.Tool{
		Name:        "bundle_report",
		Description: "Bundle report: size, gzip estimate, duplicates, load time, score and ranked optimizations.",
		InputSchema: schema,
	}, handler(schema, func(ctx context.Context, args formatArgs) *sdk.CallToolResult {
		if err := t.mon.Bundle().Refresh(ctx); err != nil {
			t.logger.Debug("bundle refresh failed", zap.Error(err))
		}
		r := t.mon.Bundle().GenerateReport()
		summary := fmt.Sprintf("Bundle score %d/100, %d optimization(s)", r.Score, len(r.Optimizations))
		if args.Format != "markdown" {
			return jsonResult(summary, r)
		}
		rows := make([][]string, 0, len(r.Optimizations))
		for _, o := range r.Optimizations {
			rows = append(rows, []string{string(o.Impact), string(o.Kind), o.Description, strconv.FormatFloat(o.Savings, 'f', 0, 64) + " " + o.Unit})
		}
		return markdownResult(summary, MarkdownTable([]string{"Impact", "Kind", "Finding", "Savings"}, rows))
	}))
}

// --- memory_report ---

func (t *tools) registerMemoryReport(srv *sdk.Server) {
	schema := inputSchema(map[string]any{
		"format":   formatProperty,
		"optimize": map[string]any{"type": "boolean", "description": "Run an optimization pass before reporting"},
	}, nil)
	type memoryArgs struct {
		Format   string `json:"format"`
		Optimize bool   `json:"optimize"`
	}
	srv.AddTool(&sdk.Tool{
		Name:        "memory_report",
		Description: "Memory report: heap usage and trend, suspected leaks, live components and recommendations.",
		InputSchema: schema,
	}, handler(schema, func(_ context.Context, args memoryArgs) *sdk.CallToolResult {
		if args.Optimize {
			t.mon.Memory().Optimize()
		}
		r := t.mon.Memory().GenerateReport()
		summary := fmt.Sprintf("%d suspected leak(s)", len(r.Leaks))
		if r.Metrics != nil {
			summary = fmt.Sprintf("Heap %.1f%% (%s), ", r.Metrics.UsagePercentage, r.Metrics.Trend) + summary
		}
		if args.Format != "markdown" {
			return jsonResult(summary, r)
		}
		rows := make([][]string, 0, len(r.Leaks))
		for _, l := range r.Leaks {
			rows = append(rows, []string{string(l.Severity), string(l.Kind), l.Description})
		}
		return markdownResult(summary, MarkdownTable([]string{"Severity", "Kind", "Leak"}, rows))
	}))
}

// --- full_report ---

func (t *tools) registerFullReport(srv *sdk.Server) {
	schema := inputSchema(map[string]any{
		"run": map[string]any{"type": "boolean", "description": "Run a diagnostic pass (budgets, regression check) instead of a side-effect-free snapshot"},
	}, nil)
	type fullArgs struct {
		Run bool `json:"run"`
	}
	srv.AddTool(&sdk.Tool{
		Name:        "full_report",
		Description: "Aggregated performance, bundle and memory report with budget violations.",
		InputSchema: schema,
	}, handler(schema, func(ctx context.Context, args fullArgs) *sdk.CallToolResult {
		var r monitor.FullReport
		if args.Run {
			r = t.mon.RunDiagnostics(ctx)
		} else {
			r = t.mon.FullReport()
		}
		summary := fmt.Sprintf("Performance %d, bundle %d, %d budget violation(s)", r.Performance.Score, r.Bundle.Score, len(r.Violations))
		return jsonResult(summary, r)
	}))
}

// --- visible_range ---

type visibleRangeArgs struct {
	ScrollTop       float64 `json:"scroll_top"`
	ItemHeight      float64 `json:"item_height"`
	ContainerHeight float64 `json:"container_height"`
	ItemCount       int     `json:"item_count"`
	Overscan        *int    `json:"overscan"`
	Index           *int    `json:"index"`
	Align           string  `json:"align"`
}

type visibleRangeResult struct {
	Range        virtual.Range `json:"range"`
	Rendered     int           `json:"rendered"`
	TotalSize    float64       `json:"total_size"`
	ScrollOffset *float64      `json:"scroll_offset,omitempty"`
}

func (t *tools) registerVisibleRange(srv *sdk.Server) {
	number := func(desc string) map[string]any { return map[string]any{"type": "number", "description": desc} }
	schema := inputSchema(map[string]any{
		"scroll_top":       number("Scroll offset in px"),
		"item_height":      number("Fixed row height in px"),
		"container_height": number("Viewport height in px"),
		"item_count":       map[string]any{"type": "integer", "description": "Number of rows"},
		"overscan":         map[string]any{"type": "integer", "description": "Extra rows rendered on each edge (default 5)"},
		"index":            map[string]any{"type": "integer", "description": "Optional row to compute a scroll offset for"},
		"align":            map[string]any{"type": "string", "enum": []string{"start", "center", "end"}},
	}, []string{"item_height", "container_height", "item_count"})

	srv.AddTool(&sdk.Tool{
		Name:        "visible_range",
		Description: "Compute which rows a fixed-height virtual list must render for a scroll position.",
		InputSchema: schema,
	}, handler(schema, func(_ context.Context, a visibleRangeArgs) *sdk.CallToolResult {
		if !(a.ItemHeight > 0) {
			return errorResult(ErrInvalidParam, "item_height must be positive", "Pass a positive 'item_height' and call again", WithParam("item_height"))
		}
		if !(a.ContainerHeight > 0) {
			return errorResult(ErrInvalidParam, "container_height must be positive", "Pass a positive 'container_height' and call again", WithParam("container_height"))
		}
		if a.ItemCount < 0 {
			return errorResult(ErrInvalidParam, "item_count must not be negative", "Pass a non-negative 'item_count' and call again", WithParam("item_count"))
		}
		overscan := 5
		if a.Overscan != nil {
			overscan = *a.Overscan
		}
		rng := virtual.ComputeVisibleRange(a.ScrollTop, a.ItemHeight, a.ContainerHeight, a.ItemCount, overscan)
		res := visibleRangeResult{
			Range:     rng,
			Rendered:  rng.Len(),
			TotalSize: float64(a.ItemCount) * a.ItemHeight,
		}
		if a.Index != nil {
			off := virtual.ScrollOffsetForIndex(*a.Index, a.ItemCount, a.ItemHeight, a.ContainerHeight, virtual.ParseAlign(a.Align))
			res.ScrollOffset = &off
		}
		summary := "Empty range"
		if !rng.IsEmpty() {
			summary = fmt.Sprintf("Render rows %d-%d (%d of %d)", rng.Start, rng.End, rng.Len(), a.ItemCount)
		}
		return jsonResult(summary, res)
	}))
}
