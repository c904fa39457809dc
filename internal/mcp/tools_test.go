package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/virtual"
)

func connect(t *testing.T, m *monitor.Monitor) *sdk.ClientSession {
	t.Helper()
	srv := NewServer(m, nil)
	serverT, clientT := sdk.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx, serverT) }()

	client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func call(t *testing.T, s *sdk.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		tc, ok := c.(*sdk.TextContent)
		require.True(t, ok)
		parts = append(parts, tc.Text)
	}
	return strings.Join(parts, "\n"), res.IsError
}

// payload strips the summary line and decodes the JSON body.
func payload(t *testing.T, text string, v any) {
	t.Helper()
	_, body, ok := strings.Cut(text, "\n")
	require.True(t, ok, text)
	if i := strings.Index(body, "\n_warnings"); i >= 0 {
		body = body[:i]
	}
	require.NoError(t, json.Unmarshal([]byte(body), v))
}

func newMonitor(t *testing.T) (*monitor.Monitor, *host.PushHost) {
	t.Helper()
	h := host.NewPushHost()
	m := monitor.New(monitor.Options{Host: h, DiagnosticInterval: time.Hour})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m, h
}

func TestListTools(t *testing.T) {
	m, _ := newMonitor(t)
	s := connect(t, m)

	res, err := s.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"perf_report", "bundle_report", "memory_report", "full_report", "visible_range"}, names)
}

func TestPerfReport(t *testing.T) {
	m, h := newMonitor(t)
	h.Deliver(host.Entry{Type: host.EntryLCP, StartTime: 5000, RenderTime: 5000})
	s := connect(t, m)

	text, isErr := call(t, s, "perf_report", map[string]any{})
	require.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Performance score 75/100"), text)

	var r struct {
		Score   int               `json:"score"`
		Ratings map[string]string `json:"ratings"`
	}
	payload(t, text, &r)
	assert.Equal(t, 75, r.Score)
	assert.Equal(t, "poor", r.Ratings["lcp"])

	md, isErr := call(t, s, "perf_report", map[string]any{"format": "markdown"})
	require.False(t, isErr)
	assert.Contains(t, md, "| Severity | Category | Issue | Impact |")
	assert.Contains(t, md, "| critical | loading |")
}

func TestMemoryReportOptimize(t *testing.T) {
	m, _ := newMonitor(t)
	m.Memory().RegisterComponent("Grid")
	s := connect(t, m)

	text, isErr := call(t, s, "memory_report", map[string]any{"optimize": true})
	require.False(t, isErr)
	var r struct {
		Components []struct {
			Name string `json:"name"`
		} `json:"components"`
	}
	payload(t, text, &r)
	require.Len(t, r.Components, 1)
	assert.Equal(t, "Grid", r.Components[0].Name)
}

func TestBundleAndFullReport(t *testing.T) {
	m, _ := newMonitor(t)
	s := connect(t, m)

	text, isErr := call(t, s, "bundle_report", nil)
	require.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Bundle score 100/100"), text)

	_, ok := m.LastReport()
	require.False(t, ok)
	text, isErr = call(t, s, "full_report", map[string]any{"run": true})
	require.False(t, isErr)
	assert.Contains(t, text, "0 budget violation(s)")
	_, ok = m.LastReport()
	assert.True(t, ok, "run=true performs a diagnostic pass")
}

func TestVisibleRange(t *testing.T) {
	m, _ := newMonitor(t)
	s := connect(t, m)

	text, isErr := call(t, s, "visible_range", map[string]any{
		"scroll_top": 2500, "item_height": 50, "container_height": 500,
		"item_count": 1000, "index": 999, "align": "end",
	})
	require.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Render rows 45-65 (21 of 1000)"), text)

	var r visibleRangeResult
	payload(t, text, &r)
	assert.Equal(t, virtual.Range{Start: 45, End: 65}, r.Range)
	require.NotNil(t, r.ScrollOffset)
	assert.Equal(t, 49500.0, *r.ScrollOffset)
}

func TestVisibleRangeErrors(t *testing.T) {
	m, _ := newMonitor(t)
	s := connect(t, m)

	text, isErr := call(t, s, "visible_range", map[string]any{"item_height": 0, "container_height": 500, "item_count": 10})
	require.True(t, isErr)
	assert.Contains(t, text, "invalid_param")
	assert.Contains(t, text, `"param":"item_height"`)

	text, isErr = call(t, s, "visible_range", map[string]any{"item_height": "tall"})
	require.True(t, isErr)
	assert.Contains(t, text, "invalid_json")
}

func TestUnknownParamWarning(t *testing.T) {
	m, _ := newMonitor(t)
	s := connect(t, m)

	text, isErr := call(t, s, "visible_range", map[string]any{
		"item_height": 10, "container_height": 100, "item_count": 0, "itemHeight": 10,
	})
	require.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Empty range"), text)
	assert.Contains(t, text, "_warnings: unknown parameter 'itemHeight' (ignored)")
}

func TestMarkdownTableEscapes(t *testing.T) {
	t.Parallel()
	out := MarkdownTable([]string{"A", "B"}, [][]string{{"x|y", "line\nbreak"}})
	assert.Equal(t, "| A | B |\n| --- | --- |\n| x\\|y | line break |\n", out)
	assert.Empty(t, MarkdownTable([]string{"A"}, nil))
}
