package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/memory"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/telemetry"
	"github.com/brennhill/gasoline-perfkit/internal/virtual"
	"github.com/brennhill/gasoline-perfkit/internal/vitals"
)

func newTestServer(t *testing.T, dev bool) (*Server, *monitor.Monitor, *httptest.Server) {
	t.Helper()
	m := monitor.New(monitor.Options{
		Host:               host.NewPushHost(),
		Development:        dev,
		DiagnosticInterval: time.Hour,
	})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)

	s := New(Options{
		Monitor:          m,
		Exporter:         telemetry.NewExporter(prometheus.NewRegistry()),
		LivePingInterval: 50 * time.Millisecond,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, m, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t, false)
	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["running"])
}

func TestIngestEntriesFeedsCollectors(t *testing.T) {
	_, m, ts := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/entries", entriesRequest{
		Entries: []host.Entry{
			{Type: host.EntryLCP, StartTime: 3000, RenderTime: 3000},
			{Type: host.EntryFirstInput, StartTime: 100, ProcessingStart: 250},
			{Type: host.EntryResource, Name: "https://cdn.test/app.js", TransferSize: 1000, DecodedBodySize: 4000, Duration: 120},
			{Type: "bogus"},
		},
		NetworkClass:  "4g",
		ViewportWidth: 500,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var ack map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, 3, ack["accepted"])
	assert.Equal(t, 1, ack["rejected"])

	snap := m.Vitals().GetMetrics()
	require.NotNil(t, snap.LCP)
	assert.Equal(t, 3000.0, *snap.LCP)
	require.NotNil(t, snap.FID)
	assert.Equal(t, 150.0, *snap.FID)

	var perf vitals.Report
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/reports/performance", &perf))
	assert.Equal(t, 70, perf.Score)

	var bun bundle.Report
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/reports/bundle", &bun))
	assert.Equal(t, int64(4000), bun.Metrics.TotalSizeBytes)
}

func TestIngestRejectsBadJSON(t *testing.T) {
	_, _, ts := newTestServer(t, false)
	resp, err := http.Post(ts.URL+"/api/entries", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestWithoutPushHost(t *testing.T) {
	m := monitor.New(monitor.Options{Host: &host.ProcessHost{}})
	ts := httptest.NewServer(New(Options{Monitor: m}).Handler())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/entries", entriesRequest{})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestMemoryAndComponents(t *testing.T) {
	_, m, ts := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/memory", host.MemoryReadout{UsedBytes: 50, TotalBytes: 60, LimitBytes: 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var metrics memory.Metrics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metrics))
	assert.Equal(t, 50.0, metrics.UsagePercentage)

	bad := postJSON(t, ts.URL+"/api/memory", host.MemoryReadout{UsedBytes: 1})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	for range 2 {
		postJSON(t, ts.URL+"/api/components", componentRequest{Name: "Table", Action: "mount"})
	}
	resp = postJSON(t, ts.URL+"/api/components", componentRequest{Name: "Table", Action: "unmount"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, m.Memory().LiveInstances("Table"))

	resp = postJSON(t, ts.URL+"/api/components", componentRequest{Name: "Table", Action: "explode"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/renders", renderRequest{Component: "Table", DurationMs: 12})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 12.0, m.Vitals().GetMetrics().ComponentRenderTime["Table"])

	var memReport memory.Report
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/reports/memory", &memReport))
	require.NotNil(t, memReport.Metrics)
	assert.Len(t, memReport.Components, 1)
}

func TestBundleEndpoints(t *testing.T) {
	_, m, ts := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/bundle/graph", bundle.Graph{Modules: []bundle.ModuleInfo{
		{Name: "node_modules/lodash/index.js", SizeBytes: 10000},
		{Name: "node_modules/a/node_modules/lodash/index.js", SizeBytes: 9000},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/bundle/chunks", chunkRequest{Name: "settings", DurationMs: 40})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = postJSON(t, ts.URL+"/api/bundle/parse-time", map[string]float64{"parse_time_ms": 33})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	met := m.Bundle().Metrics()
	assert.Len(t, met.Duplicates, 1)
	assert.Len(t, met.Chunks, 1)
	assert.Equal(t, 33.0, met.ParseTimeMs)
}

func TestReportsAndDiagnostics(t *testing.T) {
	_, _, ts := newTestServer(t, false)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/reports/last", nil))

	resp := postJSON(t, ts.URL+"/api/diagnostics", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var last monitor.FullReport
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/reports/last", &last))
	assert.NotEmpty(t, last.ID)

	var full monitor.FullReport
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/reports/full", &full))
	assert.NotEqual(t, last.ID, full.ID)
}

func TestVirtualRange(t *testing.T) {
	_, _, ts := newTestServer(t, false)

	var body rangeResponse
	code := getJSON(t, ts.URL+"/api/virtual/range?scroll_top=2500&item_height=50&container_height=500&item_count=1000&overscan=5&index=100&align=center", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, virtual.Range{Start: 45, End: 65}, body.Range)
	assert.Len(t, body.Items, 21)
	assert.Equal(t, 50000.0, body.TotalSize)
	require.NotNil(t, body.ScrollOffset)
	assert.Equal(t, 4775.0, *body.ScrollOffset)

	code = getJSON(t, ts.URL+"/api/virtual/range?item_height=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var empty rangeResponse
	getJSON(t, ts.URL+"/api/virtual/range?item_height=0&container_height=500&item_count=10", &empty)
	assert.True(t, empty.Range.IsEmpty())
	assert.Empty(t, empty.Items)
}

func TestVirtualRangeLimits(t *testing.T) {
	_, _, ts := newTestServer(t, false)

	for name, query := range map[string]string{
		"list too long":     "item_height=1&container_height=500&item_count=50000000",
		"window too wide":   "item_height=1&container_height=50000&item_count=100000",
		"non-integer count": "item_height=1&container_height=500&item_count=1e9",
		"infinite height":   "item_height=Inf&container_height=500&item_count=10",
	} {
		code := getJSON(t, ts.URL+"/api/virtual/range?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, code, name)
	}

	var body rangeResponse
	code := getJSON(t, ts.URL+"/api/virtual/range?item_height=1&container_height=9990&item_count=1000000&overscan=5", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Items, body.Range.Len())
	assert.LessOrEqual(t, len(body.Items), 10_000)
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, false)
	getJSON(t, ts.URL+"/health", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `perfkit_http_requests_total{method="GET",route="/health",status="200"}`)
}

func TestOriginAndHostGuard(t *testing.T) {
	_, _, ts := newTestServer(t, false)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodOptions, ts.URL+"/api/entries", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Host = "attacker.example"
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIsAllowedOrigin(t *testing.T) {
	t.Parallel()
	assert.True(t, isAllowedOrigin("", nil))
	assert.True(t, isAllowedOrigin("http://127.0.0.1:5173", nil))
	assert.True(t, isAllowedOrigin("chrome-extension://abc", nil))
	assert.False(t, isAllowedOrigin("https://app.example", nil))
	assert.True(t, isAllowedOrigin("https://app.example", []string{"https://app.example"}))
	assert.True(t, isAllowedOrigin("https://anything", []string{"*"}))
}

func TestLiveRouteOnlyInDevelopment(t *testing.T) {
	_, _, ts := newTestServer(t, false)
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/debug/live", nil))
}

func TestLiveStreamsReports(t *testing.T) {
	s, m, ts := newTestServer(t, true)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/debug/live"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first monitor.FullReport
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.NotEmpty(t, first.ID)

	pushed := m.RunDiagnostics(context.Background())
	var next monitor.FullReport
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, pushed.ID, next.ID)

	s.Close()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	s.liveWG.Wait()
}

func TestServeShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := monitor.New(monitor.Options{Host: host.NewPushHost()})
	s := New(Options{Monitor: m})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	http.DefaultClient.CloseIdleConnections()
}
