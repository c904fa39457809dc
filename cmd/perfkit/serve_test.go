package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/brennhill/gasoline-perfkit/internal/config"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/server"
)

func serveTestConfig() config.Config {
	cfg := config.Defaults()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.DiagnosticInterval = time.Hour
	cfg.Log.Level = "error"
	return cfg
}

func TestServeGraphValidates(t *testing.T) {
	t.Parallel()
	require.NoError(t, fx.ValidateApp(serveOptions(serveTestConfig(), serveFlags{})))
}

func TestServeLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfg := serveTestConfig()
	cfg.Metafile = writeFile(t, dir, "meta.json", `{"inputs":{"src/a.ts":{"bytes":1}},"outputs":{}}`)
	cfg.AnalyticsDB = filepath.Join(dir, "vitals.db")

	var (
		m    *monitor.Monitor
		srv  *server.Server
		push *host.PushHost
	)
	app := fxtest.New(t, serveOptions(cfg, serveFlags{}), fx.Populate(&m, &srv, &push))
	app.RequireStart()
	require.True(t, m.Running())
	assert.Len(t, m.Bundle().Metrics().Modules, 1, "initial graph loaded from the metafile")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Host = "127.0.0.1"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	push.Deliver(host.Entry{Type: host.EntryLCP, StartTime: 1200, RenderTime: 1200})
	assert.NotNil(t, m.Vitals().GetMetrics().LCP)

	// The watcher picks up rewrites.
	writeFile(t, dir, "meta.json", metafile)
	assert.Eventually(t, func() bool {
		return len(m.Bundle().Metrics().Modules) == 3
	}, 5*time.Second, 20*time.Millisecond)

	app.RequireStop()
	assert.False(t, m.Running())
}

func TestServeFailsOnBusyPort(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()
	_, port, err := net.SplitHostPort(busy.Listener.Addr().String())
	require.NoError(t, err)
	cfg := serveTestConfig()
	cfg.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	app := fx.New(serveOptions(cfg, serveFlags{}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = app.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
