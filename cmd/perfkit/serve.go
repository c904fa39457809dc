// serve.go - serve command: the ingest/report daemon assembled with fx.
// config → logger → host → sink/provider → monitor → exporter → server.
package main

import (
	"context"
	"fmt"
	"net"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/analytics"
	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/config"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/logging"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/server"
	"github.com/brennhill/gasoline-perfkit/internal/telemetry"
	"github.com/brennhill/gasoline-perfkit/internal/util"
)

// serveFlags are serve-only options that do not belong in the config file.
type serveFlags struct {
	AllowedOrigins []string
	AllowAnyHost   bool
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the ingest and report server",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "allow-origin", Usage: "Extra allowed Origin, repeatable (* allows any)"},
			&cli.BoolFlag{Name: "allow-any-host", Usage: "Skip Host header validation for non-loopback binds"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	app := fx.New(serveOptions(cfg, serveFlags{
		AllowedOrigins: c.StringSlice("allow-origin"),
		AllowAnyHost:   c.Bool("allow-any-host"),
	}))
	if err := app.Err(); err != nil {
		return fmt.Errorf("assemble server: %w", err)
	}

	startCtx, cancel := context.WithTimeout(c.Context, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	var sig fx.ShutdownSignal
	select {
	case <-c.Context.Done():
	case sig = <-app.Wait():
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if sig.ExitCode != 0 {
		return cli.Exit("", sig.ExitCode)
	}
	return nil
}

// serveOptions is the whole serve dependency graph.
func serveOptions(cfg config.Config, flags serveFlags) fx.Option {
	return fx.Options(
		fx.Supply(cfg, flags),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			provideLogger,
			providePushHost,
			provideSink,
			newMetafileProvider,
			provideMonitor,
			provideExporter,
			provideServer,
		),
		fx.Invoke(watchMetafile, runServer),
	)
}

// ============================================
// Providers
// ============================================

func provideLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log, cfg.Development)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() { _ = logger.Sync() }))
	return logger, nil
}

func providePushHost(logger *zap.Logger) *host.PushHost {
	return host.NewPushHost(host.WithLogger(logger))
}

func provideSink(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (analytics.Sink, error) {
	sink, err := newSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(sink.Close))
	return sink, nil
}

func provideMonitor(lc fx.Lifecycle, cfg config.Config, h *host.PushHost, sink analytics.Sink, mp *bundle.MetafileProvider, logger *zap.Logger) *monitor.Monitor {
	m := monitor.New(monitorOptions(cfg, h, sink, mp, logger))
	lc.Append(fx.Hook{
		OnStart: m.Start,
		OnStop: func(context.Context) error {
			m.Stop()
			return nil
		},
	})
	return m
}

func provideExporter(lc fx.Lifecycle, m *monitor.Monitor) *telemetry.Exporter {
	exp := telemetry.NewExporter(nil)
	var detach func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			detach = exp.Attach(m)
			return nil
		},
		OnStop: func(context.Context) error {
			detach()
			return nil
		},
	})
	return exp
}

func provideServer(flags serveFlags, m *monitor.Monitor, exp *telemetry.Exporter, logger *zap.Logger) *server.Server {
	return server.New(server.Options{
		Monitor:        m,
		Exporter:       exp,
		Logger:         logger,
		AllowedOrigins: flags.AllowedOrigins,
		AllowAnyHost:   flags.AllowAnyHost,
	})
}

// ============================================
// Invocations
// ============================================

// watchMetafile feeds metafile rewrites into the bundle analyzer.
func watchMetafile(lc fx.Lifecycle, mp *bundle.MetafileProvider, m *monitor.Monitor, logger *zap.Logger) {
	if mp == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			util.SafeGo(logger, "metafile.watch", func() {
				defer close(done)
				if err := mp.Watch(ctx, m.Bundle().SetGraph); err != nil {
					logger.Warn("metafile watch stopped", zap.String("path", mp.Path()), zap.Error(err))
				}
			})
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// runServer listens on start so bind errors fail startup, then serves in
// the background. A serve failure shuts the whole app down with code 1.
func runServer(lc fx.Lifecycle, cfg config.Config, srv *server.Server, shutdowner fx.Shutdowner, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr())
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
			}
			logger.Info("perfkit listening", zap.String("addr", ln.Addr().String()),
				zap.Bool("development", cfg.Development))
			util.SafeGo(logger, "http.serve", func() {
				defer close(done)
				if err := srv.Serve(ctx, ln); err != nil {
					logger.Error("server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(exitFailure))
				}
			})
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
