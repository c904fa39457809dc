// main.go - perfkit CLI: serve, probe, score, bundle, range and mcp.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/cmd/perfkit/output"
	"github.com/brennhill/gasoline-perfkit/internal/config"
	"github.com/brennhill/gasoline-perfkit/internal/logging"
	"github.com/brennhill/gasoline-perfkit/internal/mcp"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := newApp(stdout, stderr).RunContext(ctx, args)
	if err == nil {
		return exitOK
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(stderr, "perfkit:", msg)
		}
		return exitErr.ExitCode()
	}
	fmt.Fprintln(stderr, "perfkit:", err)
	return exitFailure
}

func newApp(stdout, stderr io.Writer) *cli.App {
	mcp.Version = version
	return &cli.App{
		Name:      "perfkit",
		Usage:     "Web performance instrumentation: vitals, bundle, memory and virtualization",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		// Exit codes are mapped by run, never by os.Exit inside the app.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: human or json"},
			&cli.BoolFlag{Name: "dev", Usage: "Development mode (live stream, console logging)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-file", Usage: "Also write JSON logs to this file (rotated)"},
			&cli.StringFlag{Name: "host", Usage: "Listen host for serve"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port for serve"},
			&cli.StringFlag{Name: "metafile", Usage: "Bundler metafile to derive the module graph from"},
			&cli.StringFlag{Name: "analytics-db", Usage: "SQLite file that persists every recorded vital"},
			&cli.DurationFlag{Name: "interval", Usage: "Diagnostic interval"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			probeCommand(),
			scoreCommand(),
			bundleCommand(),
			rangeCommand(),
			mcpCommand(),
		},
	}
}

// loadConfig resolves the config cascade with flags set on the command line.
func loadConfig(c *cli.Context) (config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return config.Config{}, fmt.Errorf("working directory: %w", err)
	}
	flags := &config.FlagOverrides{}
	if c.IsSet("format") {
		v := c.String("format")
		flags.Format = &v
	}
	if c.IsSet("dev") {
		v := c.Bool("dev")
		flags.Development = &v
	}
	if c.IsSet("log-level") {
		v := c.String("log-level")
		flags.LogLevel = &v
	}
	if c.IsSet("log-file") {
		v := c.String("log-file")
		flags.LogFile = &v
	}
	if c.IsSet("host") {
		v := c.String("host")
		flags.Host = &v
	}
	if c.IsSet("port") {
		v := c.Int("port")
		flags.Port = &v
	}
	if c.IsSet("metafile") {
		v := c.String("metafile")
		flags.Metafile = &v
	}
	if c.IsSet("analytics-db") {
		v := c.String("analytics-db")
		flags.AnalyticsDB = &v
	}
	if c.IsSet("interval") {
		v := c.Duration("interval")
		flags.DiagnosticInterval = &v
	}
	return config.Load(dir, flags)
}

// commandFunc runs one command against the resolved config.
type commandFunc func(c *cli.Context, cfg config.Config, logger *zap.Logger) (*output.Result, error)

// action wraps fn with config loading, logging and result formatting.
// Usage errors (cli.Exit) pass through; other errors become a failed Result.
func action(name string, fn commandFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		logger, err := logging.New(cfg.Log, cfg.Development)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		defer func() { _ = logger.Sync() }()

		res, err := fn(c, cfg, logger.Named(name))
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			return err
		}
		if err != nil {
			res = &output.Result{Command: name, Error: err.Error()}
		}
		if res == nil {
			return nil
		}
		if err := output.GetFormatter(cfg.Format).Format(c.App.Writer, res); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if !res.Success {
			return cli.Exit("", exitFailure)
		}
		return nil
	}
}

// usageError reports a bad invocation with exit code 2.
func usageError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitUsage)
}

func formatMs(v float64) string {
	return fmt.Sprintf("%.0fms", v)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
