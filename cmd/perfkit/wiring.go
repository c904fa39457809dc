// wiring.go - Constructors shared by serve (through fx) and the one-shot commands.
package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/analytics"
	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/config"
	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
)

// newSink logs every vital and, with an analytics DB configured, persists it.
func newSink(cfg config.Config, logger *zap.Logger) (analytics.Sink, error) {
	logSink := analytics.NewLogSink(logger)
	if cfg.AnalyticsDB == "" {
		return logSink, nil
	}
	db, err := analytics.OpenSQLiteSink(cfg.AnalyticsDB, logger)
	if err != nil {
		return nil, fmt.Errorf("analytics db: %w", err)
	}
	return analytics.NewMultiSink(logSink, db), nil
}

// newMetafileProvider returns nil when no metafile is configured.
func newMetafileProvider(cfg config.Config, logger *zap.Logger) (*bundle.MetafileProvider, error) {
	if cfg.Metafile == "" {
		return nil, nil
	}
	return bundle.NewMetafileProvider(cfg.Metafile, cfg.VendorGlobs, logger)
}

func monitorOptions(cfg config.Config, h host.Host, sink analytics.Sink, mp *bundle.MetafileProvider, logger *zap.Logger) monitor.Options {
	opts := monitor.Options{
		Host:                 h,
		SizeTable:            bundle.NewSizeTable(cfg.SizeTable),
		Sink:                 sink,
		Logger:               logger,
		Page:                 cfg.Page,
		Development:          cfg.Development,
		DiagnosticInterval:   cfg.DiagnosticInterval,
		MemorySampleInterval: cfg.MemorySampleInterval,
		PressureThreshold:    cfg.PressureThreshold,
		Budget:               cfg.Budget,
		OnViolation: func(vs []monitor.Violation) {
			for _, v := range vs {
				logger.Warn("budget violation", zap.String("metric", v.Metric),
					zap.Float64("value", v.Value), zap.Float64("limit", v.Limit))
			}
		},
	}
	// A nil *MetafileProvider must not become a non-nil interface.
	if mp != nil {
		opts.Provider = mp
	}
	return opts
}
