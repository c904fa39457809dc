// config.go - Configuration loading with priority cascade.
// Priority: defaults < global config < project config < env vars < flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brennhill/gasoline-perfkit/internal/bundle"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const (
	globalDirName   = ".perfkit"
	globalFileName  = "config.yaml"
	projectFileName = ".perfkit.yaml"
	envPrefix       = "PERFKIT_"
)

// LogConfig controls the zap logger and optional file rotation.
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Config holds all resolved configuration values.
type Config struct {
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	Format      string `yaml:"format" json:"format"`
	Development bool   `yaml:"development" json:"development"`
	Page        string `yaml:"page" json:"page"`

	DiagnosticInterval   time.Duration `yaml:"diagnostic_interval" json:"diagnostic_interval"`
	MemorySampleInterval time.Duration `yaml:"memory_sample_interval" json:"memory_sample_interval"`
	PressureThreshold    float64       `yaml:"pressure_threshold" json:"pressure_threshold"`

	Metafile    string   `yaml:"metafile" json:"metafile"`
	VendorGlobs []string `yaml:"vendor_globs" json:"vendor_globs"`
	AnalyticsDB string   `yaml:"analytics_db" json:"analytics_db"`

	Budget    monitor.Budget                    `yaml:"budget" json:"budget"`
	SizeTable map[string]bundle.LibraryEstimate `yaml:"size_table" json:"size_table,omitempty"`
	Log       LogConfig                         `yaml:"log" json:"log"`
}

// FlagOverrides holds values explicitly set via command-line flags.
// Nil pointer means the flag was not set (so lower-priority values are kept).
type FlagOverrides struct {
	Host               *string
	Port               *int
	Format             *string
	Development        *bool
	DiagnosticInterval *time.Duration
	Metafile           *string
	AnalyticsDB        *string
	LogLevel           *string
	LogFile            *string
}

// Defaults returns the base configuration.
func Defaults() Config {
	return Config{
		Host:                 "127.0.0.1",
		Port:                 7891,
		Format:               "human",
		DiagnosticInterval:   monitor.DefaultDiagnosticInterval,
		MemorySampleInterval: 5 * time.Second,
		PressureThreshold:    80,
		VendorGlobs:          append([]string(nil), bundle.DefaultVendorGlobs...),
		Budget:               monitor.DefaultBudget,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Addr is the listen address for serve mode.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load builds the final configuration by applying the priority cascade:
// defaults < global (~/.perfkit/config.yaml) < project (.perfkit.yaml) < env vars < flags.
func Load(projectDir string, flags *FlagOverrides) (Config, error) {
	cfg := Defaults()

	home, err := os.UserHomeDir()
	if err == nil {
		if err := loadYAMLFile(&cfg, filepath.Join(home, globalDirName, globalFileName)); err != nil {
			return cfg, fmt.Errorf("global config: %w", err)
		}
	}

	if err := loadYAMLFile(&cfg, filepath.Join(projectDir, projectFileName)); err != nil {
		return cfg, fmt.Errorf("project config: %w", err)
	}

	if err := loadEnvVars(&cfg, os.LookupEnv); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}

	if flags != nil {
		applyFlags(&cfg, flags)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadYAMLFile decodes path over cfg. Keys absent from the file keep the
// value they already had. A missing file is fine.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnvVars applies PERFKIT_* overrides. Malformed numeric values are
// errors rather than silently ignored.
func loadEnvVars(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("HOST"); ok {
		cfg.Host = v
	}
	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		cfg.Port = port
	}
	if v, ok := get("FORMAT"); ok {
		cfg.Format = v
	}
	if v, ok := get("DEV"); ok {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEV: %w", envPrefix, err)
		}
		cfg.Development = dev
	}
	if v, ok := get("DIAGNOSTIC_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sDIAGNOSTIC_INTERVAL: %w", envPrefix, err)
		}
		cfg.DiagnosticInterval = d
	}
	if v, ok := get("PRESSURE_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sPRESSURE_THRESHOLD: %w", envPrefix, err)
		}
		cfg.PressureThreshold = f
	}
	if v, ok := get("METAFILE"); ok {
		cfg.Metafile = v
	}
	if v, ok := get("ANALYTICS_DB"); ok {
		cfg.AnalyticsDB = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("LOG_FILE"); ok {
		cfg.Log.File = v
	}
	return nil
}

// applyFlags applies command-line flag overrides (highest priority).
func applyFlags(cfg *Config, flags *FlagOverrides) {
	if flags.Host != nil {
		cfg.Host = *flags.Host
	}
	if flags.Port != nil {
		cfg.Port = *flags.Port
	}
	if flags.Format != nil {
		cfg.Format = *flags.Format
	}
	if flags.Development != nil {
		cfg.Development = *flags.Development
	}
	if flags.DiagnosticInterval != nil {
		cfg.DiagnosticInterval = *flags.DiagnosticInterval
	}
	if flags.Metafile != nil {
		cfg.Metafile = *flags.Metafile
	}
	if flags.AnalyticsDB != nil {
		cfg.AnalyticsDB = *flags.AnalyticsDB
	}
	if flags.LogLevel != nil {
		cfg.Log.Level = *flags.LogLevel
	}
	if flags.LogFile != nil {
		cfg.Log.File = *flags.LogFile
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that configuration values are within acceptable ranges.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalid, c.Port)
	}
	if c.Format != "human" && c.Format != "json" {
		return fmt.Errorf("%w: format must be human or json, got %q", ErrInvalid, c.Format)
	}
	if c.DiagnosticInterval <= 0 {
		return fmt.Errorf("%w: diagnostic_interval must be positive, got %s", ErrInvalid, c.DiagnosticInterval)
	}
	if c.MemorySampleInterval <= 0 {
		return fmt.Errorf("%w: memory_sample_interval must be positive, got %s", ErrInvalid, c.MemorySampleInterval)
	}
	if c.PressureThreshold <= 0 || c.PressureThreshold > 100 {
		return fmt.Errorf("%w: pressure_threshold must be in (0, 100], got %v", ErrInvalid, c.PressureThreshold)
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: log.level must be debug, info, warn or error, got %q", ErrInvalid, c.Log.Level)
	}
	if c.Budget.MinScore < 0 || c.Budget.MinScore > 100 {
		return fmt.Errorf("%w: budget.min_score must be 0-100, got %d", ErrInvalid, c.Budget.MinScore)
	}
	return nil
}
