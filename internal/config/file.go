package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// FileConfig is the YAML representation of AppConfig. Pointer fields
// distinguish "absent" from zero values.
type FileConfig struct {
	Interval        *Duration `yaml:"interval"`
	RetryDelay      *Duration `yaml:"retry_delay"`
	TopN            *int      `yaml:"top"`
	DisplayCount    *int      `yaml:"display"`
	DBPath          *string   `yaml:"db"`
	NoDB            *bool     `yaml:"no_db"`
	LogInterval     *Duration `yaml:"snapshot_interval"`
	CleanupInterval *Duration `yaml:"cleanup_interval"`
	RetentionDays   *int      `yaml:"retention_days"`
	DiskPath        *string   `yaml:"disk"`
	Listen          *string   `yaml:"listen"`
	AllowOrigins    *string   `yaml:"allow_origin"`
	TUI             *string   `yaml:"tui"`
	NoColor         *bool     `yaml:"no_color"`
	Theme           *string   `yaml:"theme"`
	LogLevel        *string   `yaml:"log_level"`
	LogFile         *string   `yaml:"log_file"`
}

// Duration decodes "5s"-style strings from YAML.
type Duration time.Duration

// UnmarshalYAML implements the bytes unmarshaler of goccy/go-yaml.
func (d *Duration) UnmarshalYAML(b []byte) error {
	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadFile reads a YAML configuration file. Unknown keys are rejected.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b), yaml.Strict())
	if err := dec.Decode(&fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// apply copies present file values onto cfg, skipping any flag set on the
// command line.
func (fc FileConfig) apply(cfg *AppConfig, fs *flag.FlagSet) {
	setDur := func(flagName string, src *Duration, dst *time.Duration) {
		if src != nil && !isFlagSet(fs, flagName) {
			*dst = time.Duration(*src)
		}
	}
	setInt := func(flagName string, src *int, dst *int) {
		if src != nil && !isFlagSet(fs, flagName) {
			*dst = *src
		}
	}
	setStr := func(flagName string, src *string, dst *string) {
		if src != nil && !isFlagSet(fs, flagName) {
			*dst = *src
		}
	}
	setBool := func(flagName string, src *bool, dst *bool) {
		if src != nil && !isFlagSet(fs, flagName) {
			*dst = *src
		}
	}

	setDur("interval", fc.Interval, &cfg.Interval)
	setDur("retry-delay", fc.RetryDelay, &cfg.RetryDelay)
	setInt("top", fc.TopN, &cfg.TopN)
	setInt("display", fc.DisplayCount, &cfg.DisplayCount)
	setStr("db", fc.DBPath, &cfg.DBPath)
	setBool("no-db", fc.NoDB, &cfg.NoDB)
	setDur("snapshot-interval", fc.LogInterval, &cfg.LogInterval)
	setDur("cleanup-interval", fc.CleanupInterval, &cfg.CleanupInterval)
	setInt("retention-days", fc.RetentionDays, &cfg.RetentionDays)
	setStr("disk", fc.DiskPath, &cfg.DiskPath)
	setStr("listen", fc.Listen, &cfg.Listen)
	setStr("allow-origin", fc.AllowOrigins, &cfg.AllowOrigins)
	setStr("tui", fc.TUI, &cfg.TUI)
	setBool("no-color", fc.NoColor, &cfg.NoColor)
	setStr("theme", fc.Theme, &cfg.Theme)
	setStr("log-level", fc.LogLevel, &cfg.LogLevel)
	setStr("log-file", fc.LogFile, &cfg.LogFile)
}
