// This file contains environment variable utilities for configuration override.

package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Environment Variable Utilities
// ─────────────────────────────────────────────────────────────────────────────

// getEnvString returns the value of the environment variable with the given key
// (prefixed with EnvPrefix), or the default value if not set.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

// isFlagSet checks if a flag was explicitly set on the command line.
// This is used to determine whether to apply environment variable overrides.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// envOverride declares a single environment variable override.
// Each entry maps an env key (without the TASKMASTER_ prefix) to the CLI flag
// it corresponds to and a function that applies the env value.
type envOverride struct {
	envKey string
	flag   string
	apply  func(*AppConfig, string)
}

// envOverrides is the declarative table of all environment variable overrides.
var envOverrides = []envOverride{
	// Numeric overrides
	{"TOP", "top", func(c *AppConfig, v string) { setInt(&c.TopN, v) }},
	{"DISPLAY", "display", func(c *AppConfig, v string) { setInt(&c.DisplayCount, v) }},
	{"RETENTION_DAYS", "retention-days", func(c *AppConfig, v string) { setInt(&c.RetentionDays, v) }},

	// Duration overrides
	{"INTERVAL", "interval", func(c *AppConfig, v string) { setDuration(&c.Interval, v) }},
	{"RETRY_DELAY", "retry-delay", func(c *AppConfig, v string) { setDuration(&c.RetryDelay, v) }},
	{"SNAPSHOT_INTERVAL", "snapshot-interval", func(c *AppConfig, v string) { setDuration(&c.LogInterval, v) }},
	{"CLEANUP_INTERVAL", "cleanup-interval", func(c *AppConfig, v string) { setDuration(&c.CleanupInterval, v) }},

	// String overrides
	{"DB", "db", func(c *AppConfig, v string) { c.DBPath = v }},
	{"DISK", "disk", func(c *AppConfig, v string) { c.DiskPath = v }},
	{"LISTEN", "listen", func(c *AppConfig, v string) { c.Listen = v }},
	{"ALLOW_ORIGIN", "allow-origin", func(c *AppConfig, v string) { c.AllowOrigins = v }},
	{"TUI", "tui", func(c *AppConfig, v string) { c.TUI = strings.ToLower(v) }},
	{"THEME", "theme", func(c *AppConfig, v string) { c.Theme = strings.ToLower(v) }},
	{"LOG_LEVEL", "log-level", func(c *AppConfig, v string) { c.LogLevel = v }},
	{"LOG_FILE", "log-file", func(c *AppConfig, v string) { c.LogFile = v }},

	// Boolean overrides
	{"NO_DB", "no-db", func(c *AppConfig, v string) { c.NoDB = parseBoolEnv(v, c.NoDB) }},
	{"NO_COLOR", "no-color", func(c *AppConfig, v string) { c.NoColor = parseBoolEnv(v, c.NoColor) }},
}

func setInt(dst *int, v string) {
	if parsed, err := strconv.Atoi(v); err == nil {
		*dst = parsed
	}
}

func setDuration(dst *time.Duration, v string) {
	if parsed, err := time.ParseDuration(v); err == nil {
		*dst = parsed
	}
}

// parseBoolEnv parses a boolean environment variable value.
// Accepts "true", "1", "yes" as true; "false", "0", "no" as false (case-insensitive).
// Returns defaultVal if the value is not recognized.
func parseBoolEnv(val string, defaultVal bool) bool {
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

// applyEnvOverrides applies environment variable values to the configuration
// for any flags that were not explicitly set on the command line.
// This implements the priority: CLI flags > Environment variables > File > Defaults.
//
// Supported environment variables (all prefixed with TASKMASTER_):
//   - TOP, DISPLAY, RETENTION_DAYS, INTERVAL, RETRY_DELAY, SNAPSHOT_INTERVAL,
//     CLEANUP_INTERVAL, DB, DISK, LISTEN, TUI, THEME, LOG_LEVEL, LOG_FILE, NO_DB,
//     NO_COLOR, CONFIG
func applyEnvOverrides(config *AppConfig, fs *flag.FlagSet) {
	for _, o := range envOverrides {
		if isFlagSet(fs, o.flag) {
			continue
		}
		if val := os.Getenv(EnvPrefix + o.envKey); val != "" {
			o.apply(config, val)
		}
	}
}
