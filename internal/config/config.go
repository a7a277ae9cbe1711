// Package config parses and validates the taskmaster runtime configuration.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	apperrors "github.com/agbru/taskmaster/internal/errors"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "TASKMASTER_"

// Display modes accepted by --tui.
const (
	TUIAuto = "auto"
	TUIOn   = "on"
	TUIOff  = "off"
)

// Defaults.
const (
	DefaultInterval        = 5 * time.Second
	DefaultRetryDelay      = time.Second
	DefaultTopN            = 50
	DefaultDisplayCount    = 10
	DefaultDBPath          = "data/taskmaster.db"
	DefaultLogInterval     = 5 * time.Minute
	DefaultCleanupInterval = 24 * time.Hour
	DefaultRetentionDays   = 7
	DefaultDiskPath        = "/"
	DefaultLogLevel        = "info"
	DefaultTheme           = "dark"
)

// AppConfig holds every tunable of a taskmaster run.
type AppConfig struct {
	// Interval is the pause between two successful refresh cycles.
	Interval time.Duration
	// RetryDelay is the pause after a failed refresh.
	RetryDelay time.Duration
	// TopN bounds the retention set.
	TopN int
	// DisplayCount caps the rows shown by presenters.
	DisplayCount int

	DBPath          string
	NoDB            bool
	LogInterval     time.Duration
	CleanupInterval time.Duration
	RetentionDays   int

	DiskPath string
	Listen   string
	// AllowOrigins is a comma-separated list of browser origins granted CORS
	// reads and control requests on the HTTP server.
	AllowOrigins string

	// TUI is one of TUIAuto, TUIOn, TUIOff.
	TUI     string
	Once    bool
	REPL    bool
	NoColor bool
	// Theme names the color palette: dark, light or none.
	Theme string
	// Output saves the --once table to a file.
	Output string

	LogLevel string
	LogFile  string

	ConfigFile string
	Version    bool
	// Completion names a shell whose completion script is printed instead
	// of monitoring.
	Completion string
}

// Default returns the configuration used when nothing is overridden.
func Default() AppConfig {
	return AppConfig{
		Interval:        DefaultInterval,
		RetryDelay:      DefaultRetryDelay,
		TopN:            DefaultTopN,
		DisplayCount:    DefaultDisplayCount,
		DBPath:          DefaultDBPath,
		LogInterval:     DefaultLogInterval,
		CleanupInterval: DefaultCleanupInterval,
		RetentionDays:   DefaultRetentionDays,
		DiskPath:        DefaultDiskPath,
		TUI:             TUIAuto,
		Theme:           DefaultTheme,
		LogLevel:        DefaultLogLevel,
	}
}

// Origins splits AllowOrigins, dropping blanks.
func (c AppConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Retention returns the snapshot age threshold as a duration.
func (c AppConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Validate checks semantic constraints and returns a ConfigError describing
// the first violation.
func (c AppConfig) Validate() error {
	switch {
	case c.Interval <= 0:
		return apperrors.NewConfigError("interval must be positive, got %s", c.Interval)
	case c.RetryDelay <= 0:
		return apperrors.NewConfigError("retry delay must be positive, got %s", c.RetryDelay)
	case c.TopN <= 0:
		return apperrors.NewConfigError("top must be positive, got %d", c.TopN)
	case c.DisplayCount <= 0:
		return apperrors.NewConfigError("display count must be positive, got %d", c.DisplayCount)
	case c.DisplayCount > c.TopN:
		return apperrors.NewConfigError("display count %d exceeds top %d", c.DisplayCount, c.TopN)
	case !c.NoDB && c.DBPath == "":
		return apperrors.NewConfigError("db path is empty; use --no-db to disable storage")
	case !c.NoDB && c.LogInterval <= 0:
		return apperrors.NewConfigError("snapshot interval must be positive, got %s", c.LogInterval)
	case !c.NoDB && c.CleanupInterval <= 0:
		return apperrors.NewConfigError("cleanup interval must be positive, got %s", c.CleanupInterval)
	case c.RetentionDays <= 0:
		return apperrors.NewConfigError("retention days must be positive, got %d", c.RetentionDays)
	case c.DiskPath == "":
		return apperrors.NewConfigError("disk path is empty")
	}
	switch c.TUI {
	case TUIAuto, TUIOn, TUIOff:
	default:
		return apperrors.NewConfigError("invalid --tui value %q (want auto, on or off)", c.TUI)
	}
	switch c.Theme {
	case "dark", "light", "none":
	default:
		return apperrors.NewConfigError("invalid --theme value %q (want dark, light or none)", c.Theme)
	}
	if c.Once && c.REPL {
		return apperrors.NewConfigError("--once and --repl are mutually exclusive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "disabled":
	default:
		return apperrors.NewConfigError("invalid log level %q", c.LogLevel)
	}
	return nil
}

// ParseConfig builds an AppConfig from defaults, the optional YAML file,
// TASKMASTER_* environment variables and command-line flags, in increasing
// order of precedence.
func ParseConfig(programName string, args []string, errWriter io.Writer) (AppConfig, error) {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(errWriter)

	cfg := Default()
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Pause between refresh cycles.")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Pause after a failed refresh.")
	fs.IntVar(&cfg.TopN, "top", cfg.TopN, "Number of processes kept in the retention set.")
	fs.IntVar(&cfg.DisplayCount, "display", cfg.DisplayCount, "Number of processes shown.")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite snapshot database path.")
	fs.BoolVar(&cfg.NoDB, "no-db", cfg.NoDB, "Disable snapshot storage.")
	fs.DurationVar(&cfg.LogInterval, "snapshot-interval", cfg.LogInterval, "Interval between snapshot writes.")
	fs.DurationVar(&cfg.CleanupInterval, "cleanup-interval", cfg.CleanupInterval, "Interval between storage cleanups.")
	fs.IntVar(&cfg.RetentionDays, "retention-days", cfg.RetentionDays, "Days of snapshots kept in storage.")
	fs.StringVar(&cfg.DiskPath, "disk", cfg.DiskPath, "Mount point reported as disk usage.")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address (e.g. :8080); empty disables the server.")
	fs.StringVar(&cfg.AllowOrigins, "allow-origin", cfg.AllowOrigins, "Comma-separated browser origins allowed to use the HTTP API.")
	fs.StringVar(&cfg.TUI, "tui", cfg.TUI, "Interactive dashboard: auto, on or off.")
	fs.BoolVar(&cfg.Once, "once", cfg.Once, "Print a single table and exit.")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "With --once, also save the table to this file.")
	fs.BoolVar(&cfg.REPL, "repl", cfg.REPL, "Interactive command prompt instead of the dashboard.")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output.")
	fs.StringVar(&cfg.Theme, "theme", cfg.Theme, "Color theme: dark, light or none.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error, disabled.")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to this file instead of stderr.")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML configuration file.")
	fs.BoolVar(&cfg.Version, "version", cfg.Version, "Print version and exit.")
	fs.StringVar(&cfg.Completion, "completion", cfg.Completion, "Print a completion script: bash, zsh, fish or powershell.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, err
		}
		return cfg, apperrors.NewConfigError("%v", err)
	}
	if fs.NArg() > 0 {
		return cfg, apperrors.NewConfigError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	path := cfg.ConfigFile
	if path == "" {
		path = getEnvString("CONFIG", "")
	}
	displaySet := isFlagSet(fs, "display") || getEnvString("DISPLAY", "") != ""
	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return cfg, apperrors.NewConfigError("config file: %v", err)
		}
		fc.apply(&cfg, fs)
		displaySet = displaySet || fc.DisplayCount != nil
	}

	applyEnvOverrides(&cfg, fs)

	// The default display count follows a smaller --top; only an explicit
	// display count above top is an error.
	if !displaySet && cfg.TopN > 0 && cfg.DisplayCount > cfg.TopN {
		cfg.DisplayCount = cfg.TopN
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// String renders the effective configuration on one line for debug logs.
func (c AppConfig) String() string {
	return fmt.Sprintf("interval=%s retry=%s top=%d display=%d db=%q no-db=%t listen=%q tui=%s theme=%s",
		c.Interval, c.RetryDelay, c.TopN, c.DisplayCount, c.DBPath, c.NoDB, c.Listen, c.TUI, c.Theme)
}
