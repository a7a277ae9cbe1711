package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/agbru/taskmaster/internal/cli"
	"github.com/agbru/taskmaster/internal/config"
	apperrors "github.com/agbru/taskmaster/internal/errors"
	"github.com/agbru/taskmaster/internal/logging"
	"github.com/agbru/taskmaster/internal/ui"
)

// Presentation modes selected from the configuration.
const (
	ModeOnce = "once"
	ModeREPL = "repl"
	ModeTUI  = "tui"
	ModeCLI  = "cli"
)

// Application represents the taskmaster application instance.
type Application struct {
	Config    config.AppConfig
	ErrWriter io.Writer

	// isTerminal reports whether out is an interactive terminal. Replaced
	// in tests.
	isTerminal func(out io.Writer) bool
	// in feeds the REPL.
	in io.Reader
}

// AppOption configures an Application during construction.
type AppOption func(*Application)

// WithInput sets the REPL input, os.Stdin by default.
func WithInput(r io.Reader) AppOption {
	return func(a *Application) { a.in = r }
}

// WithTerminalCheck replaces the TTY detection used when --tui=auto.
func WithTerminalCheck(f func(io.Writer) bool) AppOption {
	return func(a *Application) { a.isTerminal = f }
}

// New creates a new Application instance by parsing command-line arguments.
func New(args []string, errWriter io.Writer, opts ...AppOption) (*Application, error) {
	app := &Application{
		ErrWriter:  errWriter,
		isTerminal: isTerminal,
		in:         os.Stdin,
	}
	for _, opt := range opts {
		opt(app)
	}

	programName := "taskmaster"
	var cmdArgs []string
	if len(args) > 0 {
		programName = args[0]
		cmdArgs = args[1:]
	}

	cfg, err := config.ParseConfig(programName, cmdArgs, errWriter)
	if err != nil {
		return nil, err
	}
	app.Config = cfg
	return app, nil
}

// Run executes the application based on the configured mode and returns the
// process exit code.
func (a *Application) Run(ctx context.Context, out io.Writer) int {
	if a.Config.Version {
		PrintVersion(out)
		return apperrors.ExitSuccess
	}
	if a.Config.Completion != "" {
		return a.runCompletion(out)
	}

	ui.InitTheme(a.Config.Theme, a.Config.NoColor)

	mode := a.mode(out)
	logger, closeLog, err := a.openLogger(mode)
	if err != nil {
		fmt.Fprintf(a.ErrWriter, "Error opening log file: %v\n", err)
		return apperrors.ExitErrorConfig
	}
	defer closeLog()

	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	code := a.runMonitor(ctx, out, mode, logger)
	if code == apperrors.ExitSuccess && ctx.Err() != nil && mode != ModeTUI {
		return apperrors.ExitErrorCanceled
	}
	return code
}

// mode picks the presentation for this run.
func (a *Application) mode(out io.Writer) string {
	switch {
	case a.Config.Once:
		return ModeOnce
	case a.Config.REPL:
		return ModeREPL
	case a.Config.TUI == config.TUIOn:
		return ModeTUI
	case a.Config.TUI == config.TUIAuto && a.isTerminal(out):
		return ModeTUI
	default:
		return ModeCLI
	}
}

// openLogger builds the application logger. The dashboard owns the screen,
// so without --log-file its logs are discarded.
func (a *Application) openLogger(mode string) (*logging.ZerologAdapter, func(), error) {
	var w io.Writer = a.ErrWriter
	closeFn := func() {}
	switch {
	case a.Config.LogFile != "":
		f, err := os.OpenFile(a.Config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closeFn, err
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case mode == ModeTUI || mode == ModeREPL:
		w = io.Discard
	}
	return logging.NewLeveledLogger(w, "taskmaster", a.Config.LogLevel), closeFn, nil
}

// runCompletion generates shell completion scripts.
func (a *Application) runCompletion(out io.Writer) int {
	if err := cli.GenerateCompletion(out, "taskmaster", a.Config.Completion); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error generating completion: %v\n", err)
		return apperrors.ExitErrorConfig
	}
	return apperrors.ExitSuccess
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// IsHelpError checks if the error is a help flag error (--help was used).
func IsHelpError(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}

// ExitCodeFor maps a construction error to an exit code.
func ExitCodeFor(err error) int {
	var cfgErr apperrors.ConfigError
	switch {
	case err == nil, IsHelpError(err):
		return apperrors.ExitSuccess
	case errors.As(err, &cfgErr):
		return apperrors.ExitErrorConfig
	default:
		return apperrors.ExitErrorGeneric
	}
}
