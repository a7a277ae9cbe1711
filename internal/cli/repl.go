// Package cli renders the process monitor in a plain terminal. It provides
// the streaming table presenter, the one-shot table, shell completion
// scripts and an interactive command prompt for process control.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/agbru/taskmaster/internal/control"
	"github.com/agbru/taskmaster/internal/format"
	"github.com/agbru/taskmaster/internal/sysmon"
	"github.com/agbru/taskmaster/internal/ui"
)

// Controller performs process actions on behalf of the prompt.
type Controller interface {
	Terminate(ctx context.Context, pid int32) bool
	SetPriority(ctx context.Context, pid int32, class control.PriorityClass) bool
}

// REPLConfig holds configuration for the prompt session.
type REPLConfig struct {
	// DisplayCount is the default row count of "top".
	DisplayCount int
}

// REPL is an interactive prompt over the live process view.
type REPL struct {
	config REPLConfig
	view   View
	ctl    Controller
	in     io.Reader
	out    io.Writer

	lines <-chan string
}

// NewREPL creates a prompt reading stdin and writing stdout.
func NewREPL(view View, ctl Controller, config REPLConfig) *REPL {
	if config.DisplayCount <= 0 {
		config.DisplayCount = 10
	}
	return &REPL{
		config: config,
		view:   view,
		ctl:    ctl,
		in:     os.Stdin,
		out:    os.Stdout,
	}
}

// SetInput sets a custom input reader (useful for testing).
func (r *REPL) SetInput(in io.Reader) {
	r.in = in
}

// SetOutput sets a custom output writer (useful for testing).
func (r *REPL) SetOutput(out io.Writer) {
	r.out = out
}

// Start runs the prompt until exit, EOF or ctx cancellation.
func (r *REPL) Start(ctx context.Context) {
	r.printBanner()
	r.printHelp()
	fmt.Fprintln(r.out)

	r.lines = readLines(ctx, r.in)
	for {
		fmt.Fprint(r.out, ui.ColorGreen()+"tm> "+ui.ColorReset())
		input, ok := r.next(ctx)
		if !ok {
			fmt.Fprintln(r.out, "\nGoodbye!")
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !r.processCommand(ctx, input) {
			return
		}
	}
}

// readLines feeds scanned lines to a channel closed on EOF. The reader
// goroutine cannot be interrupted, so it is abandoned on cancellation.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (r *REPL) next(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-r.lines:
		return line, ok
	}
}

func (r *REPL) printBanner() {
	fmt.Fprintf(r.out, "\n%s╔══════════════════════════════════════════════════════════╗%s\n", ui.ColorCyan(), ui.ColorReset())
	fmt.Fprintf(r.out, "%s║%s     %sTaskmaster - Interactive Process Control%s             %s║%s\n",
		ui.ColorCyan(), ui.ColorReset(), ui.ColorBold(), ui.ColorReset(), ui.ColorCyan(), ui.ColorReset())
	fmt.Fprintf(r.out, "%s╚══════════════════════════════════════════════════════════╝%s\n\n", ui.ColorCyan(), ui.ColorReset())
}

func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, "%sAvailable commands:%s\n", ui.ColorBold(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %stop [n]%s            - Show the n busiest processes\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %sshow <pid>%s         - Show details of a tracked process\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %sfind <name>%s        - Search tracked processes by name\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %ssystem%s             - Show host metrics\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %skill <pid>%s         - Terminate a process (asks for confirmation)\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %snice <pid> <class>%s - Change a process priority class\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %sclasses%s            - List priority classes\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %sstatus%s             - Display monitor status\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %shelp%s               - Display this help\n", ui.ColorYellow(), ui.ColorReset())
	fmt.Fprintf(r.out, "  %sexit%s / %squit%s        - Leave interactive mode\n", ui.ColorYellow(), ui.ColorReset(), ui.ColorYellow(), ui.ColorReset())
}

// processCommand executes one command line. It returns false when the
// prompt should exit.
func (r *REPL) processCommand(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "top", "t":
		r.cmdTop(args)
	case "show", "s":
		r.cmdShow(args)
	case "find", "f":
		r.cmdFind(args)
	case "system", "sys":
		r.cmdSystem()
	case "kill", "k":
		return r.cmdKill(ctx, args)
	case "nice", "n":
		r.cmdNice(ctx, args)
	case "classes":
		r.cmdClasses()
	case "status", "st":
		r.cmdStatus()
	case "help", "h", "?":
		r.printHelp()
	case "exit", "quit", "q":
		fmt.Fprintf(r.out, "%sGoodbye!%s\n", ui.ColorGreen(), ui.ColorReset())
		return false
	default:
		if _, err := strconv.ParseInt(cmd, 10, 32); err == nil {
			r.cmdShow([]string{cmd})
		} else {
			r.errorf("Unknown command: %s", cmd)
			fmt.Fprintf(r.out, "Type %shelp%s to see available commands.\n", ui.ColorYellow(), ui.ColorReset())
		}
	}
	return true
}

func (r *REPL) errorf(format string, args ...any) {
	fmt.Fprintf(r.out, "%s%s%s\n", ui.ColorRed(), fmt.Sprintf(format, args...), ui.ColorReset())
}

func parsePID(s string) (int32, error) {
	pid, err := strconv.ParseInt(s, 10, 32)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return int32(pid), nil
}

func (r *REPL) cmdTop(args []string) {
	n := r.config.DisplayCount
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			r.errorf("Invalid count: %s", args[0])
			return
		}
		n = v
	}
	DisplaySnapshot(r.out, TakeSnapshot(r.view, n))
}

func (r *REPL) cmdShow(args []string) {
	if len(args) == 0 {
		r.errorf("Usage: show <pid>")
		return
	}
	pid, err := parsePID(args[0])
	if err != nil {
		r.errorf("Invalid value: %s", args[0])
		return
	}
	e, ok := r.view.Get(pid)
	if !ok {
		r.errorf("Process %d is not tracked", pid)
		return
	}
	r.printEntity(e)
}

func (r *REPL) printEntity(e sysmon.Entity) {
	label := func(name, value string) {
		fmt.Fprintf(r.out, "  %-10s %s%s%s\n", name+":", ui.ColorCyan(), value, ui.ColorReset())
	}
	fmt.Fprintf(r.out, "\n%sProcess %d%s\n", ui.ColorBold(), e.PID, ui.ColorReset())
	label("Name", e.Name)
	label("User", e.Username)
	label("Status", e.Status)
	label("CPU", ui.Colorize(ui.ColorForPercent(e.CPUPercent), format.FormatPercent(e.CPUPercent)))
	label("Memory", format.FormatMB(e.MemoryMB))
	label("Threads", strconv.Itoa(int(e.NumThreads)))
	label("Uptime", format.FormatUptime(e.Uptime()))
	if e.Exe != "" {
		label("Exe", e.Exe)
	}
	if e.Cmdline != "" {
		label("Command", format.Truncate(e.Cmdline, 80))
	}
	fmt.Fprintln(r.out)
}

func (r *REPL) cmdFind(args []string) {
	if len(args) == 0 {
		r.errorf("Usage: find <name>")
		return
	}
	needle := strings.ToLower(strings.Join(args, " "))
	var matches []sysmon.Entity
	for _, e := range r.view.Processes() {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		fmt.Fprintf(r.out, "No tracked process matches %q\n", needle)
		return
	}
	fmt.Fprintln(r.out, FormatProcessHeader())
	for _, e := range matches {
		fmt.Fprintln(r.out, FormatProcessRow(e, true))
	}
}

func (r *REPL) cmdSystem() {
	fmt.Fprintln(r.out, FormatSystemLine(r.view.System(), true))
}

// cmdKill asks for confirmation before terminating. It returns false when
// input ends during the confirmation.
func (r *REPL) cmdKill(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		r.errorf("Usage: kill <pid>")
		return true
	}
	pid, err := parsePID(args[0])
	if err != nil {
		r.errorf("Invalid value: %s", args[0])
		return true
	}
	name := "unknown"
	if e, ok := r.view.Get(pid); ok {
		name = e.Name
	}
	fmt.Fprintf(r.out, "Terminate %s%d%s (%s)? [y/N] ", ui.ColorYellow(), pid, ui.ColorReset(), name)
	answer, ok := r.next(ctx)
	if !ok {
		fmt.Fprintln(r.out, "\nGoodbye!")
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
	default:
		fmt.Fprintln(r.out, "Cancelled.")
		return true
	}
	if r.ctl.Terminate(ctx, pid) {
		fmt.Fprintf(r.out, "%s✓ Process %d terminated%s\n", ui.ColorGreen(), pid, ui.ColorReset())
	} else {
		r.errorf("✗ Could not terminate process %d", pid)
	}
	return true
}

func (r *REPL) cmdNice(ctx context.Context, args []string) {
	if len(args) < 2 {
		r.errorf("Usage: nice <pid> <class>")
		return
	}
	pid, err := parsePID(args[0])
	if err != nil {
		r.errorf("Invalid value: %s", args[0])
		return
	}
	class, err := control.ParsePriorityClass(args[1])
	if err != nil {
		r.errorf("Unknown priority class: %s", args[1])
		r.cmdClasses()
		return
	}
	if r.ctl.SetPriority(ctx, pid, class) {
		fmt.Fprintf(r.out, "%s✓ Process %d set to %s%s\n", ui.ColorGreen(), pid, class, ui.ColorReset())
	} else {
		r.errorf("✗ Could not set process %d to %s", pid, class)
	}
}

func (r *REPL) cmdClasses() {
	names := make([]string, 0, 6)
	for _, c := range control.PriorityClasses() {
		names = append(names, c.String())
	}
	fmt.Fprintf(r.out, "Priority classes: %s\n", strings.Join(names, ", "))
}

func (r *REPL) cmdStatus() {
	fmt.Fprintf(r.out, "\n%sMonitor status:%s\n", ui.ColorBold(), ui.ColorReset())
	fmt.Fprintf(r.out, "  Tracked:       %s%d%s processes\n", ui.ColorCyan(), r.view.Len(), ui.ColorReset())
	fmt.Fprintf(r.out, "  Last refresh:  %s%s%s\n", ui.ColorCyan(), format.FormatClock(r.view.LastRefresh()), ui.ColorReset())
	fmt.Fprintf(r.out, "  Display count: %s%d%s\n", ui.ColorCyan(), r.config.DisplayCount, ui.ColorReset())
	fmt.Fprintln(r.out)
}
