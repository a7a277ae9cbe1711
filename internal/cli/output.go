// # Naming Conventions
//
//   - Display* functions write formatted output to an [io.Writer].
//   - Format* functions return a formatted string without performing I/O.
//   - Write* functions write to files on the filesystem.

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agbru/taskmaster/internal/format"
	"github.com/agbru/taskmaster/internal/sysmon"
	"github.com/agbru/taskmaster/internal/ui"
)

// Column widths of the process table.
const (
	pidWidth    = 7
	nameWidth   = 24
	cpuWidth    = 7
	memWidth    = 10
	threadWidth = 4
	userWidth   = 12
)

// Snapshot is everything one table rendering needs.
type Snapshot struct {
	Processes []sysmon.Entity
	System    sysmon.SystemSnapshot
	Tracked   int
	At        time.Time
}

// OutputConfig controls the --once output.
type OutputConfig struct {
	// OutputFile also saves the table, uncolored, to this path when set.
	OutputFile string
}

// FormatProcessHeader returns the table header line.
func FormatProcessHeader() string {
	return fmt.Sprintf("%*s  %-*s  %*s  %*s  %*s  %-*s  %s",
		pidWidth, "PID", nameWidth, "NAME", cpuWidth, "CPU%", memWidth, "MEM",
		threadWidth, "THR", userWidth, "USER", "STATUS")
}

// FormatProcessRow renders one entity. When color is true the CPU column is
// colored by load; padding is computed on the plain text so columns stay
// aligned.
func FormatProcessRow(e sysmon.Entity, color bool) string {
	cpu := fmt.Sprintf("%*s", cpuWidth, format.FormatPercent(e.CPUPercent))
	if color {
		cpu = ui.Colorize(ui.ColorForPercent(e.CPUPercent), cpu)
	}
	return fmt.Sprintf("%*d  %-*s  %s  %*s  %*d  %-*s  %s",
		pidWidth, e.PID,
		nameWidth, format.PadRight(format.Truncate(e.Name, nameWidth), nameWidth),
		cpu,
		memWidth, format.FormatMB(e.MemoryMB),
		threadWidth, e.NumThreads,
		userWidth, format.PadRight(format.Truncate(e.Username, userWidth), userWidth),
		e.Status)
}

// FormatSystemLine summarizes a host snapshot on one line.
func FormatSystemLine(s sysmon.SystemSnapshot, color bool) string {
	pct := func(p float64) string {
		txt := format.FormatPercent(p)
		if color {
			return ui.Colorize(ui.ColorForPercent(p), txt)
		}
		return txt
	}
	return fmt.Sprintf("CPU %s (%d cores)  MEM %s (%.1f/%.1f GB free)  DISK %s %s  LOAD %.2f %.2f %.2f  PROCS %d  UP %s",
		pct(s.CPUPercent), s.CPUCount,
		pct(s.MemoryPercent), s.MemoryAvailableGB, s.MemoryTotalGB,
		s.DiskPath, pct(s.DiskPercent),
		s.Load1, s.Load5, s.Load15,
		s.ProcessCount,
		format.FormatUptime(s.Uptime))
}

// FormatSnapshot renders the full table block.
func FormatSnapshot(snap Snapshot, color bool) string {
	var b strings.Builder
	title := fmt.Sprintf("Top %d of %d tracked processes at %s", len(snap.Processes), snap.Tracked, format.FormatClock(snap.At))
	if color {
		title = ui.ColorBold() + title + ui.ColorReset()
	}
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(FormatSystemLine(snap.System, color))
	b.WriteString("\n\n")
	header := FormatProcessHeader()
	if color {
		header = ui.ColorUnderline() + header + ui.ColorReset()
	}
	b.WriteString(header)
	b.WriteByte('\n')
	if len(snap.Processes) == 0 {
		b.WriteString("  (no processes sampled yet)\n")
	}
	for _, e := range snap.Processes {
		b.WriteString(FormatProcessRow(e, color))
		b.WriteByte('\n')
	}
	return b.String()
}

// DisplaySnapshot writes the colored table block to out.
func DisplaySnapshot(out io.Writer, snap Snapshot) {
	fmt.Fprint(out, FormatSnapshot(snap, ui.GetCurrentTheme().Name != "none"))
}

// WriteSnapshotToFile saves an uncolored rendering with a short header.
// An empty path is a no-op.
func WriteSnapshotToFile(path string, snap Snapshot) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "# taskmaster snapshot\n")
	fmt.Fprintf(file, "# Generated: %s\n\n", snap.At.Format(time.RFC3339))
	if _, err := fmt.Fprint(file, FormatSnapshot(snap, false)); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// DisplaySnapshotWithConfig prints snap and, if configured, saves it.
func DisplaySnapshotWithConfig(out io.Writer, snap Snapshot, cfg OutputConfig) error {
	DisplaySnapshot(out, snap)
	if cfg.OutputFile == "" {
		return nil
	}
	if err := WriteSnapshotToFile(cfg.OutputFile, snap); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s✓ Snapshot saved to: %s%s%s\n", ui.ColorGreen(), ui.ColorCyan(), cfg.OutputFile, ui.ColorReset())
	return nil
}
