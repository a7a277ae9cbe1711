package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agbru/taskmaster/internal/sysmon"
)

type fakeView struct {
	procs []sysmon.Entity
	sys   sysmon.SystemSnapshot
	at    time.Time
}

func (v *fakeView) Top(n int) []sysmon.Entity {
	if n > len(v.procs) {
		n = len(v.procs)
	}
	return v.procs[:n]
}

func (v *fakeView) Get(pid int32) (sysmon.Entity, bool) {
	for _, e := range v.procs {
		if e.PID == pid {
			return e, true
		}
	}
	return sysmon.Entity{}, false
}

func (v *fakeView) Processes() []sysmon.Entity    { return v.procs }
func (v *fakeView) Len() int                      { return len(v.procs) }
func (v *fakeView) System() sysmon.SystemSnapshot { return v.sys }
func (v *fakeView) LastRefresh() time.Time        { return v.at }

func sampleView() *fakeView {
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	return &fakeView{
		procs: []sysmon.Entity{
			{PID: 101, Name: "postgres", Username: "postgres", Status: "running", CPUPercent: 85.5, MemoryMB: 512, NumThreads: 12, SampledAt: at},
			{PID: 202, Name: "a-very-long-process-name-that-overflows", Username: "root", Status: "sleeping", CPUPercent: 12.25, MemoryMB: 2048, NumThreads: 3, SampledAt: at},
			{PID: 303, Name: "bash", Username: "alice", Status: "sleeping", CPUPercent: 0.1, MemoryMB: 4, NumThreads: 1, SampledAt: at},
		},
		sys: sysmon.SystemSnapshot{
			CPUPercent: 42, CPUCount: 8, MemoryPercent: 61.5, MemoryTotalGB: 16, MemoryAvailableGB: 6.2,
			DiskPercent: 70, DiskPath: "/", ProcessCount: 231, Load1: 1.5, Load5: 1.25, Load15: 1,
			Uptime: 26 * time.Hour,
		},
		at: at,
	}
}

func TestFormatProcessRow(t *testing.T) {
	t.Parallel()
	v := sampleView()

	header := FormatProcessHeader()
	for _, col := range []string{"PID", "NAME", "CPU%", "MEM", "THR", "USER", "STATUS"} {
		if !strings.Contains(header, col) {
			t.Errorf("header %q missing column %s", header, col)
		}
	}

	row := FormatProcessRow(v.procs[0], false)
	for _, want := range []string{"101", "postgres", "85.5%", "512.0 MB", "12", "running"} {
		if !strings.Contains(row, want) {
			t.Errorf("row %q should contain %q", row, want)
		}
	}
	if strings.Contains(row, "\033[") {
		t.Errorf("uncolored row contains escape codes: %q", row)
	}

	long := FormatProcessRow(v.procs[1], false)
	if strings.Contains(long, "overflows") {
		t.Errorf("long name should be truncated: %q", long)
	}
	if len([]rune(long)) != len([]rune(FormatProcessRow(v.procs[2], false))) {
		t.Errorf("rows should share column widths:\n%q\n%q", long, FormatProcessRow(v.procs[2], false))
	}
}

func TestFormatSnapshot(t *testing.T) {
	t.Parallel()
	v := sampleView()
	out := FormatSnapshot(TakeSnapshot(v, 2), false)

	for _, want := range []string{
		"Top 2 of 3 tracked processes at 12:30:45",
		"CPU 42.0% (8 cores)",
		"PROCS 231",
		"UP 1d 02:00:00",
		"postgres",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("snapshot should contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "bash") {
		t.Errorf("snapshot should be limited to two rows:\n%s", out)
	}
}

func TestFormatSnapshot_Empty(t *testing.T) {
	t.Parallel()
	out := FormatSnapshot(Snapshot{}, false)
	if !strings.Contains(out, "no processes sampled yet") {
		t.Errorf("empty snapshot should say so, got:\n%s", out)
	}
	if !strings.Contains(out, "--:--:--") {
		t.Errorf("zero time should render as placeholder, got:\n%s", out)
	}
}

func TestWriteSnapshotToFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	snap := TakeSnapshot(sampleView(), 3)

	testCases := []struct {
		name       string
		outputFile string
		checkFunc  func(t *testing.T, filePath string)
	}{
		{
			name:       "Write table to file",
			outputFile: filepath.Join(tmpDir, "top.txt"),
			checkFunc: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				if err != nil {
					t.Fatalf("Failed to read output file: %v", err)
				}
				s := string(content)
				if !strings.HasPrefix(s, "# taskmaster snapshot") {
					t.Error("File should start with the snapshot header")
				}
				if !strings.Contains(s, "2026-03-01T12:30:45Z") {
					t.Error("File should contain the generation time")
				}
				if strings.Contains(s, "\033[") {
					t.Error("File should not contain color codes")
				}
			},
		},
		{
			name:       "Empty output file (no write)",
			outputFile: "",
		},
		{
			name:       "Create nested directory",
			outputFile: filepath.Join(tmpDir, "nested", "dir", "top.txt"),
			checkFunc: func(t *testing.T, filePath string) {
				if _, err := os.Stat(filePath); err != nil {
					t.Errorf("File should exist in nested directory: %v", err)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := WriteSnapshotToFile(tc.outputFile, snap); err != nil {
				t.Fatalf("WriteSnapshotToFile() error = %v", err)
			}
			if tc.checkFunc != nil {
				tc.checkFunc(t, tc.outputFile)
			}
		})
	}
}

func TestWriteSnapshotToFile_BadDirectory(t *testing.T) {
	t.Parallel()
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteSnapshotToFile(filepath.Join(blocker, "sub", "top.txt"), Snapshot{}); err == nil {
		t.Error("expected an error when the parent path is a file")
	}
}

func TestDisplaySnapshotWithConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.txt")
	var buf bytes.Buffer

	if err := DisplaySnapshotWithConfig(&buf, TakeSnapshot(sampleView(), 3), OutputConfig{OutputFile: path}); err != nil {
		t.Fatalf("DisplaySnapshotWithConfig() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Snapshot saved to") {
		t.Errorf("expected save confirmation, got:\n%s", buf.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output file missing: %v", err)
	}

	buf.Reset()
	if err := DisplaySnapshotWithConfig(&buf, Snapshot{}, OutputConfig{}); err != nil {
		t.Fatalf("DisplaySnapshotWithConfig() without file error = %v", err)
	}
	if strings.Contains(buf.String(), "Snapshot saved to") {
		t.Error("no confirmation expected without an output file")
	}
}
