package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/agbru/taskmaster/internal/control"
)

type fakeController struct {
	allow      bool
	terminated []int32
	priorities map[int32]control.PriorityClass
}

func (c *fakeController) Terminate(_ context.Context, pid int32) bool {
	c.terminated = append(c.terminated, pid)
	return c.allow
}

func (c *fakeController) SetPriority(_ context.Context, pid int32, class control.PriorityClass) bool {
	if c.priorities == nil {
		c.priorities = map[int32]control.PriorityClass{}
	}
	c.priorities[pid] = class
	return c.allow
}

func runREPL(t *testing.T, ctl *fakeController, input string) string {
	t.Helper()
	withNoColor(t)
	r := NewREPL(sampleView(), ctl, REPLConfig{DisplayCount: 2})
	var out bytes.Buffer
	r.SetInput(strings.NewReader(input))
	r.SetOutput(&out)
	r.Start(context.Background())
	return out.String()
}

func TestREPL_Commands(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{"top default", "top\nexit\n", []string{"Top 2 of 3 tracked processes"}, nil},
		{"top n", "top 3\nexit\n", []string{"Top 3 of 3", "bash"}, nil},
		{"top invalid", "top zero\nexit\n", []string{"Invalid count: zero"}, nil},
		{"show", "show 101\nexit\n", []string{"Process 101", "postgres", "85.5%", "512.0 MB"}, nil},
		{"bare pid", "303\nexit\n", []string{"Process 303", "alice"}, nil},
		{"show untracked", "show 9999\nexit\n", []string{"Process 9999 is not tracked"}, nil},
		{"show invalid", "show abc\nexit\n", []string{"Invalid value: abc"}, nil},
		{"find", "find POST\nexit\n", []string{"PID", "postgres"}, []string{"alice"}},
		{"find nothing", "find nginx\nexit\n", []string{`No tracked process matches "nginx"`}, nil},
		{"system", "system\nexit\n", []string{"CPU 42.0% (8 cores)", "PROCS 231"}, nil},
		{"classes", "classes\nquit\n", []string{"realtime, high, above-normal, normal, below-normal, low"}, nil},
		{"status", "status\nexit\n", []string{"Tracked:       3", "Last refresh:  12:30:45", "Display count: 2"}, nil},
		{"unknown", "frobnicate\nexit\n", []string{"Unknown command: frobnicate"}, nil},
		{"help", "help\nq\n", []string{"kill <pid>", "nice <pid> <class>"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := runREPL(t, &fakeController{allow: true}, tt.input)
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output should contain %q, got:\n%s", want, out)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(out[strings.Index(out, "tm> "):], bad) {
					t.Errorf("output should not contain %q", bad)
				}
			}
			if !strings.Contains(out, "Goodbye!") {
				t.Error("session should end with a goodbye")
			}
		})
	}
}

func TestREPL_KillConfirmed(t *testing.T) {
	ctl := &fakeController{allow: true}
	out := runREPL(t, ctl, "kill 101\ny\nexit\n")
	if !strings.Contains(out, "Terminate 101 (postgres)? [y/N]") {
		t.Errorf("missing confirmation prompt:\n%s", out)
	}
	if len(ctl.terminated) != 1 || ctl.terminated[0] != 101 {
		t.Fatalf("terminated = %v, want [101]", ctl.terminated)
	}
	if !strings.Contains(out, "Process 101 terminated") {
		t.Errorf("missing success message:\n%s", out)
	}
}

func TestREPL_KillDeclined(t *testing.T) {
	ctl := &fakeController{allow: true}
	out := runREPL(t, ctl, "kill 101\n\nexit\n")
	if len(ctl.terminated) != 0 {
		t.Fatalf("process should not be terminated, got %v", ctl.terminated)
	}
	if !strings.Contains(out, "Cancelled.") {
		t.Errorf("missing cancel message:\n%s", out)
	}
}

func TestREPL_KillDenied(t *testing.T) {
	ctl := &fakeController{allow: false}
	out := runREPL(t, ctl, "kill 5555\nyes\nexit\n")
	if !strings.Contains(out, "Terminate 5555 (unknown)?") {
		t.Errorf("untracked pid should be labelled unknown:\n%s", out)
	}
	if !strings.Contains(out, "Could not terminate process 5555") {
		t.Errorf("missing denial message:\n%s", out)
	}
}

func TestREPL_KillEOFDuringConfirm(t *testing.T) {
	ctl := &fakeController{allow: true}
	out := runREPL(t, ctl, "kill 101\n")
	if len(ctl.terminated) != 0 {
		t.Fatal("EOF must not confirm a kill")
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Error("EOF should end the session")
	}
}

func TestREPL_Nice(t *testing.T) {
	ctl := &fakeController{allow: true}
	out := runREPL(t, ctl, "nice 202 BelowNormal\nnice 202 turbo\nnice 202\nexit\n")
	if ctl.priorities[202] != control.BelowNormal {
		t.Errorf("priority = %v, want below-normal", ctl.priorities[202])
	}
	for _, want := range []string{
		"Process 202 set to below-normal",
		"Unknown priority class: turbo",
		"Usage: nice <pid> <class>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got:\n%s", want, out)
		}
	}

	ctl.allow = false
	out = runREPL(t, ctl, "nice 202 high\nexit\n")
	if !strings.Contains(out, "Could not set process 202 to high") {
		t.Errorf("missing denial message:\n%s", out)
	}
}

func TestREPL_ContextCancel(t *testing.T) {
	withNoColor(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewREPL(sampleView(), &fakeController{}, REPLConfig{})
	r.SetInput(pr)
	r.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestNewREPL_DefaultDisplayCount(t *testing.T) {
	t.Parallel()
	r := NewREPL(sampleView(), &fakeController{}, REPLConfig{})
	if r.config.DisplayCount != 10 {
		t.Errorf("DisplayCount = %d, want 10", r.config.DisplayCount)
	}
}
