package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/agbru/taskmaster/internal/metrics"
)

func TestRuntimeModel_BeforeFirstSample(t *testing.T) {
	m := NewRuntimeModel()
	if !strings.Contains(m.View(), "sampling") {
		t.Errorf("expected placeholder, got %q", m.View())
	}
}

func TestRuntimeModel_Update(t *testing.T) {
	m := NewRuntimeModel()
	m.SetWidth(120)

	m.Update(metrics.MemorySnapshot{HeapAlloc: 2 << 20, HeapSys: 8 << 20, NumGC: 5, Goroutines: 12, PauseTotal: 1500 * time.Microsecond})
	view := m.View()
	for _, want := range []string{"Heap:", "2.0 MiB / 8.0 MiB", "5 (+0, 1.5ms)", "Goroutines:", "12"} {
		if !strings.Contains(view, want) {
			t.Errorf("view should contain %q, got %q", want, view)
		}
	}

	m.Update(metrics.MemorySnapshot{HeapAlloc: 1 << 20, HeapSys: 8 << 20, NumGC: 9, Goroutines: 10})
	if !strings.Contains(m.View(), "9 (+4,") {
		t.Errorf("expected GC delta of 4, got %q", m.View())
	}
}

func TestSampleMemStatsCmd(t *testing.T) {
	msg := sampleMemStatsCmd(metrics.NewMemoryCollector())()
	snap, ok := msg.(MemStatsMsg)
	if !ok {
		t.Fatalf("expected MemStatsMsg, got %T", msg)
	}
	if snap.HeapSys == 0 || snap.Goroutines == 0 {
		t.Errorf("expected populated snapshot, got %+v", snap)
	}
}
