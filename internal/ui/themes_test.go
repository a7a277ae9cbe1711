package ui

import (
	"os"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

// Theme state is global; these tests are not parallel.

func TestSetTheme(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())

	tests := []struct {
		name string
		want string
	}{
		{"dark", "dark"},
		{"light", "light"},
		{"none", "none"},
		{"orange", "dark"},
		{"", "dark"},
	}
	for _, tt := range tests {
		SetTheme(tt.name)
		if got := GetCurrentTheme().Name; got != tt.want {
			t.Errorf("SetTheme(%q) active = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestInitTheme_NoColor(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())

	InitTheme(ThemeLight, true)
	if GetCurrentTheme().Name != "none" {
		t.Fatal("--no-color should select the none theme")
	}
	if _, ok := GetCurrentTUITheme().Text.(lipgloss.NoColor); !ok {
		t.Error("TUI theme should have no colors")
	}
	if got := Colorize(ColorRed(), "x"); got != "x" {
		t.Errorf("Colorize without colors = %q, want x", got)
	}
}

func TestInitTheme_NoColorEnv(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())
	t.Setenv("NO_COLOR", "1")

	InitTheme(ThemeDark, false)
	if GetCurrentTheme().Name != "none" {
		t.Error("NO_COLOR should disable colors")
	}
}

func TestInitTheme_Light(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())
	if _, set := os.LookupEnv("NO_COLOR"); set {
		t.Skip("NO_COLOR is set in the environment")
	}

	InitTheme(ThemeLight, false)
	if GetCurrentTheme().Name != ThemeLight {
		t.Fatalf("active = %q, want light", GetCurrentTheme().Name)
	}
	if GetCurrentTUITheme().Text != LightTUITheme.Text {
		t.Error("light theme should switch the dashboard palette too")
	}
}

func TestSetCurrentTheme_RestoresPalette(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())

	SetTheme(ThemeNone)
	saved := GetCurrentTheme()
	SetTheme(ThemeLight)
	SetCurrentTheme(saved)
	if _, ok := GetCurrentTUITheme().Text.(lipgloss.NoColor); !ok {
		t.Error("restoring the none theme should restore its dashboard palette")
	}
}

func TestThemeNames(t *testing.T) {
	got := ThemeNames()
	want := []string{ThemeDark, ThemeLight, ThemeNone}
	if len(got) != len(want) {
		t.Fatalf("ThemeNames() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] || !IsTheme(got[i]) {
			t.Errorf("ThemeNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if IsTheme("solarized") {
		t.Error("unknown theme reported as known")
	}
}

func TestColorForPercent(t *testing.T) {
	defer SetCurrentTheme(GetCurrentTheme())
	SetCurrentTheme(DarkTheme)

	tests := []struct {
		p    float64
		want string
	}{
		{0, DarkTheme.Success},
		{49.9, DarkTheme.Success},
		{50, DarkTheme.Warning},
		{79.9, DarkTheme.Warning},
		{80, DarkTheme.Error},
		{100, DarkTheme.Error},
	}
	for _, tt := range tests {
		if got := ColorForPercent(tt.p); got != tt.want {
			t.Errorf("ColorForPercent(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
	if got := Colorize(ColorRed(), "hot"); got != DarkTheme.Error+"hot"+DarkTheme.Reset {
		t.Errorf("Colorize = %q", got)
	}
}

func TestTUIThemeGaugeColor(t *testing.T) {
	th := DarkTUITheme
	if th.GaugeColor(10) != th.GaugeLow {
		t.Error("10% should use GaugeLow")
	}
	if th.GaugeColor(60) != th.GaugeMid {
		t.Error("60% should use GaugeMid")
	}
	if th.GaugeColor(95) != th.GaugeHigh {
		t.Error("95% should use GaugeHigh")
	}
}
