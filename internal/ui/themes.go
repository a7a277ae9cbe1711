package ui

import (
	"os"
	"sort"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the ANSI escape codes used by the plain-terminal output.
type Theme struct {
	Name string

	Primary   string
	Secondary string
	Success   string
	Warning   string
	Error     string
	Info      string

	Bold      string
	Underline string
	Reset     string
}

// TUITheme holds the lipgloss colors used by the dashboard.
type TUITheme struct {
	Bg      lipgloss.TerminalColor
	Text    lipgloss.TerminalColor
	Border  lipgloss.TerminalColor
	Accent  lipgloss.TerminalColor
	Success lipgloss.TerminalColor
	Warning lipgloss.TerminalColor
	Error   lipgloss.TerminalColor
	Dim     lipgloss.TerminalColor
	Info    lipgloss.TerminalColor

	// Gauge colors for utilization below MidThreshold, below HighThreshold
	// and above.
	GaugeLow  lipgloss.TerminalColor
	GaugeMid  lipgloss.TerminalColor
	GaugeHigh lipgloss.TerminalColor
}

// Theme names.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
	ThemeNone  = "none"
)

const (
	ansiBold      = "\033[1m"
	ansiUnderline = "\033[4m"
	ansiReset     = "\033[0m"
)

var (
	// DarkTheme suits dark terminal backgrounds.
	DarkTheme = Theme{
		Name:      ThemeDark,
		Primary:   "\033[38;5;39m",
		Secondary: "\033[38;5;245m",
		Success:   "\033[38;5;82m",
		Warning:   "\033[38;5;220m",
		Error:     "\033[38;5;196m",
		Info:      "\033[38;5;141m",
		Bold:      ansiBold,
		Underline: ansiUnderline,
		Reset:     ansiReset,
	}

	// LightTheme uses darker tones readable on light backgrounds.
	LightTheme = Theme{
		Name:      ThemeLight,
		Primary:   "\033[38;5;27m",
		Secondary: "\033[38;5;240m",
		Success:   "\033[38;5;28m",
		Warning:   "\033[38;5;130m",
		Error:     "\033[38;5;124m",
		Info:      "\033[38;5;54m",
		Bold:      ansiBold,
		Underline: ansiUnderline,
		Reset:     ansiReset,
	}

	// NoColorTheme emits no escape codes at all.
	NoColorTheme = Theme{Name: ThemeNone}

	// DarkTUITheme is the default dashboard palette.
	DarkTUITheme = TUITheme{
		Bg:        lipgloss.Color("#000000"),
		Text:      lipgloss.Color("#E0E0E0"),
		Border:    lipgloss.Color("#3B82F6"),
		Accent:    lipgloss.Color("#60A5FA"),
		Success:   lipgloss.Color("#9ece6a"),
		Warning:   lipgloss.Color("#FFB347"),
		Error:     lipgloss.Color("#FF4444"),
		Dim:       lipgloss.Color("#666666"),
		Info:      lipgloss.Color("#A78BFA"),
		GaugeLow:  lipgloss.Color("#9ece6a"),
		GaugeMid:  lipgloss.Color("#FFB347"),
		GaugeHigh: lipgloss.Color("#FF4444"),
	}

	// LightTUITheme keeps contrast on light terminals.
	LightTUITheme = TUITheme{
		Bg:        lipgloss.Color("#FFFFFF"),
		Text:      lipgloss.Color("#1F2937"),
		Border:    lipgloss.Color("#1D4ED8"),
		Accent:    lipgloss.Color("#1E40AF"),
		Success:   lipgloss.Color("#15803D"),
		Warning:   lipgloss.Color("#B45309"),
		Error:     lipgloss.Color("#B91C1C"),
		Dim:       lipgloss.Color("#6B7280"),
		Info:      lipgloss.Color("#6D28D9"),
		GaugeLow:  lipgloss.Color("#15803D"),
		GaugeMid:  lipgloss.Color("#B45309"),
		GaugeHigh: lipgloss.Color("#B91C1C"),
	}

	// NoColorTUITheme renders with the terminal's default colors.
	NoColorTUITheme = TUITheme{
		Bg: lipgloss.NoColor{}, Text: lipgloss.NoColor{}, Border: lipgloss.NoColor{},
		Accent: lipgloss.NoColor{}, Success: lipgloss.NoColor{}, Warning: lipgloss.NoColor{},
		Error: lipgloss.NoColor{}, Dim: lipgloss.NoColor{}, Info: lipgloss.NoColor{},
		GaugeLow: lipgloss.NoColor{}, GaugeMid: lipgloss.NoColor{}, GaugeHigh: lipgloss.NoColor{},
	}
)

// palette pairs the terminal and dashboard colors of one theme.
type palette struct {
	term Theme
	tui  TUITheme
}

var palettes = map[string]palette{
	ThemeDark:  {DarkTheme, DarkTUITheme},
	ThemeLight: {LightTheme, LightTUITheme},
	ThemeNone:  {NoColorTheme, NoColorTUITheme},
}

var (
	themeMu sync.RWMutex
	current = palettes[ThemeDark]
)

// ThemeNames lists the selectable theme names.
func ThemeNames() []string {
	names := make([]string, 0, len(palettes))
	for n := range palettes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsTheme reports whether name is a known theme.
func IsTheme(name string) bool {
	_, ok := palettes[name]
	return ok
}

// GetCurrentTheme returns the active terminal theme.
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return current.term
}

// GetCurrentTUITheme returns the dashboard colors of the active theme.
func GetCurrentTUITheme() TUITheme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return current.tui
}

// SetCurrentTheme activates t along with its dashboard palette. Tests use
// it to restore a saved theme.
func SetCurrentTheme(t Theme) {
	p, ok := palettes[t.Name]
	if !ok {
		p = palette{t, DarkTUITheme}
	}
	p.term = t
	themeMu.Lock()
	current = p
	themeMu.Unlock()
}

// SetTheme activates a theme by name; unknown names select dark.
func SetTheme(name string) {
	p, ok := palettes[name]
	if !ok {
		p = palettes[ThemeDark]
	}
	themeMu.Lock()
	current = p
	themeMu.Unlock()
}

// InitTheme selects name, unless noColor is set or the NO_COLOR
// environment variable exists (https://no-color.org/).
func InitTheme(name string, noColor bool) {
	if _, set := os.LookupEnv("NO_COLOR"); set || noColor {
		name = ThemeNone
	}
	SetTheme(name)
}

// GaugeColor picks the gauge color for a utilization percentage.
func (t TUITheme) GaugeColor(percent float64) lipgloss.TerminalColor {
	switch {
	case percent >= HighThreshold:
		return t.GaugeHigh
	case percent >= MidThreshold:
		return t.GaugeMid
	default:
		return t.GaugeLow
	}
}
