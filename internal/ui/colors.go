package ui

// Utilization thresholds for color coding.
const (
	MidThreshold  = 50.0
	HighThreshold = 80.0
)

// ColorReset returns the reset escape for the active theme.
func ColorReset() string { return GetCurrentTheme().Reset }

// ColorBold returns the bold escape for the active theme.
func ColorBold() string { return GetCurrentTheme().Bold }

// ColorUnderline returns the underline escape for the active theme.
func ColorUnderline() string { return GetCurrentTheme().Underline }

// ColorPrimary returns the accent color.
func ColorPrimary() string { return GetCurrentTheme().Primary }

// ColorDim returns the secondary color.
func ColorDim() string { return GetCurrentTheme().Secondary }

// ColorGreen returns the success color.
func ColorGreen() string { return GetCurrentTheme().Success }

// ColorYellow returns the warning color.
func ColorYellow() string { return GetCurrentTheme().Warning }

// ColorRed returns the error color.
func ColorRed() string { return GetCurrentTheme().Error }

// ColorCyan returns the info color.
func ColorCyan() string { return GetCurrentTheme().Info }

// ColorForPercent colors a utilization reading: green below MidThreshold,
// yellow below HighThreshold, red above.
func ColorForPercent(p float64) string {
	switch {
	case p >= HighThreshold:
		return ColorRed()
	case p >= MidThreshold:
		return ColorYellow()
	default:
		return ColorGreen()
	}
}

// Colorize wraps s in color and a reset. With no color active it returns s.
func Colorize(color, s string) string {
	if color == "" {
		return s
	}
	return color + s + ColorReset()
}
