// Package ui provides themes and ANSI color helpers shared by the CLI table
// and the TUI dashboard. Colors follow NO_COLOR and --no-color.
package ui
