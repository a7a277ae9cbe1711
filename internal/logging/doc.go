// Package logging provides the structured logging interface used across
// taskmaster. Components depend on Logger; ZerologAdapter writes JSON lines
// and Nop discards everything.
package logging
