// Package orchestration runs the retention refresh on a dedicated goroutine
// and fans each completed cycle out to listeners. Presentation and storage
// subscribe through the Listener interface and never call the sampler
// themselves.
package orchestration
