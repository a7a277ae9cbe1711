package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// FooterModel renders key hints, the run status and the last action message.
type FooterModel struct {
	bindings []key.Binding
	paused   bool
	failing  bool
	prompt   string
	message  string
	isError  bool
	width    int
}

// NewFooterModel creates a footer listing bindings.
func NewFooterModel(bindings []key.Binding) FooterModel {
	return FooterModel{bindings: bindings}
}

// SetWidth updates the available width.
func (f *FooterModel) SetWidth(w int) { f.width = w }

// SetPaused toggles the paused indicator.
func (f *FooterModel) SetPaused(p bool) { f.paused = p }

// SetFailing marks the last refresh as failed.
func (f *FooterModel) SetFailing(b bool) { f.failing = b }

// SetPrompt shows a question in place of the key hints; empty clears it.
func (f *FooterModel) SetPrompt(p string) { f.prompt = p }

// SetMessage shows the outcome of the last action.
func (f *FooterModel) SetMessage(msg string, isError bool) {
	f.message = msg
	f.isError = isError
}

// View renders the footer.
func (f FooterModel) View() string {
	var left string
	if f.prompt != "" {
		left = promptStyle.Render(f.prompt)
	} else {
		parts := make([]string, 0, len(f.bindings))
		for _, b := range f.bindings {
			h := b.Help()
			parts = append(parts, footerKeyStyle.Render(h.Key)+" "+footerDescStyle.Render(h.Desc))
		}
		left = strings.Join(parts, "  ")
	}

	var status string
	switch {
	case f.failing:
		status = statusErrorStyle.Render("REFRESH FAILED")
	case f.paused:
		status = statusPausedStyle.Render("PAUSED")
	default:
		status = statusRunningStyle.Render("LIVE")
	}
	right := status
	if f.message != "" {
		style := messageOKStyle
		if f.isError {
			style = messageErrStyle
		}
		right = style.Render(f.message) + "  " + status
	}

	return " " + justify(left, right, f.width-2)
}
