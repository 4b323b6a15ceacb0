// Package ui styles terminal output of the seismon CLI.
package ui

import "fmt"

// ANSI256 colour codes.
const (
	colorAccent = 74  // blue
	colorAlert  = 203 // red
	colorOK     = 114 // green
	colorMuted  = 245 // grey
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent highlights headings and identifiers.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted dims secondary columns such as timestamps.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderAlert marks a detector expected to lose lock.
func RenderAlert(s string) string { return render(colorAlert, s) }

// RenderOK marks a detector expected to stay locked.
func RenderOK(s string) string { return render(colorOK, s) }

// Lockloss renders the risk flag of a prediction.
func Lockloss(risk bool) string {
	if risk {
		return RenderAlert("LOCKLOSS")
	}
	return RenderOK("ok")
}

// SetColor enables or disables colour output globally.
func SetColor(enabled bool) {
	noColor = !enabled
}
