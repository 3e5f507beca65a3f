package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase must be typed verbatim to approve a dangerous operation.
const ConfirmPhrase = "I AGREE"

// Confirmer asks the user before risky keyboard writes.
type Confirmer struct {
	In    io.Reader
	Out   io.Writer
	Width int
}

// NewConfirmer reads answers from in and prints prompts to out.
func NewConfirmer(in io.Reader, out io.Writer) *Confirmer {
	return &Confirmer{In: in, Out: out, Width: GetTerminalWidth()}
}

// ConfirmDangerousOperation displays a warning box and prompts the user to
// type ConfirmPhrase. It returns true only on an exact match.
func (c *Confirmer) ConfirmDangerousOperation(title string, warnings []string, disclaimer string) bool {
	width := clampWidth(c.Width)

	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)), ""}
	bullet := lipgloss.NewStyle().Foreground(TextColor)
	for _, w := range warnings {
		lines = append(lines, bullet.Render("   • "+w))
	}
	lines = append(lines, "")
	if disclaimer != "" {
		lines = append(lines, lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Width(width-12).
			PaddingLeft(3).
			Render(disclaimer), "")
	}

	_, _ = fmt.Fprintln(c.Out, boxStyle(width, WarningColor).Render(strings.Join(lines, "\n")))
	_, _ = fmt.Fprintln(c.Out)
	_, _ = fmt.Fprint(c.Out, WarningTitleStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", ConfirmPhrase)))

	input, err := bufio.NewReader(c.In).ReadString('\n')
	_, _ = fmt.Fprintln(c.Out)
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == ConfirmPhrase {
		return true
	}
	_, _ = fmt.Fprintln(c.Out, StepPendingStyle.Render("  Operation cancelled."))
	_, _ = fmt.Fprintln(c.Out)
	return false
}

// FactoryReset asks before wiping the keyboard back to factory settings.
func (c *Confirmer) FactoryReset(keyboard string) bool {
	return c.ConfirmDangerousOperation(
		"FACTORY RESET",
		[]string{
			"Every binding, macro and lighting setting on " + keyboard + " will be erased",
			"The keyboard restarts and re-enumerates on USB",
			"Export a snapshot first if you want to restore your setup",
			"Do not unplug the keyboard until the command finishes",
		},
		"The keyboard is expected to drop off the bus during the reset. "+
			"keytune waits for it to come back and reconnects automatically.",
	)
}

// PollingRate asks before changing the USB report rate.
func (c *Confirmer) PollingRate(from, to string) bool {
	return c.ConfirmDangerousOperation(
		"POLLING RATE CHANGE",
		[]string{
			"The polling rate changes from " + from + " to " + to,
			"The keyboard restarts and re-enumerates on USB",
			"High rates need a USB port that can keep up",
		},
		"",
	)
}
