package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/keytune/internal/bulksync"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped
)

// Step is one sync phase in the progress list.
type Step struct {
	Number  int
	Name    string
	Status  StepStatus
	Done    int
	Total   int
	Message string // e.g. "3 degraded"
}

// ExportPhases lists export phases in the order they run.
var ExportPhases = []string{
	bulksync.PhaseLayout,
	bulksync.PhaseSystem,
	bulksync.PhaseBindings,
	bulksync.PhasePerformance,
	bulksync.PhaseAdvanced,
	bulksync.PhaseLighting,
	bulksync.PhaseMacros,
}

// ImportPhases lists import phases in the order they run.
var ImportPhases = []string{
	bulksync.PhaseSystem,
	bulksync.PhaseBindings,
	bulksync.PhasePerformance,
	bulksync.PhaseAdvanced,
	bulksync.PhaseLighting,
	bulksync.PhaseMacros,
}

// Progress is a bar plus one line per sync phase, driven by
// bulksync.Progress events.
type Progress struct {
	Label   string
	Steps   []Step
	Percent float64 // 0.0 - 1.0
	Width   int
	current int // index into Steps, -1 before the first event
	bar     progress.Model
}

// NewProgress creates a progress display for the named phases.
func NewProgress(label string, phases []string) *Progress {
	steps := make([]Step, len(phases))
	for i, name := range phases {
		steps[i] = Step{Number: i + 1, Name: name}
	}
	p := &Progress{Label: label, Steps: steps, current: -1}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sets the terminal width for responsive rendering
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := min(max(width-20, 20), 50)
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

func (p *Progress) index(phase string) int {
	for i := range p.Steps {
		if p.Steps[i].Name == phase {
			return i
		}
	}
	return -1
}

// Observe applies one engine event. Phases before the reported one are
// considered finished. It returns the index of the step that changed, or -1
// for an unknown phase.
func (p *Progress) Observe(ev bulksync.Progress) int {
	i := p.index(ev.Phase)
	if i < 0 {
		return -1
	}
	for j := 0; j < i; j++ {
		if p.Steps[j].Status == StepPending || p.Steps[j].Status == StepRunning {
			p.Steps[j].Status = StepComplete
		}
	}
	s := &p.Steps[i]
	s.Done, s.Total = ev.Done, ev.Total
	if ev.Total > 0 && ev.Done >= ev.Total {
		s.Status = StepComplete
	} else {
		s.Status = StepRunning
	}
	p.current = i
	p.recompute()
	return i
}

// Finish closes out the display. Phases that never reported are marked
// complete on success and skipped on failure; the running one fails.
func (p *Progress) Finish(report *bulksync.Report, err error) {
	for i := range p.Steps {
		s := &p.Steps[i]
		switch {
		case err != nil && s.Status == StepRunning:
			s.Status = StepFailed
		case err != nil && s.Status == StepPending:
			s.Status = StepSkipped
		case err == nil && s.Status != StepComplete:
			s.Status = StepComplete
		}
	}
	if report != nil {
		for _, f := range report.Failures {
			if i := p.index(f.Phase); i >= 0 {
				p.Steps[i].Message = countNote(p.Steps[i].Message, "failed")
			}
		}
	}
	p.recompute()
}

// countNote bumps the "N <what>" counter kept in a step message.
func countNote(msg, what string) string {
	n := 0
	_, _ = fmt.Sscanf(msg, "%d", &n)
	return fmt.Sprintf("%d %s", n+1, what)
}

func (p *Progress) recompute() {
	if len(p.Steps) == 0 {
		p.Percent = 1
		return
	}
	var sum float64
	for _, s := range p.Steps {
		switch {
		case s.Status == StepComplete || s.Status == StepSkipped:
			sum++
		case s.Status == StepRunning && s.Total > 0:
			sum += float64(s.Done) / float64(s.Total)
		}
	}
	p.Percent = sum / float64(len(p.Steps))
}

// Render returns the styled progress display as a string
func (p *Progress) Render() string {
	var b strings.Builder
	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}
	b.WriteString(p.renderProgressBar())
	b.WriteString("\n\n")

	lines := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		lines[i] = p.renderStepLine(s)
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

func (p *Progress) renderProgressBar() string {
	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %3.0f%%  [%d/%d]", p.bar.ViewAs(p.Percent), p.Percent*100, p.current+1, len(p.Steps)))
}

func (p *Progress) renderStepLine(step Step) string {
	var marker string
	var style lipgloss.Style
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = "-", StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", step.Number, len(p.Steps))
	b.WriteString(style.Render(step.Name))
	b.WriteString(strings.Repeat(" ", max(24-lipgloss.Width(step.Name), 1)))
	b.WriteString(style.Render(marker))
	if step.Total > 0 {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render(fmt.Sprintf("%d/%d", step.Done, step.Total)))
	}
	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
