package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/keytune/internal/bulksync"
	"github.com/muurk/keytune/internal/errs"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Detail is one "key: value" row in a header or result box.
type Detail struct {
	Key   string
	Value string
}

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType
	Title           string // e.g., "Export complete"
	Details         []Detail
	Error           error    // Error (for failure results)
	Troubleshooting []string // Tips or itemized problems
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box. When troubleshooting is
// empty the tips for err's kind are used instead.
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	if len(troubleshooting) == 0 && err != nil {
		troubleshooting = hintTips(errs.TroubleshootingHint(err))
	}
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewReportResult summarizes a finished sync run. Runs with degraded reads
// or failed writes produce a warning box listing them.
func NewReportResult(title string, report *bulksync.Report) *Result {
	details := []Detail{{"Duration", report.Elapsed.Round(time.Millisecond).String()}}
	for _, ph := range report.Phases {
		details = append(details, Detail{ph.Phase, fmt.Sprintf("%d items in %d batches", ph.Items, ph.Batches)})
	}
	if report.Degraded > 0 {
		details = append(details, Detail{"Degraded", fmt.Sprintf("%d fields kept defaults", report.Degraded)})
	}
	if len(report.Skipped) > 0 {
		details = append(details, Detail{"Skipped", strings.Join(report.Skipped, ", ")})
	}
	if report.OK() {
		return NewSuccessResult(title, details...)
	}
	r := NewWarningResult(title+" with problems", details...)
	for _, f := range report.Failures {
		r.Troubleshooting = append(r.Troubleshooting, f.String())
	}
	return r
}

// hintTips splits a troubleshooting hint into its bullet items. A hint
// without bullets is returned whole.
func hintTips(hint string) []string {
	var tips []string
	for _, line := range strings.Split(hint, "\n") {
		if tip, ok := strings.CutPrefix(strings.TrimSpace(line), "• "); ok {
			tips = append(tips, tip)
		}
	}
	if len(tips) == 0 && hint != "" {
		tips = []string{hint}
	}
	return tips
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail row
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Detail{key, value})
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	var lines []string
	lines = append(lines, "", r.titleLine(), "")

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+errs.ShortMessage(r.Error)), "")
	}
	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}
	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(), "")
	}

	return boxStyle(r.Width, r.color()).Render(strings.Join(lines, "\n"))
}

func (r *Result) titleLine() string {
	switch r.Type {
	case ResultFailure:
		return ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title))
	case ResultWarning:
		return WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title))
	default:
		return SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
	}
}

func (r *Result) color() lipgloss.Color {
	switch r.Type {
	case ResultFailure:
		return ErrorColor
	case ResultWarning:
		return WarningColor
	default:
		return SuccessColor
	}
}

func (r *Result) renderTroubleshootingBox() string {
	title := "Troubleshooting:"
	if r.Type == ResultWarning {
		title = "Problems:"
	}
	lines := []string{TroubleshootingTitleStyle.Render(title), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}
	return TroubleshootingBoxStyle(r.Width).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// RenderSuccess renders a success box with the given title and details
func RenderSuccess(title string, details ...Detail) string {
	return NewSuccessResult(title, details...).Render()
}

// RenderFailure renders a failure box with the given title, error, and troubleshooting tips
func RenderFailure(title string, err error, troubleshooting []string) string {
	return NewFailureResult(title, err, troubleshooting).Render()
}
