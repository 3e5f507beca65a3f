package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/muurk/keytune/internal/bulksync"
	"github.com/muurk/keytune/internal/session"
)

// Printer writes UI components to a writer. Commands print all styled
// output through one.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter returns a Printer sized to the terminal. A nil w means stdout.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Detail) {
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
	p.Newline()
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Detail) {
	p.Println(NewSuccessResult(title, details...).SetWidth(p.width).Render())
}

// PrintWarning prints a warning result box
func (p *Printer) PrintWarning(title string, details ...Detail) {
	p.Println(NewWarningResult(title, details...).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting ...string) {
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintReport prints the summary box for a sync run.
func (p *Printer) PrintReport(title string, report *bulksync.Report) {
	p.Println(NewReportResult(title, report).SetWidth(p.width).Render())
}

// PrintStatus prints a connection status as an aligned detail list.
func (p *Printer) PrintStatus(st session.Status) {
	for _, d := range StatusDetails(st) {
		p.Println(ResultKeyStyle.Render("  "+d.Key+":") + " " + d.Value)
	}
}

// StatusDetails lists the rows shown for a connection status.
func StatusDetails(st session.Status) []Detail {
	rows := []Detail{{"State", StateStyle(st.State).Render(st.StateName)}}
	if st.Message != "" {
		rows = append(rows, Detail{"Message", st.Message})
	}
	if d := st.Device; d != nil {
		rows = append(rows,
			Detail{"Keyboard", d.ProductName},
			Detail{"Serial", d.Serial},
			Detail{"ID", string(d.StableID())},
		)
	}
	if !st.At.IsZero() {
		rows = append(rows, Detail{"Since", st.At.Format(time.TimeOnly)})
	}
	return rows
}

// PrintDiff colors a unified diff line by line.
func (p *Printer) PrintDiff(diff string) {
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		p.Println(DiffLine(line))
	}
}

// DiffLine styles one unified diff line.
func DiffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return DiffFileStyle.Render(line)
	case strings.HasPrefix(line, "@@"):
		return DiffHunkStyle.Render(line)
	case strings.HasPrefix(line, "+"):
		return DiffAddStyle.Render(line)
	case strings.HasPrefix(line, "-"):
		return DiffRemoveStyle.Render(line)
	default:
		return line
	}
}
