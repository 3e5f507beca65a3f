package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/muurk/keytune/internal/bulksync"
)

// SyncRunnerConfig describes one export or import run.
type SyncRunnerConfig struct {
	Title   string   // e.g., "Export"
	Command string   // e.g., "keytune export board.json"
	Params  []Detail // shown in the header
	Phases  []string // ExportPhases or ImportPhases
	Output  io.Writer

	// Live redraws the running phase in place with a carriage return.
	// Leave it off when output is not a terminal.
	Live bool
}

// SyncOperation performs the run, reporting engine progress through
// onProgress.
type SyncOperation func(onProgress func(bulksync.Progress)) (*bulksync.Report, error)

// SyncRunner drives the header, progress and result flow of a sync run.
type SyncRunner struct {
	config   SyncRunnerConfig
	out      io.Writer
	width    int
	mu       sync.Mutex
	progress *Progress
	printed  map[int]bool
}

// NewSyncRunner creates a runner for one sync command.
func NewSyncRunner(config SyncRunnerConfig) *SyncRunner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := GetTerminalWidth()
	return &SyncRunner{
		config:   config,
		out:      config.Output,
		width:    width,
		progress: NewProgress("", config.Phases).SetWidth(width),
		printed:  make(map[int]bool),
	}
}

// Progress returns the runner's progress tracker.
func (r *SyncRunner) Progress() *Progress {
	return r.progress
}

// Run prints the header, executes op and prints the result box.
func (r *SyncRunner) Run(op SyncOperation) (*bulksync.Report, error) {
	_, _ = fmt.Fprintln(r.out, NewHeader(r.config.Title, r.config.Command, r.config.Params...).SetWidth(r.width).Render())
	_, _ = fmt.Fprintln(r.out)

	report, err := op(r.onProgress)

	r.mu.Lock()
	r.progress.Finish(report, err)
	for i, s := range r.progress.Steps {
		if !r.printed[i] {
			_, _ = fmt.Fprintln(r.out, r.progress.renderStepLine(s))
		}
	}
	r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out)

	switch {
	case err != nil:
		_, _ = fmt.Fprintln(r.out, NewFailureResult(r.config.Title+" failed", err, nil).SetWidth(r.width).Render())
	case report != nil:
		_, _ = fmt.Fprintln(r.out, NewReportResult(r.config.Title+" complete", report).SetWidth(r.width).Render())
	}
	return report, err
}

// onProgress prints each phase line once it completes. The engine may call
// it from worker goroutines.
func (r *SyncRunner) onProgress(ev bulksync.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.progress.Observe(ev)
	if i < 0 {
		return
	}
	for j := 0; j <= i; j++ {
		s := r.progress.Steps[j]
		if r.printed[j] || s.Status != StepComplete {
			continue
		}
		r.printed[j] = true
		_, _ = fmt.Fprintln(r.out, r.progress.renderStepLine(s))
	}
	if r.config.Live && r.progress.Steps[i].Status == StepRunning {
		_, _ = fmt.Fprint(r.out, r.progress.renderStepLine(r.progress.Steps[i])+"\r")
	}
}
