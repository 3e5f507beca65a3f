package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/keytune/internal/batch"
	"github.com/muurk/keytune/internal/bulksync"
	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/session"
	"github.com/muurk/keytune/internal/transport"
)

func TestProgressObserve(t *testing.T) {
	p := NewProgress("Exporting", ExportPhases)

	i := p.Observe(bulksync.Progress{Phase: bulksync.PhaseBindings, Done: 16, Total: 416})
	require.Equal(t, 2, i)
	assert.Equal(t, StepComplete, p.Steps[0].Status, "layout finished before bindings")
	assert.Equal(t, StepComplete, p.Steps[1].Status)
	assert.Equal(t, StepRunning, p.Steps[2].Status)
	assert.Equal(t, StepPending, p.Steps[3].Status)
	assert.InDelta(t, (2+16.0/416)/7, p.Percent, 1e-9)

	p.Observe(bulksync.Progress{Phase: bulksync.PhaseBindings, Done: 416, Total: 416})
	assert.Equal(t, StepComplete, p.Steps[2].Status)

	p.Finish(&bulksync.Report{}, nil)
	for _, s := range p.Steps {
		assert.Equal(t, StepComplete, s.Status, s.Name)
	}
	assert.Equal(t, 1.0, p.Percent)
	assert.Contains(t, p.Render(), "Exporting")
}

func TestProgressFinishWithError(t *testing.T) {
	p := NewProgress("", ImportPhases)
	p.Observe(bulksync.Progress{Phase: bulksync.PhasePerformance, Done: 1, Total: 8})
	p.Finish(nil, errs.NewDisconnectedError("import"))

	assert.Equal(t, StepComplete, p.Steps[1].Status)
	assert.Equal(t, StepFailed, p.Steps[2].Status)
	assert.Equal(t, StepSkipped, p.Steps[3].Status)
	assert.Equal(t, StepSkipped, p.Steps[5].Status)
}

func TestProgressCountsFailures(t *testing.T) {
	p := NewProgress("", ImportPhases)
	p.Finish(&bulksync.Report{Failures: []bulksync.Failure{
		{Phase: bulksync.PhaseBindings, Key: 5, Op: "set_key", Err: errors.New("x")},
		{Phase: bulksync.PhaseBindings, Key: 6, Op: "set_key", Err: errors.New("x")},
	}}, nil)
	assert.Equal(t, "2 failed", p.Steps[1].Message)
}

func TestProgressUnknownPhase(t *testing.T) {
	p := NewProgress("", ImportPhases)
	assert.Equal(t, -1, p.Observe(bulksync.Progress{Phase: bulksync.PhaseLayout, Done: 1, Total: 1}))
	assert.Zero(t, p.Percent)
}

func TestReportResult(t *testing.T) {
	report := &bulksync.Report{
		Phases:  []bulksync.PhaseStats{{Phase: bulksync.PhaseBindings, Stats: batch.Stats{Items: 104, Batches: 7}}},
		Skipped: []string{"rateOfReturn"},
		Elapsed: 1500 * time.Millisecond,
	}
	r := NewReportResult("Import complete", report)
	assert.Equal(t, ResultSuccess, r.Type)
	assert.Equal(t, Detail{bulksync.PhaseBindings, "104 items in 7 batches"}, r.Details[1])
	out := r.Render()
	assert.Contains(t, out, "rateOfReturn")
	assert.Contains(t, out, "SUCCESS")

	report.Failures = []bulksync.Failure{{Phase: bulksync.PhaseMacros, Key: 9, Op: "set_macro", Err: errors.New("nak")}}
	r = NewReportResult("Import complete", report)
	assert.Equal(t, ResultWarning, r.Type)
	require.Len(t, r.Troubleshooting, 1)
	assert.Equal(t, "macros: key 9: set_macro: nak", r.Troubleshooting[0])
	assert.Contains(t, r.Render(), "Problems:")
}

func TestFailureResultUsesHint(t *testing.T) {
	r := NewFailureResult("Export failed", errs.NewNoDeviceError("export"), nil)
	assert.Contains(t, r.Troubleshooting, "Run 'keytune scan' to list attached keyboards")
	assert.Contains(t, r.Render(), "No keyboard connected")

	r = NewFailureResult("Import failed", errs.NewBusyError("import"), nil)
	assert.Equal(t, []string{errs.TroubleshootingHint(errs.NewBusyError("import"))}, r.Troubleshooting)
}

func TestHeaderKeepsParamOrder(t *testing.T) {
	out := NewHeader("export", "keytune export a.json",
		Detail{"Keyboard", "Simulated HE Keyboard"},
		Detail{"Batch size", "16"},
	).SetWidth(80).Render()

	assert.Contains(t, out, "EXPORT")
	assert.Less(t, strings.Index(out, "Keyboard"), strings.Index(out, "Batch size"))
}

func TestConfirmer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"exact phrase", "I AGREE\n", true},
		{"surrounding space", "  I AGREE  \n", true},
		{"phrase without newline", "I AGREE", true},
		{"lowercase", "i agree\n", false},
		{"other answer", "yes\n", false},
		{"no input", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewConfirmer(strings.NewReader(tt.input), &out)
			assert.Equal(t, tt.want, c.FactoryReset("Simulated HE Keyboard"))
			assert.Contains(t, out.String(), "FACTORY RESET")
		})
	}
}

func TestConfirmerPollingRate(t *testing.T) {
	var out bytes.Buffer
	c := NewConfirmer(strings.NewReader("no\n"), &out)
	assert.False(t, c.PollingRate("1000Hz", "8000Hz"))
	assert.Contains(t, out.String(), "8000Hz")
	assert.Contains(t, out.String(), "Operation cancelled.")
}

func TestSyncRunner(t *testing.T) {
	var out bytes.Buffer
	r := NewSyncRunner(SyncRunnerConfig{
		Title:   "Export",
		Command: "keytune export board.json",
		Params:  []Detail{{"File", "board.json"}},
		Phases:  ExportPhases,
		Output:  &out,
	})

	report, err := r.Run(func(onProgress func(bulksync.Progress)) (*bulksync.Report, error) {
		onProgress(bulksync.Progress{Phase: bulksync.PhaseBindings, Done: 4, Total: 8})
		onProgress(bulksync.Progress{Phase: bulksync.PhaseBindings, Done: 8, Total: 8})
		onProgress(bulksync.Progress{Phase: bulksync.PhaseMacros, Done: 8, Total: 8})
		return &bulksync.Report{Elapsed: time.Second}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, report)

	text := out.String()
	assert.Contains(t, text, "EXPORT")
	assert.Contains(t, text, "Export complete")
	for _, phase := range ExportPhases {
		assert.Equal(t, 1, strings.Count(text, "] "+phase), phase)
	}
}

func TestSyncRunnerFailure(t *testing.T) {
	var out bytes.Buffer
	r := NewSyncRunner(SyncRunnerConfig{Title: "Import", Phases: ImportPhases, Output: &out})

	_, err := r.Run(func(onProgress func(bulksync.Progress)) (*bulksync.Report, error) {
		onProgress(bulksync.Progress{Phase: bulksync.PhaseSystem, Done: 0, Total: 3})
		return nil, errs.NewTimeoutError("import", "no answer")
	})
	require.Error(t, err)
	assert.Contains(t, out.String(), "Import failed")
	assert.Equal(t, StepFailed, r.Progress().Steps[0].Status)
}

func TestDiffLine(t *testing.T) {
	for _, line := range []string{"--- device", "+++ file", "@@ -1 +1 @@", "+a", "-b", " c"} {
		assert.Contains(t, DiffLine(line), line)
	}
	var out bytes.Buffer
	NewPrinter(&out).PrintDiff("-a\n+b\n")
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}

func TestStatusDetails(t *testing.T) {
	dev := &transport.DeviceInfo{VendorID: 1, ProductID: 2, Serial: "S1", ProductName: "Board"}
	st := session.Status{State: session.Initialized, StateName: "initialized", Device: dev, At: time.Now()}

	rows := StatusDetails(st)
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"State", "Keyboard", "Serial", "ID", "Since"}, keys)
	assert.Equal(t, "Board", rows[1].Value)
}

type fakeSource struct {
	status     session.Status
	connectErr error
	connects   int
	unsubbed   bool
}

func (f *fakeSource) Status() session.Status { return f.status }

func (f *fakeSource) Subscribe(session.Observer) func() {
	return func() { f.unsubbed = true }
}

func (f *fakeSource) AutoConnect(context.Context) (*transport.DeviceInfo, error) {
	f.connects++
	return nil, f.connectErr
}

func (f *fakeSource) Disconnect() error { return nil }

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWatchModelTracksStatus(t *testing.T) {
	src := &fakeSource{status: session.Status{State: session.Disconnected, StateName: "disconnected"}}
	var m tea.Model = NewWatchModel(context.Background(), src)

	for i := 0; i < historySize+3; i++ {
		m, _ = m.Update(StatusMsg{State: session.Connecting, StateName: "connecting", At: time.Now()})
	}
	m, _ = m.Update(StatusMsg{State: session.Initialized, StateName: "initialized", At: time.Now()})

	wm := m.(WatchModel)
	assert.Equal(t, session.Initialized, wm.Status().State)
	assert.Len(t, wm.History(), historySize)
	assert.Contains(t, wm.View(), "initialized")
	assert.Contains(t, wm.View(), "disconnect", "key help is rendered")
}

func TestWatchModelConnectKey(t *testing.T) {
	src := &fakeSource{connectErr: errs.New(errs.KindNotDiscoverable, "auto_connect", "paired keyboard not found")}
	var m tea.Model = NewWatchModel(context.Background(), src)

	m, cmd := m.Update(keyPress("c"))
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "connecting...")

	_, again := m.Update(keyPress("c"))
	assert.Nil(t, again, "second press while busy is ignored")

	m, _ = m.Update(cmd())
	assert.Equal(t, 1, src.connects)
	assert.NotContains(t, m.View(), "connecting...")
	assert.Contains(t, m.View(), FailureMarker)
}

func TestWatchModelQuit(t *testing.T) {
	m := NewWatchModel(context.Background(), &fakeSource{})
	for _, msg := range []tea.KeyMsg{keyPress("q"), {Type: tea.KeyCtrlC}} {
		_, cmd := m.Update(msg)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
}
