package bulksync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/retry"
	"github.com/muurk/keytune/internal/session"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/transport"
	"github.com/muurk/keytune/internal/transport/simulator"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testOptions() Options {
	return Options{
		BatchSize:  16,
		Throttle:   time.Millisecond,
		PhasePause: time.Millisecond,
		Fields:     retry.Fixed(2, time.Millisecond),
		Now:        func() time.Time { return fixedNow },
	}
}

// connect returns an initialized session on a fresh simulated keyboard.
func connect(t *testing.T, opts simulator.Options) (*simulator.Keyboard, *session.Session) {
	t.Helper()
	kb := simulator.New(opts)
	s := session.New(kb, session.NewMemoryStore(kb.Info().StableID()), session.Options{
		AutoConnect:   retry.Fixed(2, 5*time.Millisecond),
		Reads:         retry.Fixed(2, 5*time.Millisecond),
		ProbeAttempts: 2,
		ProbeStep:     time.Millisecond,
		InitRetries:   1,
	})
	s.Start()
	t.Cleanup(func() {
		_ = s.Close()
		_ = kb.Close()
	})

	dev, err := s.AutoConnect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, dev)
	require.Equal(t, session.Initialized, s.State())
	kb.ResetStats()
	return kb, s
}

func TestExportDefaults(t *testing.T) {
	kb, s := connect(t, simulator.Options{})
	e := New(s, testOptions())

	snap, report, err := e.Export(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())

	// The alias row repeats keys; every key appears once.
	assert.Len(t, snap.Keyboards, simulator.DefaultKeyCount)
	assert.Equal(t, "Simulated HE Keyboard", snap.System.KeyboardName)
	assert.Equal(t, "1.0.7-sim", snap.FirmwareVersion)
	assert.Equal(t, 3, snap.System.RateOfReturn)
	assert.Empty(t, snap.Macro.List)
	assert.Empty(t, snapshot.Validate(snap))

	k := snap.Keyboards[0]
	assert.Equal(t, 2.0, k.Performance.GlobalTriggeringValue)
	assert.True(t, k.Performance.IsGlobalTriggering)
	assert.Equal(t, 0.3, k.Performance.RtPressValue)
	assert.Nil(t, k.CustomKeys.Fn0)
	assert.NotNil(t, k.AdvancedKeys.DKS, "every advanced kind is retained")
	assert.Empty(t, k.AdvancedKeys.AdvancedType)

	assert.Equal(t, 1, kb.Calls("get_global_touch_travel"), "global travel is read once")
	assert.Zero(t, kb.Calls("get_single_travel"), "single travel is only read for single-mode keys")
}

func TestExportBatching(t *testing.T) {
	kb, s := connect(t, simulator.Options{Latency: time.Millisecond})
	e := New(s, testOptions())

	_, report, err := e.Export(context.Background())
	require.NoError(t, err)

	perf, ok := report.Phase(PhasePerformance)
	require.True(t, ok)
	assert.Equal(t, 104, perf.Items)
	assert.Equal(t, 7, perf.Batches)
	assert.LessOrEqual(t, perf.MaxInFlight, 16)
	assert.Greater(t, perf.MaxInFlight, 1)

	bindings, ok := report.Phase(PhaseBindings)
	require.True(t, ok)
	assert.Equal(t, 4*104, bindings.Items)
	assert.Equal(t, 4*7, bindings.Batches)

	assert.LessOrEqual(t, kb.MaxInFlight(), 16)
}

func TestExportProgress(t *testing.T) {
	_, s := connect(t, simulator.Options{KeyCount: 20})

	var (
		mu   sync.Mutex
		last = map[string]Progress{}
	)
	opts := testOptions()
	opts.OnProgress = func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		last[p.Phase] = p
	}

	_, _, err := New(s, opts).Export(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	for _, name := range []string{PhaseBindings, PhasePerformance, PhaseAdvanced, PhaseLighting, PhaseMacros} {
		p, ok := last[name]
		require.True(t, ok, name)
		assert.Equal(t, p.Total, p.Done, name)
		assert.Equal(t, 20, p.Total, name)
	}
}

func TestExportFieldFailureKeepsDefault(t *testing.T) {
	kb, s := connect(t, simulator.Options{})
	kb.SetFail(func(op string, key int) error {
		if op == "get_performance_mode" && key == 5 {
			return errs.NewTransportError(op, assert.AnError)
		}
		return nil
	})
	e := New(s, testOptions())

	snap, report, err := e.Export(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Degraded)
	assert.Len(t, snap.Keyboards, simulator.DefaultKeyCount)

	k, ok := snap.FindKey(5)
	require.True(t, ok)
	assert.Equal(t, snapshot.DefaultPerformance().IsGlobalTriggering, k.Performance.IsGlobalTriggering)
	assert.Equal(t, 2, kb.Calls("get_performance_mode")-(simulator.DefaultKeyCount-1), "failed field was retried")
}

func TestExportSurvivesUnplugMidPhase(t *testing.T) {
	kb, s := connect(t, simulator.Options{})

	var once sync.Once
	opts := testOptions()
	opts.OnProgress = func(p Progress) {
		if p.Phase == PhasePerformance {
			once.Do(kb.Unplug)
		}
	}

	snap, report, err := New(s, opts).Export(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Keyboards, simulator.DefaultKeyCount)
	assert.Greater(t, report.Degraded, 0)
	assert.False(t, report.OK())

	_, ok := report.Phase(PhaseMacros)
	assert.True(t, ok, "later phases still ran")

	last := snap.Keyboards[len(snap.Keyboards)-1]
	assert.Equal(t, snapshot.DefaultPerformance().RtPressValue, last.Performance.RtPressValue)
}

func TestExportLayoutFailure(t *testing.T) {
	kb, s := connect(t, simulator.Options{})
	kb.SetFail(func(op string, key int) error {
		if op == "get_base_layout" {
			return errs.NewTransportError(op, assert.AnError)
		}
		return nil
	})

	snap, _, err := New(s, testOptions()).Export(context.Background())
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, errs.KindTransport, errs.KindOf(err))
}

func TestExportWithoutDevice(t *testing.T) {
	kb := simulator.New(simulator.Options{})
	s := session.New(kb, session.NewMemoryStore(""), session.DefaultOptions())
	t.Cleanup(func() {
		_ = s.Close()
		_ = kb.Close()
	})

	_, _, err := New(s, testOptions()).Export(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsNoDevice(err))
}

func TestExportBindingSentinels(t *testing.T) {
	kb, s := connect(t, simulator.Options{KeyCount: 8})
	kb.SetBinding(4, 0, 0)
	kb.SetBinding(4, 1, 7)
	kb.SetBinding(4, 2, 1)
	kb.SetBinding(4, 3, 4)

	snap, _, err := New(s, testOptions()).Export(context.Background())
	require.NoError(t, err)

	k, ok := snap.FindKey(4)
	require.True(t, ok)
	assert.Nil(t, k.CustomKeys.Fn0)
	assert.Equal(t, &snapshot.Binding{KeyValue: 4, BindKeyValue: 7}, k.CustomKeys.Fn1)
	assert.Nil(t, k.CustomKeys.Fn2)
	assert.Nil(t, k.CustomKeys.Fn3)
}

func TestExportMacrosAndAdvanced(t *testing.T) {
	kb, s := connect(t, simulator.Options{KeyCount: 16})
	kb.SetMacroSteps(10, []transport.MacroStep{{KeyCode: 4, Pressed: true}, {KeyCode: 4, Delay: 20}})
	kb.SetMacroSteps(6, []transport.MacroStep{{KeyCode: 5, Pressed: true}})
	kb.SetAdvancedConfig(7, transport.AdvancedTGL, transport.AdvancedConfig{Enabled: true, Keys: []int{8}})
	kb.SetAdvancedConfig(7, transport.AdvancedMT, transport.AdvancedConfig{Enabled: true, Time: 200})

	snap, _, err := New(s, testOptions()).Export(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Macro.List, 2)
	assert.Equal(t, 1, snap.Macro.List[0].ID)
	assert.Equal(t, 6, snap.Macro.List[0].Key)
	assert.Equal(t, "Macro 6", snap.Macro.List[0].Name)
	assert.Equal(t, fixedNow.Format(time.RFC3339), snap.Macro.List[0].Date)
	assert.Equal(t, 2, snap.Macro.List[1].ID)
	assert.Equal(t, 10, snap.Macro.List[1].Key)
	assert.Len(t, snap.Macro.List[1].Step, 2)

	k, ok := snap.FindKey(7)
	require.True(t, ok)
	assert.Equal(t, "mt", k.AdvancedKeys.AdvancedType)
	require.NotNil(t, k.AdvancedKeys.TGL)
	assert.True(t, k.AdvancedKeys.TGL.Enabled, "inactive kinds keep their config")
}

func TestRoundTrip(t *testing.T) {
	src, s1 := connect(t, simulator.Options{KeyCount: 32})
	src.SetBinding(5, 1, 9)
	src.SetBinding(6, 3, 12)
	src.SetMacroSteps(8, []transport.MacroStep{{KeyCode: 4, Pressed: true}, {KeyCode: 4, Delay: 15}})
	src.SetAdvancedConfig(9, transport.AdvancedDKS, transport.AdvancedConfig{Enabled: true, Travels: []float64{0.5, 1.5}})

	want, _, err := New(s1, testOptions()).Export(context.Background())
	require.NoError(t, err)

	dst, s2 := connect(t, simulator.Options{KeyCount: 32})
	report, err := New(s2, testOptions()).Import(context.Background(), want)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{"rateOfReturn"}, report.Skipped)
	assert.Zero(t, dst.Calls("set_polling_rate"))
	assert.Equal(t, 1, dst.Calls("set_global_touch_travel"))
	assert.Equal(t, 2, dst.Calls("set_key"), "only keys with bindings are written")

	got, _, err := New(s2, testOptions()).Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Empty(t, snapshot.Compare(want, got))
}

func TestImportWriteFailureContinues(t *testing.T) {
	src, s := connect(t, simulator.Options{KeyCount: 8})
	want, _, err := New(s, testOptions()).Export(context.Background())
	require.NoError(t, err)

	src.SetFail(func(op string, key int) error {
		if op == "set_custom_light" && key == 6 {
			return errs.NewTransportError(op, assert.AnError)
		}
		return nil
	})
	report, err := New(s, testOptions()).Import(context.Background(), want)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, PhaseLighting, report.Failures[0].Phase)
	assert.Equal(t, 6, report.Failures[0].Key)
	assert.Contains(t, report.Failures[0].String(), "key 6")
	assert.Equal(t, 8, src.Calls("set_custom_light"), "failed write is not retried")
	assert.Equal(t, 8, src.Calls("set_performance_mode"), "later phases still run")
}

func TestImportRejectsInvalidSnapshot(t *testing.T) {
	kb, s := connect(t, simulator.Options{KeyCount: 8})
	snap, _, err := New(s, testOptions()).Export(context.Background())
	require.NoError(t, err)
	kb.ResetStats()

	snap.System.RateOfReturn = 9
	_, err = New(s, testOptions()).Import(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, err.Error(), "1 error(s)")
	assert.Zero(t, kb.Calls("set_top_dead_band"))
	assert.Zero(t, kb.Calls("get_base_info"))
}

// blockingDevice holds every call until release is closed.
type blockingDevice struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *blockingDevice) Call(ctx context.Context, fn func(context.Context, transport.Handle) error) error {
	d.once.Do(func() { close(d.entered) })
	select {
	case <-d.release:
		return errs.NewNoDeviceError("call")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestConcurrentRunIsBusy(t *testing.T) {
	dev := &blockingDevice{entered: make(chan struct{}), release: make(chan struct{})}
	e := New(dev, testOptions())

	done := make(chan error, 1)
	go func() {
		_, _, err := e.Export(context.Background())
		done <- err
	}()
	<-dev.entered

	_, err := e.Import(context.Background(), snapshot.New())
	require.Error(t, err)
	assert.True(t, errs.IsBusy(err))

	_, _, err = e.Export(context.Background())
	assert.True(t, errs.IsBusy(err))

	close(dev.release)
	require.True(t, errs.IsNoDevice(<-done))

	// The engine is free again once the first run finished.
	_, err = e.Import(context.Background(), snapshot.New())
	assert.True(t, errs.IsNoDevice(err))
}

func TestExportCancelled(t *testing.T) {
	_, s := connect(t, simulator.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New(s, testOptions()).Export(ctx)
	require.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{BatchSize: -1, Layers: 9, Throttle: -time.Second}.withDefaults()
	assert.Equal(t, 16, o.BatchSize)
	assert.Equal(t, 4, o.Layers)
	assert.Zero(t, o.Throttle)
	assert.NotNil(t, o.Now)
	assert.Equal(t, 3, o.Fields.MaxAttempts)
}
