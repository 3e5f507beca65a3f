// Package bulksync reads a whole keyboard configuration into a snapshot and
// replays a snapshot onto a keyboard.
//
// Both directions run in strictly sequential phases with a short settle
// pause in between. Within a phase the per-key calls go through a
// batch.Scheduler, so at most BatchSize calls are in flight. A failed read
// degrades that one field to its default; a failed write is reported and
// the run continues. Nothing is rolled back.
package bulksync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/batch"
	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/retry"
	"github.com/muurk/keytune/internal/transport"
)

// Phase names reported through progress callbacks and reports.
const (
	PhaseSystem      = "system"
	PhaseLayout      = "layout"
	PhaseBindings    = "bindings"
	PhasePerformance = "performance"
	PhaseAdvanced    = "advanced"
	PhaseLighting    = "lighting"
	PhaseMacros      = "macros"
)

// Device gives the engine access to the live keyboard handle.
// *session.Session implements it.
type Device interface {
	Call(ctx context.Context, fn func(context.Context, transport.Handle) error) error
}

// Progress is reported after every chunk of a phase.
type Progress struct {
	Phase string
	Done  int
	Total int
}

// Options tunes a sync run. Zero fields take the defaults.
type Options struct {
	BatchSize  int
	Throttle   time.Duration
	PhasePause time.Duration
	Layers     int
	Fields     retry.Policy

	// OnProgress, if set, receives progress updates.
	OnProgress func(Progress)

	// Now stamps exported macros. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the built-in sync settings.
func DefaultOptions() Options {
	return Options{
		BatchSize:  batch.DefaultSize,
		Throttle:   batch.DefaultThrottle,
		PhasePause: 100 * time.Millisecond,
		Layers:     4,
		Fields:     retry.DefaultFieldPolicy(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.Throttle < 0 {
		o.Throttle = 0
	}
	if o.PhasePause < 0 {
		o.PhasePause = 0
	}
	if o.Layers <= 0 || o.Layers > 4 {
		o.Layers = def.Layers
	}
	if o.Fields.MaxAttempts <= 0 {
		o.Fields = def.Fields
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// PhaseStats records one phase of a run.
type PhaseStats struct {
	Phase string
	batch.Stats
}

// Failure is one write that did not go through.
type Failure struct {
	Phase string
	Key   int
	Op    string
	Err   error
}

func (f Failure) String() string {
	if f.Key == 0 {
		return fmt.Sprintf("%s: %s: %s", f.Phase, f.Op, errs.ShortMessage(f.Err))
	}
	return fmt.Sprintf("%s: key %d: %s: %s", f.Phase, f.Key, f.Op, errs.ShortMessage(f.Err))
}

// Report summarizes a run.
type Report struct {
	Phases []PhaseStats

	// Degraded counts export fields that fell back to their default.
	Degraded int

	// Failures lists import writes that failed.
	Failures []Failure

	// Skipped lists snapshot values deliberately not replayed.
	Skipped []string

	Elapsed time.Duration
}

// OK reports whether the run finished without degraded reads or failed writes.
func (r *Report) OK() bool {
	return r.Degraded == 0 && len(r.Failures) == 0
}

// Phase returns the stats of the named phase.
func (r *Report) Phase(name string) (PhaseStats, bool) {
	for _, p := range r.Phases {
		if p.Phase == name {
			return p, true
		}
	}
	return PhaseStats{}, false
}

// Engine runs exports and imports against one device. Only one run is
// allowed at a time; a concurrent call gets a KindBusy error.
type Engine struct {
	dev  Device
	opts Options
	mu   sync.Mutex
}

// New creates an engine.
func New(dev Device, opts Options) *Engine {
	return &Engine{dev: dev, opts: opts.withDefaults()}
}

// run is the per-run state shared by the phases.
type run struct {
	e        *Engine
	report   *Report
	degraded atomic.Int64
	mu       sync.Mutex
	start    time.Time
}

func (e *Engine) begin(op string) (*run, error) {
	if !e.mu.TryLock() {
		return nil, errs.NewBusyError(op)
	}
	return &run{e: e, report: &Report{}, start: time.Now()}, nil
}

func (r *run) finish() *Report {
	r.report.Degraded = int(r.degraded.Load())
	r.report.Elapsed = time.Since(r.start)
	r.e.mu.Unlock()
	return r.report
}

// phase runs fn over items through a scheduler and records the stats.
func phase[T any](ctx context.Context, r *run, name string, items []T, fn func(context.Context, T) error) error {
	s := batch.NewScheduler(r.e.opts.BatchSize, r.e.opts.Throttle)
	if cb := r.e.opts.OnProgress; cb != nil {
		s.OnChunk = func(done, total int) { cb(Progress{Phase: name, Done: done, Total: total}) }
	}
	logging.Debug("Sync phase starting", zap.String("phase", name), zap.Int("items", len(items)))
	stats, err := batch.Run(ctx, s, items, fn)
	r.record(name, stats)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		logging.Debug("Sync phase had failures", zap.String("phase", name), zap.Int("failed", stats.Failed))
	}
	return nil
}

func (r *run) record(name string, stats batch.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.report.Phases {
		if r.report.Phases[i].Phase == name {
			p := &r.report.Phases[i]
			p.Items += stats.Items
			p.Batches += stats.Batches
			p.Failed += stats.Failed
			p.MaxInFlight = max(p.MaxInFlight, stats.MaxInFlight)
			p.Elapsed += stats.Elapsed
			return
		}
	}
	r.report.Phases = append(r.report.Phases, PhaseStats{Phase: name, Stats: stats})
}

// statsFor describes a step that ran outside the scheduler.
func statsFor(items int, elapsed time.Duration) batch.Stats {
	return batch.Stats{Items: items, Batches: 1, MaxInFlight: 1, Elapsed: elapsed}
}

func (r *run) fail(phase string, key int, op string, err error) {
	logging.Noise("Write failed", zap.String("phase", phase), zap.Int("key", key), zap.String("op", op), zap.Error(err))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Failures = append(r.report.Failures, Failure{Phase: phase, Key: key, Op: op, Err: err})
}

func (r *run) pause(ctx context.Context) error {
	return retry.Sleep(ctx, r.e.opts.PhasePause)
}

// field reads one value with the field retry policy, falling back to def.
// The bool reports whether the read succeeded.
func field[T any](ctx context.Context, r *run, op string, key int, def T, fn func(context.Context, transport.Handle) (T, error)) (T, bool) {
	res := retry.Do(ctx, r.e.opts.Fields, op, func(ctx context.Context) (T, error) {
		var v T
		err := r.e.dev.Call(ctx, func(ctx context.Context, h transport.Handle) error {
			var err error
			v, err = fn(ctx, h)
			return err
		})
		return v, err
	})
	if err := res.Err(); err != nil {
		r.degraded.Add(1)
		logging.Noise("Read failed; keeping default",
			zap.String("op", op),
			zap.Int("key", key),
			zap.Error(err),
		)
		return def, false
	}
	return res.Value(), true
}

// write runs one write once and records a failure.
func (r *run) write(ctx context.Context, phase string, key int, op string, fn func(context.Context, transport.Handle) error) error {
	err := r.e.dev.Call(ctx, fn)
	if err != nil {
		r.fail(phase, key, op, err)
	}
	return err
}
