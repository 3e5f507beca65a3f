package bulksync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/transport"
)

// Import replays snap onto the keyboard. The snapshot is validated first and
// nothing is written when it is invalid. Each write is attempted once; a
// failed write is listed in the report and the run moves on.
//
// The polling rate is not replayed: changing it makes the keyboard
// re-enumerate mid-import. It is listed in Report.Skipped.
func (e *Engine) Import(ctx context.Context, snap *snapshot.Snapshot) (*Report, error) {
	r, err := e.begin("import")
	if err != nil {
		return nil, err
	}
	err = r.importSnapshot(ctx, snap)
	report := r.finish()
	if err != nil {
		return report, err
	}
	logging.Info("Import complete",
		zap.Int("keys", len(snap.Keyboards)),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (r *run) importSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return errs.NewValidationError("import", "no snapshot given")
	}
	if problems := snapshot.Validate(snap); len(problems) > 0 {
		return errs.NewValidationError("import", snapshot.FormatValidationErrors(problems))
	}

	// A cheap identity read confirms the keyboard answers before any write.
	if err := r.e.dev.Call(ctx, func(ctx context.Context, h transport.Handle) error {
		_, err := h.BaseInfo(ctx)
		return err
	}); err != nil {
		return err
	}

	r.report.Skipped = append(r.report.Skipped, "rateOfReturn")

	steps := []func(context.Context, *snapshot.Snapshot) error{
		r.writeSystem,
		r.writeBindings,
		r.writePerformance,
		r.writeAdvanced,
		r.writeLighting,
		r.writeMacros,
	}
	for i, step := range steps {
		if err := step(ctx, snap); err != nil {
			return err
		}
		if i < len(steps)-1 {
			if err := r.pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) writeSystem(ctx context.Context, snap *snapshot.Snapshot) error {
	start := time.Now()
	_ = r.write(ctx, PhaseSystem, 0, "set_top_dead_band", func(ctx context.Context, h transport.Handle) error {
		return h.SetTopDeadBandSwitch(ctx, snap.System.TopDeadBandSwitch)
	})
	_ = r.write(ctx, PhaseSystem, 0, "set_lighting_main", func(ctx context.Context, h transport.Handle) error {
		return h.SetLighting(ctx, transport.ZoneMain, snap.Light.Main.Transport())
	})
	_ = r.write(ctx, PhaseSystem, 0, "set_lighting_logo", func(ctx context.Context, h transport.Handle) error {
		return h.SetLighting(ctx, transport.ZoneLogo, snap.Light.Logo.Transport())
	})
	r.record(PhaseSystem, statsFor(3, time.Since(start)))
	return ctx.Err()
}

// writeBindings sends every non-null binding of a key in one call.
func (r *run) writeBindings(ctx context.Context, snap *snapshot.Snapshot) error {
	return phase(ctx, r, PhaseBindings, snap.Keyboards, func(ctx context.Context, k snapshot.Key) error {
		var bindings []transport.KeyBinding
		for layer := 0; layer < r.e.opts.Layers; layer++ {
			if b := k.CustomKeys.Layer(layer); b != nil {
				bindings = append(bindings, transport.KeyBinding{Key: k.KeyValue, Layer: layer, Value: b.BindKeyValue})
			}
		}
		if len(bindings) == 0 {
			return nil
		}
		return r.write(ctx, PhaseBindings, k.KeyValue, "set_key", func(ctx context.Context, h transport.Handle) error {
			return h.SetKey(ctx, bindings)
		})
	})
}

// writePerformance writes the global travel once, taken from the first key,
// then each key's own settings.
func (r *run) writePerformance(ctx context.Context, snap *snapshot.Snapshot) error {
	if len(snap.Keyboards) > 0 {
		global := snap.Keyboards[0].Performance.GlobalTriggeringValue
		_ = r.write(ctx, PhasePerformance, 0, "set_global_touch_travel", func(ctx context.Context, h transport.Handle) error {
			return h.SetGlobalTouchTravel(ctx, global)
		})
	}

	return phase(ctx, r, PhasePerformance, snap.Keyboards, func(ctx context.Context, k snapshot.Key) error {
		key := k.KeyValue
		p := k.Performance
		var failed error
		keep := func(err error) {
			if err != nil && failed == nil {
				failed = err
			}
		}
		keep(r.write(ctx, PhasePerformance, key, "set_performance_mode", func(ctx context.Context, h transport.Handle) error {
			return h.SetPerformanceMode(ctx, key, p.Mode())
		}))
		keep(r.write(ctx, PhasePerformance, key, "set_rt_travel", func(ctx context.Context, h transport.Handle) error {
			return h.SetRtTravel(ctx, key, transport.TravelPair{Press: p.RtPressValue, Release: p.RtReleaseValue})
		}))
		keep(r.write(ctx, PhasePerformance, key, "set_dead_zones", func(ctx context.Context, h transport.Handle) error {
			return h.SetDeadZones(ctx, key, transport.TravelPair{Press: p.DeadBandPressValue, Release: p.DeadBandReleaseValue})
		}))
		keep(r.write(ctx, PhasePerformance, key, "set_axis", func(ctx context.Context, h transport.Handle) error {
			return h.SetAxis(ctx, key, p.AxisID)
		}))
		if p.IsSingle {
			keep(r.write(ctx, PhasePerformance, key, "set_single_travel", func(ctx context.Context, h transport.Handle) error {
				return h.SetSingleTravel(ctx, key, p.SingleTriggeringValue)
			}))
		}
		return failed
	})
}

// writeAdvanced writes every retained advanced config, active or not.
func (r *run) writeAdvanced(ctx context.Context, snap *snapshot.Snapshot) error {
	return phase(ctx, r, PhaseAdvanced, snap.Keyboards, func(ctx context.Context, k snapshot.Key) error {
		var failed error
		for _, kind := range transport.AdvancedKinds {
			cfg := k.AdvancedKeys.Get(kind)
			if cfg == nil {
				continue
			}
			c := *cfg
			if err := r.write(ctx, PhaseAdvanced, k.KeyValue, "set_"+kind.String(), func(ctx context.Context, h transport.Handle) error {
				return h.SetAdvanced(ctx, k.KeyValue, kind, c)
			}); err != nil && failed == nil {
				failed = err
			}
		}
		return failed
	})
}

func (r *run) writeLighting(ctx context.Context, snap *snapshot.Snapshot) error {
	return phase(ctx, r, PhaseLighting, snap.Keyboards, func(ctx context.Context, k snapshot.Key) error {
		return r.write(ctx, PhaseLighting, k.KeyValue, "set_custom_light", func(ctx context.Context, h transport.Handle) error {
			return h.SetCustomLight(ctx, k.KeyValue, k.Light.Custom.RGB())
		})
	})
}

func (r *run) writeMacros(ctx context.Context, snap *snapshot.Snapshot) error {
	return phase(ctx, r, PhaseMacros, snap.Macro.List, func(ctx context.Context, m snapshot.Macro) error {
		return r.write(ctx, PhaseMacros, m.Key, "set_macro", func(ctx context.Context, h transport.Handle) error {
			return h.SetMacro(ctx, m.Key, m.TransportSteps())
		})
	})
}
