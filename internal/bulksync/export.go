package bulksync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/transport"
	"github.com/muurk/keytune/internal/version"
)

// Export reads the whole configuration. Individual field failures degrade
// to defaults; only a failed base-layout read, a missing device or
// cancellation fails the export.
func (e *Engine) Export(ctx context.Context) (*snapshot.Snapshot, *Report, error) {
	r, err := e.begin("export")
	if err != nil {
		return nil, nil, err
	}
	snap, err := r.export(ctx)
	report := r.finish()
	if err != nil {
		return nil, report, err
	}
	logging.Info("Export complete",
		zap.Int("keys", len(snap.Keyboards)),
		zap.Int("macros", len(snap.Macro.List)),
		zap.Int("degraded", report.Degraded),
		zap.Duration("elapsed", report.Elapsed),
	)
	return snap, report, nil
}

func (r *run) export(ctx context.Context) (*snapshot.Snapshot, error) {
	snap := snapshot.New()
	snap.Version = version.Version

	keys, err := r.readLayout(ctx)
	if err != nil {
		return nil, err
	}
	snap.Keyboards = keys

	r.readSystem(ctx, snap)
	if err := r.pause(ctx); err != nil {
		return nil, err
	}

	steps := []func(context.Context, *snapshot.Snapshot) error{
		r.readBindings,
		r.readPerformance,
		r.readAdvanced,
		r.readLighting,
		r.readMacros,
	}
	for i, step := range steps {
		if err := step(ctx, snap); err != nil {
			return nil, err
		}
		if i < len(steps)-1 {
			if err := r.pause(ctx); err != nil {
				return nil, err
			}
		}
	}
	return snap, nil
}

// readLayout reads the base layout and seeds one default entry per distinct
// key value, in first-seen order.
func (r *run) readLayout(ctx context.Context) ([]snapshot.Key, error) {
	start := time.Now()
	var rows [][]transport.KeyInfo
	res := r.e.dev.Call(ctx, func(ctx context.Context, h transport.Handle) error {
		var err error
		rows, err = h.BaseLayout(ctx)
		return err
	})
	if res != nil {
		return nil, errs.Wrap(errs.KindOf(res), "export", "failed to read the base layout", res)
	}

	seen := make(map[int]bool)
	var keys []snapshot.Key
	for _, row := range rows {
		for _, k := range row {
			if seen[k.KeyValue] {
				continue
			}
			seen[k.KeyValue] = true
			keys = append(keys, snapshot.NewKey(k))
		}
	}
	if keys == nil {
		keys = []snapshot.Key{}
	}
	r.record(PhaseLayout, statsFor(len(keys), time.Since(start)))
	return keys, nil
}

func (r *run) readSystem(ctx context.Context, snap *snapshot.Snapshot) {
	start := time.Now()

	base, ok := field(ctx, r, "get_base_info", 0, transport.BaseInfo{}, func(ctx context.Context, h transport.Handle) (transport.BaseInfo, error) {
		return h.BaseInfo(ctx)
	})
	if ok {
		snap.System.KeyboardName = base.KeyboardName
		snap.System.VendorID = base.VendorID
		snap.System.ProductID = base.ProductID
		snap.System.Usage = base.Usage
		snap.System.UsagePage = base.UsagePage
		snap.FirmwareVersion = base.FirmwareVersion
	}

	snap.System.RateOfReturn, _ = field(ctx, r, "get_polling_rate", 0, snapshot.DefaultRateOfReturn, func(ctx context.Context, h transport.Handle) (int, error) {
		return h.PollingRate(ctx)
	})
	snap.System.TopDeadBandSwitch, _ = field(ctx, r, "get_top_dead_band", 0, snapshot.DefaultTopDeadBandSwitch, func(ctx context.Context, h transport.Handle) (int, error) {
		return h.TopDeadBandSwitch(ctx)
	})

	for _, z := range []struct {
		zone transport.LightZone
		dst  *snapshot.LightConfig
	}{
		{transport.ZoneMain, &snap.Light.Main},
		{transport.ZoneLogo, &snap.Light.Logo},
	} {
		cfg, ok := field(ctx, r, "get_lighting_"+z.zone.String(), 0, transport.LightConfig{}, func(ctx context.Context, h transport.Handle) (transport.LightConfig, error) {
			return h.Lighting(ctx, z.zone)
		})
		if ok {
			*z.dst = snapshot.LightFromTransport(cfg)
		}
	}

	r.record(PhaseSystem, statsFor(1, time.Since(start)))
}

// readBindings is phase A: per-layer remaps.
func (r *run) readBindings(ctx context.Context, snap *snapshot.Snapshot) error {
	for layer := 0; layer < r.e.opts.Layers; layer++ {
		err := phase(ctx, r, PhaseBindings, indexes(snap), func(ctx context.Context, i int) error {
			k := &snap.Keyboards[i]
			infos, ok := field(ctx, r, "get_layout_key_info", k.KeyValue, []transport.KeyInfo(nil), func(ctx context.Context, h transport.Handle) ([]transport.KeyInfo, error) {
				return h.LayoutKeyInfo(ctx, []transport.LayerKey{{Key: k.KeyValue, Layer: layer}})
			})
			if !ok || len(infos) == 0 {
				return errs.New(errs.KindUnknown, "get_layout_key_info", fmt.Sprintf("no binding for key %d", k.KeyValue))
			}
			k.CustomKeys.SetLayer(layer, snapshot.BindingFromRaw(k.KeyValue, infos[0].KeyValue))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// readPerformance is phase B: travel and trigger settings. Each field is
// retried and degrades on its own.
func (r *run) readPerformance(ctx context.Context, snap *snapshot.Snapshot) error {
	global, _ := field(ctx, r, "get_global_touch_travel", 0, 0.0, func(ctx context.Context, h transport.Handle) (float64, error) {
		return h.GlobalTouchTravel(ctx)
	})

	return phase(ctx, r, PhasePerformance, indexes(snap), func(ctx context.Context, i int) error {
		k := &snap.Keyboards[i]
		key := k.KeyValue
		p := &k.Performance
		p.GlobalTriggeringValue = global

		if mode, ok := field(ctx, r, "get_performance_mode", key, transport.PerformanceMode{}, func(ctx context.Context, h transport.Handle) (transport.PerformanceMode, error) {
			return h.PerformanceMode(ctx, key)
		}); ok {
			p.SetMode(mode)
		}

		rt, _ := field(ctx, r, "get_rt_travel", key, transport.TravelPair{Press: p.RtPressValue, Release: p.RtReleaseValue}, func(ctx context.Context, h transport.Handle) (transport.TravelPair, error) {
			return h.RtTravel(ctx, key)
		})
		p.RtPressValue, p.RtReleaseValue = rt.Press, rt.Release

		dead, _ := field(ctx, r, "get_dead_zones", key, transport.TravelPair{Press: p.DeadBandPressValue, Release: p.DeadBandReleaseValue}, func(ctx context.Context, h transport.Handle) (transport.TravelPair, error) {
			return h.DeadZones(ctx, key)
		})
		p.DeadBandPressValue, p.DeadBandReleaseValue = dead.Press, dead.Release

		p.AxisID, _ = field(ctx, r, "get_axis", key, p.AxisID, func(ctx context.Context, h transport.Handle) (int, error) {
			return h.Axis(ctx, key)
		})

		if p.IsSingle {
			p.SingleTriggeringValue, _ = field(ctx, r, "get_single_travel", key, p.SingleTriggeringValue, func(ctx context.Context, h transport.Handle) (float64, error) {
				return h.SingleTravel(ctx, key)
			})
		}
		return nil
	})
}

// readAdvanced is phase C: every advanced kind is read and kept; the active
// one is resolved afterwards.
func (r *run) readAdvanced(ctx context.Context, snap *snapshot.Snapshot) error {
	return phase(ctx, r, PhaseAdvanced, indexes(snap), func(ctx context.Context, i int) error {
		k := &snap.Keyboards[i]
		for _, kind := range transport.AdvancedKinds {
			cfg, ok := field(ctx, r, "get_"+kind.String(), k.KeyValue, transport.AdvancedConfig{}, func(ctx context.Context, h transport.Handle) (transport.AdvancedConfig, error) {
				return h.Advanced(ctx, k.KeyValue, kind)
			})
			if ok {
				k.AdvancedKeys.Set(kind, &cfg)
			}
		}
		k.AdvancedKeys.Resolve()
		return nil
	})
}

// readLighting is phase D: the per-key color.
func (r *run) readLighting(ctx context.Context, snap *snapshot.Snapshot) error {
	return phase(ctx, r, PhaseLighting, indexes(snap), func(ctx context.Context, i int) error {
		k := &snap.Keyboards[i]
		c, ok := field(ctx, r, "get_custom_light", k.KeyValue, transport.RGB{}, func(ctx context.Context, h transport.Handle) (transport.RGB, error) {
			return h.CustomLight(ctx, k.KeyValue)
		})
		if ok {
			k.Light.Custom = snapshot.CustomColor{R: c.R, G: c.G, B: c.B, Key: k.KeyValue}
		}
		return nil
	})
}

// readMacros builds the macro library from keys with at least one step.
// Ids follow key discovery order regardless of completion order.
func (r *run) readMacros(ctx context.Context, snap *snapshot.Snapshot) error {
	found := make([][]transport.MacroStep, len(snap.Keyboards))
	err := phase(ctx, r, PhaseMacros, indexes(snap), func(ctx context.Context, i int) error {
		key := snap.Keyboards[i].KeyValue
		steps, _ := field(ctx, r, "get_macro", key, []transport.MacroStep(nil), func(ctx context.Context, h transport.Handle) ([]transport.MacroStep, error) {
			return h.Macro(ctx, key)
		})
		found[i] = steps
		return nil
	})
	if err != nil {
		return err
	}

	date := r.e.opts.Now().UTC().Format(time.RFC3339)
	for i, steps := range found {
		if len(steps) == 0 {
			continue
		}
		key := snap.Keyboards[i].KeyValue
		snap.Macro.List = append(snap.Macro.List, snapshot.Macro{
			Date: date,
			ID:   len(snap.Macro.List) + 1,
			Name: fmt.Sprintf("Macro %d", key),
			Key:  key,
			Step: snapshot.StepsFromTransport(steps),
		})
	}
	return nil
}

func indexes(snap *snapshot.Snapshot) []int {
	out := make([]int, len(snap.Keyboards))
	for i := range out {
		out[i] = i
	}
	return out
}
